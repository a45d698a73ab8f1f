package agent

import (
	"fmt"
	"strings"

	"github.com/flavioluiz/flavia-go/pathguard"
)

// WriteConfirmer gates destructive write-tool operations behind an explicit
// user confirmation, matching the original's write_confirmation handler. A
// nil WriteConfirmer means no handler is configured; write tools then refuse
// with an error rather than silently proceeding.
type WriteConfirmer interface {
	Confirm(operation, path, details string) bool
}

// Context is an agent's runtime state: its place in the spawn tree, which
// tools/subagents it may use, and the running message history the loop
// mutates turn by turn. Message is left as map[string]any (rather than a
// concrete struct) because it carries raw OpenAI-wire-format chat messages,
// including tool_calls/tool_call_id fields the loop package owns.
type Context struct {
	AgentID        string
	Name           string
	CurrentDepth   int
	MaxDepth       int
	ParentID       string
	BaseDir        string
	AvailableTools []string
	Subagents      map[string]SubagentConfig
	ModelID        string
	Messages       []map[string]any

	Permissions         pathguard.Permissions
	ConvertedAccessMode pathguard.ConvertedAccessMode

	WriteConfirmation WriteConfirmer
	DryRun            bool

	RAGTurnID      string
	RAGTurnCounter int
	RAGDebug       bool
}

// FromProfile builds the root context for a freshly constructed agent.
func FromProfile(p Profile, agentID string) Context {
	return Context{
		AgentID:             agentID,
		Name:                p.Name,
		CurrentDepth:        0,
		MaxDepth:            p.MaxDepth,
		BaseDir:             p.BaseDir,
		AvailableTools:      append([]string{}, p.Tools...),
		Subagents:           p.Subagents,
		ModelID:             resolvedModel(p.Model),
		Permissions:         p.Permissions,
		ConvertedAccessMode: p.ConvertedAccessMode,
	}
}

// CanSpawn reports whether this context is shallow enough to spawn children.
func (c Context) CanSpawn() bool {
	return c.CurrentDepth < c.MaxDepth
}

// CreateChildContext builds a context for a spawned subagent one depth
// deeper than its parent, carrying over the run-level turn accounting and
// write-confirmation handler so traces stay consistent across the tree.
func (c Context) CreateChildContext(childID string, p Profile) Context {
	return Context{
		AgentID:             childID,
		Name:                p.Name,
		CurrentDepth:        c.CurrentDepth + 1,
		MaxDepth:            c.MaxDepth,
		ParentID:            c.AgentID,
		BaseDir:             p.BaseDir,
		AvailableTools:      append([]string{}, p.Tools...),
		Subagents:           p.Subagents,
		ModelID:             resolvedModel(p.Model),
		Permissions:         p.Permissions,
		ConvertedAccessMode: p.ConvertedAccessMode,
		WriteConfirmation:   c.WriteConfirmation,
		DryRun:              c.DryRun,
		RAGTurnID:           c.RAGTurnID,
		RAGTurnCounter:      c.RAGTurnCounter,
		RAGDebug:            c.RAGDebug,
	}
}

func resolvedModel(model string) string {
	if model == "" {
		return defaultModel
	}
	return model
}

// BuildSystemPrompt assembles the system prompt for an agent: its persona
// context (with {base_dir} substituted), identity/depth banner, working
// directory, tool descriptions, and available-subagents banner.
func BuildSystemPrompt(p Profile, c Context, toolsDescription string) string {
	var parts []string

	if p.Context != "" {
		ctx := strings.ReplaceAll(strings.TrimSpace(p.Context), "{base_dir}", c.BaseDir)
		parts = append(parts, ctx)
	}

	identity := fmt.Sprintf("\n[Agent ID: %s]", c.AgentID)
	if c.ParentID != "" {
		identity += fmt.Sprintf(" [Parent: %s]", c.ParentID)
	}
	identity += fmt.Sprintf(" [Depth: %d/%d]", c.CurrentDepth, c.MaxDepth)
	parts = append(parts, identity)

	parts = append(parts, fmt.Sprintf("\nWorking directory: %s", c.BaseDir))

	if toolsDescription != "" {
		parts = append(parts, fmt.Sprintf("\nAvailable tools:\n%s", toolsDescription))
	}

	if len(c.Subagents) > 0 && c.CanSpawn() {
		names := make([]string, 0, len(c.Subagents))
		for name := range c.Subagents {
			names = append(names, name)
		}
		parts = append(parts, fmt.Sprintf("\nAvailable specialist agents: %s", strings.Join(names, ", ")))
	}

	if !c.CanSpawn() {
		parts = append(parts, "\n[Maximum depth reached - cannot spawn sub-agents]")
	}

	return strings.Join(parts, "\n")
}

// ToolDescription is the name/description pair the loop extracts from each
// llm.Tool to render in the system prompt's "Available tools" banner.
type ToolDescription struct {
	Name        string
	Description string
}

// BuildToolsDescription renders a bullet list of tool name/description
// pairs.
func BuildToolsDescription(tools []ToolDescription) string {
	if len(tools) == 0 {
		return ""
	}
	lines := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = fmt.Sprintf("- %s: %s", t.Name, t.Description)
	}
	return strings.Join(lines, "\n")
}

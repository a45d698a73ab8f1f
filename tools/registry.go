package tools

import (
	"fmt"
	"sort"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/llm"
)

// Registry is a name-keyed collection of tools. Unlike the original's
// process-wide singleton, each agent run constructs its own Registry so
// tests and parallel sub-agents never share mutable global state.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, keyed by its name. A later registration with the
// same name replaces the earlier one.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the tool named name, or nil if unregistered.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Available returns every tool whose IsAvailable(ctx) holds, sorted by name
// for deterministic iteration.
func (r *Registry) Available(ctx agent.Context) []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		if t.IsAvailable(ctx) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// BuildLLMTools renders the OpenAI-compatible tool schemas for the given
// tool names (or every registered tool when names is empty), filtered to
// what ctx makes available.
func (r *Registry) BuildLLMTools(names []string, ctx agent.Context) []llm.Tool {
	var candidates []Tool
	if len(names) > 0 {
		for _, n := range names {
			if t, ok := r.tools[n]; ok {
				candidates = append(candidates, t)
			}
		}
	} else {
		for _, t := range r.tools {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name() < candidates[j].Name() })

	out := make([]llm.Tool, 0, len(candidates))
	for _, t := range candidates {
		if !t.IsAvailable(ctx) {
			continue
		}
		out = append(out, t.Schema().ToLLMTool())
	}
	return out
}

// ToolDescriptions renders the name/description pairs the loop uses to build
// the system prompt's "Available tools" banner, for the tools ctx makes
// available.
func (r *Registry) ToolDescriptions(names []string, ctx agent.Context) []agent.ToolDescription {
	var candidates []Tool
	if len(names) > 0 {
		for _, n := range names {
			if t, ok := r.tools[n]; ok {
				candidates = append(candidates, t)
			}
		}
	} else {
		for _, t := range r.tools {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name() < candidates[j].Name() })

	out := make([]agent.ToolDescription, 0, len(candidates))
	for _, t := range candidates {
		if !t.IsAvailable(ctx) {
			continue
		}
		out = append(out, agent.ToolDescription{Name: t.Name(), Description: t.Schema().Description})
	}
	return out
}

// Execute dispatches a tool call by name. Unknown tool names are a
// programmer error (the model hallucinated a tool), reported as a Go error
// so the loop can log it distinctly from an ordinary tool failure.
func (r *Registry) Execute(name string, args map[string]any, ctx agent.Context) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	if !t.IsAvailable(ctx) {
		return fmt.Sprintf("Error: Tool '%s' is not available in current context", name), nil
	}
	if ok, errMsg := validateArgs(t.Schema(), args); !ok {
		return fmt.Sprintf("Error: %s", errMsg), nil
	}
	return t.Execute(args, ctx), nil
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

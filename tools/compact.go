package tools

import (
	"encoding/json"
	"fmt"

	"github.com/flavioluiz/flavia-go/agent"
)

// CompactSentinel is what CompactContextTool returns to ask the agent loop
// to summarize and shrink the running conversation, instead of doing the
// summarization itself — compaction needs the full message history and an
// LLM call, neither of which a tool has access to.
const CompactSentinel = "__COMPACT_CONTEXT__"

// CompactContextPayload is the optional JSON body following CompactSentinel.
type CompactContextPayload struct {
	Instructions string `json:"instructions,omitempty"`
}

// CompactContextTool lets the model voluntarily request conversation
// compaction, ahead of the loop's own threshold-triggered compaction.
type CompactContextTool struct{}

func (t *CompactContextTool) Name() string     { return "compact_context" }
func (t *CompactContextTool) Category() string { return "context" }

func (t *CompactContextTool) Schema() Schema {
	return Schema{
		Name: "compact_context",
		Description: "Summarize and shrink the conversation so far, freeing context space. " +
			"Use this when the conversation has grown long and you want to keep working " +
			"without losing the important details.",
		Parameters: []Parameter{
			{Name: "instructions", Type: "string", Description: "Optional guidance on what to preserve when summarizing."},
		},
	}
}

func (t *CompactContextTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *CompactContextTool) Execute(args map[string]any, ctx agent.Context) string {
	instructions, ok := stringArg(args, "instructions")
	if !ok || instructions == "" {
		return CompactSentinel
	}
	data, err := json.Marshal(CompactContextPayload{Instructions: instructions})
	if err != nil {
		return fmt.Sprintf("Error: could not encode compaction request: %v", err)
	}
	return CompactSentinel + ":" + string(data)
}

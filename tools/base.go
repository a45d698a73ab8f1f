// Package tools implements the agent-facing tool surface: content search,
// catalog inspection, filesystem read/write, sub-agent spawning, and context
// compaction. Every tool is Path-Guard-gated through agent.Context and
// returns a plain string: tool failures are never Go errors, they are
// "Error: ..."-prefixed strings the agent loop can react to.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/llm"
)

// executionNoteParam is appended to every schema, mirroring the original
// tool surface's globally supported "explain before you act" field.
const executionNoteParam = "execution_note"

// Parameter describes one JSON Schema property of a tool's arguments.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean", "array", "object"
	Description string
	Required    bool
	Enum        []string
	Items       map[string]any
}

// Schema is a tool's OpenAI-compatible function schema.
type Schema struct {
	Name        string
	Description string
	Parameters  []Parameter
}

func (s Schema) withExecutionNote() []Parameter {
	for _, p := range s.Parameters {
		if p.Name == executionNoteParam {
			return s.Parameters
		}
	}
	return append(append([]Parameter{}, s.Parameters...), Parameter{
		Name: executionNoteParam,
		Type: "string",
		Description: "Detailed message describing what you are about to do. " +
			"This text is shown in the UI before the tool executes.",
		Required: true,
	})
}

// ToLLMTool converts the schema into the wire format llm.ChatRequest.Tools
// expects.
func (s Schema) ToLLMTool() llm.Tool {
	properties := map[string]any{}
	var required []string

	for _, p := range s.withExecutionNote() {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = p.Items
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	params, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})

	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		},
	}
}

// Tool is the interface every tool in the registry implements.
type Tool interface {
	Name() string
	Category() string
	Schema() Schema
	// IsAvailable reports whether the tool may be offered/invoked in ctx.
	IsAvailable(ctx agent.Context) bool
	// Execute runs the tool. args comes from the model's parsed JSON
	// arguments; the result is always a plain string, never a Go error.
	Execute(args map[string]any, ctx agent.Context) string
}

// validateArgs checks that every required parameter in schema is present in
// args, matching BaseTool.validate_args.
func validateArgs(schema Schema, args map[string]any) (bool, string) {
	for _, p := range schema.withExecutionNote() {
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				return false, fmt.Sprintf("Missing required parameter: %s", p.Name)
			}
		}
	}
	return true, ""
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolArg(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("must be true or false")
	}
	return b, nil
}

func intArg(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, fmt.Errorf("must be an integer")
	}
}

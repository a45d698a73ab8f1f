package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flavioluiz/flavia-go/agent"
)

// Sentinel prefixes the loop scans for in a tool's return value to detect a
// spawn request without coupling the tool layer to the scheduler that
// actually runs child agents.
const (
	SpawnAgentSentinel      = "__SPAWN_AGENT__"
	SpawnPredefinedSentinel = "__SPAWN_PREDEFINED__"
)

// SpawnAgentPayload is the JSON body following SpawnAgentSentinel.
type SpawnAgentPayload struct {
	Task    string   `json:"task"`
	Context string   `json:"context"`
	Model   string   `json:"model,omitempty"`
	Tools   []string `json:"tools,omitempty"`
}

// SpawnPredefinedPayload is the JSON body following SpawnPredefinedSentinel.
type SpawnPredefinedPayload struct {
	AgentName string `json:"agent_name"`
	Task      string `json:"task"`
}

// SpawnAgentTool spawns an ad-hoc sub-agent with a caller-chosen task,
// context, and (optionally) model/tool restriction. It never runs the child
// itself: it just encodes the request as a sentinel string for the agent
// loop's scheduler to pick up.
type SpawnAgentTool struct{}

func (t *SpawnAgentTool) Name() string     { return "spawn_agent" }
func (t *SpawnAgentTool) Category() string { return "spawn" }

func (t *SpawnAgentTool) Schema() Schema {
	return Schema{
		Name: "spawn_agent",
		Description: "Spawn a sub-agent to work on a focused task in parallel. Use this to " +
			"delegate independent pieces of a larger question so they can be explored " +
			"concurrently.",
		Parameters: []Parameter{
			{Name: "task", Type: "string", Description: "The task for the sub-agent to accomplish.", Required: true},
			{Name: "context", Type: "string", Description: "Background context the sub-agent needs to complete the task.", Required: true},
			{Name: "model", Type: "string", Description: "Optional model override for the sub-agent."},
			{Name: "tools", Type: "array", Description: "Optional list of tool names to restrict the sub-agent to."},
		},
	}
}

func (t *SpawnAgentTool) IsAvailable(ctx agent.Context) bool { return ctx.CanSpawn() }

func (t *SpawnAgentTool) Execute(args map[string]any, ctx agent.Context) string {
	task, ok := stringArg(args, "task")
	if !ok || strings.TrimSpace(task) == "" {
		return "Error: task is required"
	}
	taskContext, ok := stringArg(args, "context")
	if !ok || strings.TrimSpace(taskContext) == "" {
		return "Error: context is required"
	}

	payload := SpawnAgentPayload{Task: task, Context: taskContext}
	if model, ok := stringArg(args, "model"); ok && model != "" {
		payload.Model = model
	}
	if rawTools, ok := args["tools"]; ok {
		if list, ok := rawTools.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok && s != "" {
					payload.Tools = append(payload.Tools, s)
				}
			}
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("Error: could not encode spawn request: %v", err)
	}
	return SpawnAgentSentinel + ":" + string(data)
}

// SpawnPredefinedAgentTool spawns one of the profiles configured under
// agent_context.Subagents by name.
type SpawnPredefinedAgentTool struct{}

func (t *SpawnPredefinedAgentTool) Name() string     { return "spawn_predefined_agent" }
func (t *SpawnPredefinedAgentTool) Category() string { return "spawn" }

func (t *SpawnPredefinedAgentTool) Schema() Schema {
	return Schema{
		Name:        "spawn_predefined_agent",
		Description: "Spawn a pre-configured sub-agent by name to work on a task.",
		Parameters: []Parameter{
			{Name: "agent_name", Type: "string", Description: "Name of the configured sub-agent to spawn.", Required: true},
			{Name: "task", Type: "string", Description: "The task for the sub-agent to accomplish.", Required: true},
		},
	}
}

func (t *SpawnPredefinedAgentTool) IsAvailable(ctx agent.Context) bool {
	return len(ctx.Subagents) > 0 && ctx.CanSpawn()
}

func (t *SpawnPredefinedAgentTool) Execute(args map[string]any, ctx agent.Context) string {
	agentName, ok := stringArg(args, "agent_name")
	if !ok || strings.TrimSpace(agentName) == "" {
		return "Error: agent_name is required"
	}
	task, ok := stringArg(args, "task")
	if !ok || strings.TrimSpace(task) == "" {
		return "Error: task is required"
	}
	if _, known := ctx.Subagents[agentName]; !known {
		return fmt.Sprintf("Error: Unknown predefined agent '%s'", agentName)
	}

	payload := SpawnPredefinedPayload{AgentName: agentName, Task: task}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("Error: could not encode spawn request: %v", err)
	}
	return SpawnPredefinedSentinel + ":" + string(data)
}

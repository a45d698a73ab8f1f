package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// StatusPhase is the execution phase a ToolStatus update reports.
type StatusPhase string

const (
	PhaseWaitingLLM     StatusPhase = "waiting_llm"
	PhaseExecutingTool  StatusPhase = "executing_tool"
	PhaseSpawningAgent  StatusPhase = "spawning_agent"
	PhaseAgentCompleted StatusPhase = "agent_completed"
)

// ToolStatus is one progress update the loop emits via a StatusCallback so a
// caller (CLI, TUI, web UI) can render what the agent is currently doing.
type ToolStatus struct {
	Phase       StatusPhase
	ToolName    string
	ToolDisplay string
	Args        map[string]any
	AgentID     string
	Depth       int
}

// StatusCallback receives ToolStatus updates as the loop progresses.
type StatusCallback func(ToolStatus)

// WaitingLLM builds the status shown while blocked on the model's response.
func WaitingLLM(agentID string, depth int) ToolStatus {
	return ToolStatus{Phase: PhaseWaitingLLM, AgentID: agentID, Depth: depth}
}

// ExecutingTool builds the status shown while a tool call is running.
func ExecutingTool(toolName string, args map[string]any, agentID string, depth int) ToolStatus {
	safeName := sanitizeTerminalText(toolName)
	if safeName == "" {
		safeName = "tool"
	}
	if args == nil {
		args = map[string]any{}
	}
	return ToolStatus{
		Phase:       PhaseExecutingTool,
		ToolName:    safeName,
		ToolDisplay: FormatToolDisplay(safeName, args),
		Args:        args,
		AgentID:     agentID,
		Depth:       depth,
	}
}

// SpawningAgent builds the status shown while a subagent spawn is in flight.
func SpawningAgent(agentName, agentID string, depth int) ToolStatus {
	return ToolStatus{
		Phase:       PhaseSpawningAgent,
		ToolName:    "spawn_agent",
		ToolDisplay: fmt.Sprintf("Spawning %s", sanitizeTerminalText(agentName)),
		AgentID:     agentID,
		Depth:       depth,
	}
}

// AgentCompleted builds the status shown once a spawned sub-agent has
// returned, carrying a truncated preview of its result.
func AgentCompleted(resultPreview, agentID string, depth int) ToolStatus {
	preview := truncateText(resultPreview, 200)
	return ToolStatus{
		Phase:       PhaseAgentCompleted,
		ToolDisplay: fmt.Sprintf("Completed: %s", preview),
		AgentID:     agentID,
		Depth:       depth,
	}
}

var controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// sanitizeTerminalText collapses a value to a single control-char-free line
// safe for terminal/log rendering.
func sanitizeTerminalText(value any) string {
	if value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		text = fmt.Sprintf("%v", value)
	}
	text = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(text)
	return controlCharsRe.ReplaceAllString(text, "")
}

func truncatePath(path any, maxLen int) string {
	pathText := sanitizeTerminalText(path)
	if len(pathText) <= maxLen {
		return pathText
	}
	parts := strings.Split(strings.ReplaceAll(pathText, "\\", "/"), "/")
	if len(parts) <= 2 {
		return "..." + pathText[len(pathText)-(maxLen-3):]
	}
	filename := parts[len(parts)-1]
	parent := parts[len(parts)-2]
	result := parent + "/" + filename
	if len(result) <= maxLen {
		return result
	}
	if len(filename) > maxLen-3 {
		return "..." + filename[len(filename)-(maxLen-3):]
	}
	return filename
}

func truncateText(text any, maxLen int) string {
	safe := sanitizeTerminalText(text)
	if len(safe) <= maxLen {
		return safe
	}
	return safe[:maxLen-3] + "..."
}

func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k]; ok {
			return sanitizeTerminalText(v)
		}
	}
	return ""
}

// FormatToolDisplay renders a human-friendly one-line description of a tool
// call for status reporting, with a per-tool-name formatter and a generic
// fallback for unrecognized tools.
func FormatToolDisplay(toolName string, args map[string]any) (result string) {
	defer func() {
		if recover() != nil {
			result = toolName
		}
	}()

	switch toolName {
	case "read_file":
		return fmt.Sprintf("Reading %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "list_files":
		path := stringArg(args, "path", "directory")
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("Listing %s", truncatePath(path, 40))
	case "search_files":
		return fmt.Sprintf("Searching '%s'", truncateText(stringArg(args, "pattern", "query"), 30))
	case "get_file_info":
		return fmt.Sprintf("Getting info: %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "query_catalog":
		if text := stringArg(args, "text_search", "query"); text != "" {
			return fmt.Sprintf("Searching catalog: '%s'", truncateText(text, 30))
		}
		return "Querying catalog"
	case "write_file":
		return fmt.Sprintf("Writing %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "edit_file":
		return fmt.Sprintf("Editing %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "insert_text":
		path := truncatePath(stringArg(args, "path", "file_path"), 40)
		if line := stringArg(args, "line_number"); line != "" {
			return fmt.Sprintf("Inserting text in %s at line %s", path, line)
		}
		return fmt.Sprintf("Inserting text in %s", path)
	case "append_file":
		return fmt.Sprintf("Appending to %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "delete_file":
		return fmt.Sprintf("Deleting %s", truncatePath(stringArg(args, "path", "file_path"), 40))
	case "create_directory":
		return fmt.Sprintf("Creating directory %s", truncatePath(stringArg(args, "path"), 40))
	case "remove_directory":
		return fmt.Sprintf("Removing directory %s", truncatePath(stringArg(args, "path"), 40))
	case "execute_command":
		return fmt.Sprintf("Executing: %s", truncateText(stringArg(args, "command"), 35))
	case "spawn_agent":
		return fmt.Sprintf("Spawning agent: %s", truncateText(stringArg(args, "task"), 30))
	case "spawn_predefined_agent":
		name := stringArg(args, "agent_name")
		if name == "" {
			name = "agent"
		}
		return fmt.Sprintf("Spawning %s", sanitizeTerminalText(name))
	default:
		return formatDefaultDisplay(toolName, args)
	}
}

func formatDefaultDisplay(toolName string, args map[string]any) string {
	if len(args) == 0 {
		return toolName
	}
	var firstValue any
	for _, key := range []string{"path", "file_path", "query", "pattern", "text", "name"} {
		if v, ok := args[key]; ok {
			firstValue = v
			break
		}
	}
	if firstValue == nil {
		for _, v := range args {
			firstValue = v
			break
		}
	}
	valueText := sanitizeTerminalText(firstValue)
	if valueText != "" {
		return fmt.Sprintf("%s(%s)", toolName, truncateText(valueText, 25))
	}
	return toolName
}

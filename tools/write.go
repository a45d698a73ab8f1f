package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/pathguard"
)

// checkWriteAccess resolves path against baseDir and runs the path-guard
// write check.
func checkWriteAccess(path string, ctx agent.Context) (string, string) {
	resolved := pathguard.ResolvePath(path, ctx.BaseDir)
	if ok, reason := pathguard.CheckWrite(resolved, ctx.BaseDir, ctx.Permissions); !ok {
		return "", fmt.Sprintf("Error: %s", reason)
	}
	return resolved, ""
}

// confirmWrite runs the configured WriteConfirmer, matching
// agent_context.write_confirmation.confirm. A nil confirmer or a declined
// confirmation both short-circuit the write with the original's exact
// wording.
func confirmWrite(ctx agent.Context, operation, path, details string) (bool, string) {
	if ctx.WriteConfirmation == nil {
		return false, "Error: Write operations require confirmation but no confirmation handler is configured"
	}
	if !ctx.WriteConfirmation.Confirm(operation, path, details) {
		return false, "Operation cancelled by user"
	}
	return true, ""
}

// WriteFileTool creates or overwrites a file's full content.
type WriteFileTool struct{}

func (t *WriteFileTool) Name() string     { return "write_file" }
func (t *WriteFileTool) Category() string { return "write" }

func (t *WriteFileTool) Schema() Schema {
	return Schema{
		Name:        "write_file",
		Description: "Create a file or overwrite its entire content.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
			{Name: "content", Type: "string", Description: "Full content to write.", Required: true},
		},
	}
}

func (t *WriteFileTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *WriteFileTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "Error: Missing required parameter: content"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	existed := false
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		existed = true
	}

	operation := "create"
	details := fmt.Sprintf("Create new file (%d bytes)", len(content))
	if existed {
		operation = "overwrite"
		details = fmt.Sprintf("Overwrite existing file with %d bytes", len(content))
	}
	if ok, errMsg := confirmWrite(ctx, operation, path, details); !ok {
		return errMsg
	}

	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would %s %s", operation, path)
	}

	if existed {
		backupFile(resolved, ctx.BaseDir)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Sprintf("Error: Could not create parent directories: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Sprintf("Error: Could not write file: %v", err)
	}
	return fmt.Sprintf("Successfully wrote %s (%d bytes)", path, len(content))
}

// EditFileTool replaces one exact occurrence of old_text with new_text.
type EditFileTool struct{}

func (t *EditFileTool) Name() string     { return "edit_file" }
func (t *EditFileTool) Category() string { return "write" }

func (t *EditFileTool) Schema() Schema {
	return Schema{
		Name:        "edit_file",
		Description: "Replace an exact, uniquely-occurring text snippet in a file.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
			{Name: "old_text", Type: "string", Description: "Exact text to replace. Must occur exactly once.", Required: true},
			{Name: "new_text", Type: "string", Description: "Replacement text.", Required: true},
		},
	}
}

func (t *EditFileTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *EditFileTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	oldText, ok := stringArg(args, "old_text")
	if !ok {
		return "Error: Missing required parameter: old_text"
	}
	newText, ok := stringArg(args, "new_text")
	if !ok {
		return "Error: Missing required parameter: new_text"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path)
	}
	content := string(data)

	count := strings.Count(content, oldText)
	if count == 0 {
		return "Error: old_text not found in file"
	}
	if count > 1 {
		return fmt.Sprintf("Error: Text found %d times, must be unique. Add more context to old_text.", count)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	details := fmt.Sprintf("Replace %d chars with %d chars", len(oldText), len(newText))
	if ok, errMsg := confirmWrite(ctx, "edit", path, details); !ok {
		return errMsg
	}

	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would edit %s", path)
	}

	backupFile(resolved, ctx.BaseDir)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return fmt.Sprintf("Error: Could not write file: %v", err)
	}
	return fmt.Sprintf("Successfully edited %s", path)
}

// InsertTextTool inserts text at a specific 1-based line number.
type InsertTextTool struct{}

func (t *InsertTextTool) Name() string     { return "insert_text" }
func (t *InsertTextTool) Category() string { return "write" }

func (t *InsertTextTool) Schema() Schema {
	return Schema{
		Name:        "insert_text",
		Description: "Insert text before a given 1-based line number in a file.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
			{Name: "line_number", Type: "integer", Description: "1-based line number to insert before. One past the last line appends at end of file.", Required: true},
			{Name: "text", Type: "string", Description: "Text to insert.", Required: true},
		},
	}
}

func (t *InsertTextTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *InsertTextTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	text, ok := stringArg(args, "text")
	if !ok {
		return "Error: Missing required parameter: text"
	}
	lineNumber, err := intArg(args, "line_number", -1)
	if err != nil || lineNumber < 0 {
		return "Error: Missing or invalid required parameter: line_number"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path)
	}
	lines := strings.Split(string(data), "\n")
	total := len(lines)

	if lineNumber < 1 || lineNumber > total+1 {
		return fmt.Sprintf("Error: line_number must be between 1 and %d", total+1)
	}

	details := fmt.Sprintf("Insert %d chars before line %d", len(text), lineNumber)
	if ok, errMsg := confirmWrite(ctx, "insert", path, details); !ok {
		return errMsg
	}
	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would insert text at line %d of %s", lineNumber, path)
	}

	backupFile(resolved, ctx.BaseDir)

	insertLines := strings.Split(text, "\n")
	out := make([]string, 0, total+len(insertLines))
	out = append(out, lines[:lineNumber-1]...)
	out = append(out, insertLines...)
	out = append(out, lines[lineNumber-1:]...)

	if err := os.WriteFile(resolved, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return fmt.Sprintf("Error: Could not write file: %v", err)
	}
	return fmt.Sprintf("Successfully inserted text at line %d of %s", lineNumber, path)
}

// AppendFileTool appends text to the end of a file.
type AppendFileTool struct{}

func (t *AppendFileTool) Name() string     { return "append_file" }
func (t *AppendFileTool) Category() string { return "write" }

func (t *AppendFileTool) Schema() Schema {
	return Schema{
		Name:        "append_file",
		Description: "Append text to the end of a file, creating it if it doesn't exist.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
			{Name: "content", Type: "string", Description: "Text to append.", Required: true},
		},
	}
}

func (t *AppendFileTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *AppendFileTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "Error: Missing required parameter: content"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	existed := false
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		existed = true
	}

	details := fmt.Sprintf("Append %d bytes", len(content))
	if ok, errMsg := confirmWrite(ctx, "append", path, details); !ok {
		return errMsg
	}
	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would append to %s", path)
	}

	if existed {
		backupFile(resolved, ctx.BaseDir)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Sprintf("Error: Could not create parent directories: %v", err)
	}

	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Sprintf("Error: Could not open file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Sprintf("Error: Could not append to file: %v", err)
	}
	return fmt.Sprintf("Successfully appended %d bytes to %s", len(content), path)
}

// DeleteFileTool deletes a single file.
type DeleteFileTool struct{}

func (t *DeleteFileTool) Name() string     { return "delete_file" }
func (t *DeleteFileTool) Category() string { return "write" }

func (t *DeleteFileTool) Schema() Schema {
	return Schema{
		Name:        "delete_file",
		Description: "Delete a single file.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
		},
	}
}

func (t *DeleteFileTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *DeleteFileTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: Path is a directory, use remove_directory: %s", path)
	}

	details := fmt.Sprintf("Delete file (%s)", formatSize(info.Size()))
	if ok, errMsg := confirmWrite(ctx, "delete", path, details); !ok {
		return errMsg
	}
	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would delete %s", path)
	}

	backupFile(resolved, ctx.BaseDir)
	if err := os.Remove(resolved); err != nil {
		return fmt.Sprintf("Error: Could not delete file: %v", err)
	}
	return fmt.Sprintf("Successfully deleted %s", path)
}

// CreateDirectoryTool creates a directory (and parents).
type CreateDirectoryTool struct{}

func (t *CreateDirectoryTool) Name() string     { return "create_directory" }
func (t *CreateDirectoryTool) Category() string { return "write" }

func (t *CreateDirectoryTool) Schema() Schema {
	return Schema{
		Name:        "create_directory",
		Description: "Create a directory, including any missing parent directories.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path, relative to the working directory.", Required: true},
		},
	}
}

func (t *CreateDirectoryTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *CreateDirectoryTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return fmt.Sprintf("Directory already exists: %s", path)
		}
		return fmt.Sprintf("Error: A file already exists at %s", path)
	}

	if ok, errMsg := confirmWrite(ctx, "create_directory", path, "Create new directory"); !ok {
		return errMsg
	}
	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would create directory %s", path)
	}

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fmt.Sprintf("Error: Could not create directory: %v", err)
	}
	return fmt.Sprintf("Successfully created directory %s", path)
}

// RemoveDirectoryTool removes a directory, requiring recursive=true for
// non-empty directories.
type RemoveDirectoryTool struct{}

func (t *RemoveDirectoryTool) Name() string     { return "remove_directory" }
func (t *RemoveDirectoryTool) Category() string { return "write" }

func (t *RemoveDirectoryTool) Schema() Schema {
	return Schema{
		Name:        "remove_directory",
		Description: "Remove a directory. Non-empty directories require recursive=true.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path, relative to the working directory.", Required: true},
			{Name: "recursive", Type: "boolean", Description: "Remove non-empty directories and their contents (default false)."},
		},
	}
}

func (t *RemoveDirectoryTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *RemoveDirectoryTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	recursive, err := boolArg(args, "recursive", false)
	if err != nil {
		return "Error: recursive must be true or false"
	}

	resolved, errMsg := checkWriteAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Sprintf("Error: Directory not found: %s", path)
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: Path is a file, use delete_file: %s", path)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return fmt.Sprintf("Error: Could not read directory: %v", err)
	}
	if len(entries) > 0 && !recursive {
		return fmt.Sprintf("Error: Directory not empty (%d items). Use recursive=true to remove anyway.", len(entries))
	}

	details := fmt.Sprintf("Remove directory (%d items)", len(entries))
	if ok, errMsg := confirmWrite(ctx, "remove_directory", path, details); !ok {
		return errMsg
	}
	if ctx.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would remove directory %s", path)
	}

	if err := os.RemoveAll(resolved); err != nil {
		return fmt.Sprintf("Error: Could not remove directory: %v", err)
	}
	return fmt.Sprintf("Successfully removed directory %s", path)
}

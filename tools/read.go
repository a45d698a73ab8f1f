package tools

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/pathguard"
)

const maxSearchResults = 50

// checkReadAccess resolves path against baseDir and runs the path-guard read
// check, returning the resolved absolute path or a ready-to-return "Error:
// ..." string.
func checkReadAccess(path string, ctx agent.Context) (string, string) {
	resolved := pathguard.ResolvePath(path, ctx.BaseDir)
	policy := pathguard.ConvertedAccessPolicy{
		Mode:                   ctx.ConvertedAccessMode,
		SearchChunksAvailable:  hasSearchChunksIndex(ctx.BaseDir),
		RecentSearchChunksCall: recentSearchChunksCall(ctx.Messages),
	}
	if ok, reason := pathguard.CheckRead(resolved, ctx.BaseDir, ctx.Permissions, policy); !ok {
		return "", fmt.Sprintf("Error: %s", reason)
	}
	return resolved, ""
}

func hasSearchChunksIndex(baseDir string) bool {
	_, err := os.Stat(filepath.Join(baseDir, ".index", "index.db"))
	return err == nil
}

// recentSearchChunksCall scans the last 24 messages for an assistant
// tool_call named search_chunks, matching _has_recent_search_chunks_call.
func recentSearchChunksCall(messages []map[string]any) bool {
	start := 0
	if len(messages) > 24 {
		start = len(messages) - 24
	}
	for _, msg := range messages[start:] {
		if msg["role"] != "assistant" {
			continue
		}
		calls, ok := msg["tool_calls"].([]any)
		if !ok {
			continue
		}
		for _, c := range calls {
			call, ok := c.(map[string]any)
			if !ok {
				continue
			}
			fn, ok := call["function"].(map[string]any)
			if !ok {
				continue
			}
			if name, _ := fn["name"].(string); name == "search_chunks" {
				return true
			}
		}
	}
	return false
}

func relativeToBase(path, baseDir string) string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil {
		return path
	}
	return rel
}

// ReadFileTool reads a file's content, optionally a line range.
type ReadFileTool struct{}

func (t *ReadFileTool) Name() string     { return "read_file" }
func (t *ReadFileTool) Category() string { return "read" }

func (t *ReadFileTool) Schema() Schema {
	return Schema{
		Name:        "read_file",
		Description: "Read the contents of a file, optionally restricted to a line range.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the file, relative to the working directory.", Required: true},
			{Name: "start_line", Type: "integer", Description: "First line to read (1-based)."},
			{Name: "end_line", Type: "integer", Description: "Last line to read (1-based, inclusive)."},
		},
	}
}

func (t *ReadFileTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *ReadFileTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	resolved, errMsg := checkReadAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", path)
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: Path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Sprintf("Error: Could not read file: %v", err)
	}

	startLine, err := intArg(args, "start_line", 0)
	if err != nil {
		return "Error: start_line must be an integer"
	}
	endLine, err := intArg(args, "end_line", 0)
	if err != nil {
		return "Error: end_line must be an integer"
	}
	if startLine <= 0 && endLine <= 0 {
		return string(data)
	}

	lines := strings.Split(string(data), "\n")
	if startLine <= 0 {
		startLine = 1
	}
	if endLine <= 0 || endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > len(lines) {
		return fmt.Sprintf("Error: start_line %d exceeds file length (%d lines)", startLine, len(lines))
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}

// ListFilesTool lists a directory's entries, optionally recursively.
type ListFilesTool struct{}

func (t *ListFilesTool) Name() string     { return "list_files" }
func (t *ListFilesTool) Category() string { return "read" }

func (t *ListFilesTool) Schema() Schema {
	return Schema{
		Name:        "list_files",
		Description: "List files and directories under a path.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Directory path, relative to the working directory (default '.')."},
			{Name: "recursive", Type: "boolean", Description: "Recurse into subdirectories (default false)."},
			{Name: "pattern", Type: "string", Description: "Glob pattern to filter entries, e.g. '*.pdf'."},
		},
	}
}

func (t *ListFilesTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *ListFilesTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		path = "."
	}
	resolved, errMsg := checkReadAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return fmt.Sprintf("Error: Directory not found: %s", path)
	}

	recursive, err := boolArg(args, "recursive", false)
	if err != nil {
		return "Error: recursive must be true or false"
	}
	pattern, _ := stringArg(args, "pattern")

	var entries []string
	walk := func(p string, d os.DirEntry, err error) error {
		if err != nil || p == resolved {
			return nil
		}
		if !recursive && d.IsDir() {
			rel := relativeToBase(p, resolved)
			if strings.Contains(rel, string(filepath.Separator)) {
				return filepath.SkipDir
			}
		}
		name := d.Name()
		if pattern != "" {
			if matched, _ := filepath.Match(pattern, name); !matched {
				return nil
			}
		}
		rel := relativeToBase(p, resolved)
		if d.IsDir() {
			rel += "/"
		}
		entries = append(entries, rel)
		if !recursive && d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	}
	if err := filepath.WalkDir(resolved, walk); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	if len(entries) == 0 {
		return "(empty directory)"
	}
	sort.Strings(entries)
	return strings.Join(entries, "\n")
}

// SearchFilesTool regex-searches file contents under a directory.
type SearchFilesTool struct{}

func (t *SearchFilesTool) Name() string     { return "search_files" }
func (t *SearchFilesTool) Category() string { return "read" }

func (t *SearchFilesTool) Schema() Schema {
	return Schema{
		Name:        "search_files",
		Description: "Search file contents for a regex pattern under a directory.",
		Parameters: []Parameter{
			{Name: "pattern", Type: "string", Description: "Regular expression to search for.", Required: true},
			{Name: "path", Type: "string", Description: "Directory to search under (default '.')."},
			{Name: "file_pattern", Type: "string", Description: "Glob to restrict which files are searched, e.g. '*.md'."},
		},
	}
}

func (t *SearchFilesTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *SearchFilesTool) Execute(args map[string]any, ctx agent.Context) string {
	pattern, ok := stringArg(args, "pattern")
	if !ok || pattern == "" {
		return "Error: Missing required parameter: pattern"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("Error: Invalid regex pattern: %v", err)
	}

	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		path = "."
	}
	resolved, errMsg := checkReadAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	filePattern, _ := stringArg(args, "file_pattern")

	var results []string
	count := 0
	walk := func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || count >= maxSearchResults {
			return nil
		}
		if filePattern != "" {
			if matched, _ := filepath.Match(filePattern, d.Name()); !matched {
				return nil
			}
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				rel := relativeToBase(p, resolved)
				results = append(results, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(scanner.Text())))
				count++
				if count >= maxSearchResults {
					break
				}
			}
		}
		return nil
	}
	if err := filepath.WalkDir(resolved, walk); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	if len(results) == 0 {
		return "No matches found."
	}
	out := strings.Join(results, "\n")
	if count >= maxSearchResults {
		out += fmt.Sprintf("\n(showing first %d matches)", maxSearchResults)
	}
	return out
}

// GetFileInfoTool reports size/modified-time/type metadata for a path.
type GetFileInfoTool struct{}

func (t *GetFileInfoTool) Name() string     { return "get_file_info" }
func (t *GetFileInfoTool) Category() string { return "read" }

func (t *GetFileInfoTool) Schema() Schema {
	return Schema{
		Name:        "get_file_info",
		Description: "Get size, type, and modification time for a file or directory.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to inspect, relative to the working directory.", Required: true},
		},
	}
}

func (t *GetFileInfoTool) IsAvailable(ctx agent.Context) bool { return true }

func (t *GetFileInfoTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "Error: Missing required parameter: path"
	}
	resolved, errMsg := checkReadAccess(path, ctx)
	if errMsg != "" {
		return errMsg
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Sprintf("Error: Path not found: %s", path)
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Path: %s\nType: %s\nSize: %s\nModified: %s",
		path, kind, formatSize(info.Size()), info.ModTime().Format(time.RFC3339))
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

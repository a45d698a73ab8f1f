package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/pathguard"
)

func readTestContext(t *testing.T) agent.Context {
	t.Helper()
	dir := t.TempDir()
	return agent.Context{
		BaseDir:     dir,
		Permissions: pathguard.DefaultForBaseDir(dir),
	}
}

func TestReadFileToolWholeAndRanged(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := &ReadFileTool{}

	full := tool.Execute(map[string]any{"path": "a.txt"}, ctx)
	if full != "one\ntwo\nthree\n" {
		t.Fatalf("unexpected full read: %q", full)
	}

	ranged := tool.Execute(map[string]any{"path": "a.txt", "start_line": 2, "end_line": 3}, ctx)
	if ranged != "two\nthree" {
		t.Fatalf("unexpected ranged read: %q", ranged)
	}
}

func TestReadFileToolRejectsOutOfRangeStart(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "a.txt"), []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := &ReadFileTool{}
	result := tool.Execute(map[string]any{"path": "a.txt", "start_line": 99}, ctx)
	if !startsWithError(result) {
		t.Fatalf("expected an error for start_line beyond file length, got %q", result)
	}
}

func TestReadFileToolMissingFile(t *testing.T) {
	ctx := readTestContext(t)
	tool := &ReadFileTool{}
	result := tool.Execute(map[string]any{"path": "missing.txt"}, ctx)
	if result != "Error: File not found: missing.txt" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestListFilesToolNonRecursiveSkipsSubdirContents(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.MkdirAll(filepath.Join(ctx.BaseDir, "sub"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "top.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "sub", "nested.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := &ListFilesTool{}
	result := tool.Execute(map[string]any{}, ctx)
	if !containsLine(result, "top.txt") || !containsLine(result, "sub/") {
		t.Fatalf("expected top-level entries only, got %q", result)
	}
	if containsLine(result, "nested.txt") {
		t.Fatalf("expected non-recursive listing to skip nested.txt, got %q", result)
	}
}

func TestListFilesToolRecursiveIncludesNested(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.MkdirAll(filepath.Join(ctx.BaseDir, "sub"), 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "sub", "nested.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := &ListFilesTool{}
	result := tool.Execute(map[string]any{"recursive": true}, ctx)
	if !containsLine(result, "sub/nested.txt") {
		t.Fatalf("expected recursive listing to include sub/nested.txt, got %q", result)
	}
}

func TestListFilesToolEmptyDirectory(t *testing.T) {
	ctx := readTestContext(t)
	tool := &ListFilesTool{}
	result := tool.Execute(map[string]any{}, ctx)
	if result != "(empty directory)" {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestSearchFilesToolFindsMatchingLines(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "doc.md"), []byte("alpha\nbeta TODO\ngamma\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "doc.bin"), []byte("beta TODO\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tool := &SearchFilesTool{}
	result := tool.Execute(map[string]any{"pattern": "TODO", "file_pattern": "*.md"}, ctx)
	if !containsLine(result, "doc.md:2: beta TODO") {
		t.Fatalf("expected a match in doc.md, got %q", result)
	}
	if containsLine(result, "doc.bin") {
		t.Fatalf("expected file_pattern to exclude doc.bin, got %q", result)
	}
}

func TestSearchFilesToolNoMatches(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "doc.md"), []byte("nothing interesting\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := &SearchFilesTool{}
	result := tool.Execute(map[string]any{"pattern": "TODO"}, ctx)
	if result != "No matches found." {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestGetFileInfoToolReportsSizeAndType(t *testing.T) {
	ctx := readTestContext(t)
	if err := os.WriteFile(filepath.Join(ctx.BaseDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tool := &GetFileInfoTool{}
	result := tool.Execute(map[string]any{"path": "a.txt"}, ctx)
	if !containsLine(result, "Type: file") || !containsLine(result, "Size: 5 B") {
		t.Fatalf("unexpected result: %q", result)
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		500:         "500 B",
		2048:        "2.0 KiB",
		3 * 1 << 20: "3.0 MiB",
	}
	for n, want := range cases {
		if got := formatSize(n); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func containsLine(text, line string) bool {
	for _, l := range splitLines(text) {
		if l == line {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out = append(out, text[start:i])
			start = i + 1
		}
	}
	out = append(out, text[start:])
	return out
}

package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/pathguard"
	"github.com/flavioluiz/flavia-go/parser"
)

// resolveCatalogEntry loads the catalog, resolves path against base_dir, and
// finds the matching entry, mirroring the original's
// load_catalog_with_permissions + resolve_and_find_entry pair.
func resolveCatalogEntry(path string, ctx agent.Context) (*catalog.Catalog, string, catalog.FileEntry, string) {
	cat, errMsg := loadCatalog(ctx)
	if errMsg != "" {
		return nil, "", catalog.FileEntry{}, errMsg
	}

	configDir := filepath.Join(ctx.BaseDir, ".flavia")
	if ok, reason := pathguard.CheckWrite(configDir, ctx.BaseDir, ctx.Permissions); !ok {
		return nil, "", catalog.FileEntry{}, fmt.Sprintf("Error: %s", reason)
	}
	convertedDir := filepath.Join(ctx.BaseDir, ".converted")
	if ok, reason := pathguard.CheckWrite(convertedDir, ctx.BaseDir, ctx.Permissions); !ok {
		return nil, "", catalog.FileEntry{}, fmt.Sprintf("Error: %s", reason)
	}

	resolved := pathguard.ResolvePath(path, ctx.BaseDir)
	if _, err := os.Stat(resolved); err != nil {
		return nil, "", catalog.FileEntry{}, fmt.Sprintf("Error: File not found: %s", path)
	}
	rel := relativeToBase(resolved, ctx.BaseDir)

	entry, ok := cat.Files[rel]
	if !ok {
		return nil, "", catalog.FileEntry{}, fmt.Sprintf("Error: '%s' is not in the catalog. Run refresh_catalog first.", path)
	}
	return cat, resolved, entry, ""
}

// convertAndUpdateCatalog runs p over fullPath, writes the rendered markdown
// under base_dir/.converted, and records the conversion on entry before
// saving the catalog.
func convertAndUpdateCatalog(p parser.Parser, fullPath string, entry catalog.FileEntry, ctx agent.Context, cat *catalog.Catalog) (string, error) {
	result, err := p.Parse(context.Background(), fullPath)
	if err != nil {
		return "", err
	}
	if len(result.Sections) == 0 {
		return "", fmt.Errorf("no extractable text")
	}

	convertedDir := filepath.Join(ctx.BaseDir, ".converted")
	if err := os.MkdirAll(convertedDir, 0755); err != nil {
		return "", fmt.Errorf("creating .converted: %w", err)
	}
	relConverted := filepath.Join(".converted", entry.Name+".md")
	destPath := filepath.Join(ctx.BaseDir, relConverted)
	if err := os.WriteFile(destPath, []byte(renderMarkdown(result)), 0644); err != nil {
		return "", fmt.Errorf("writing converted file: %w", err)
	}

	cat.SetConverted(entry.Path, relConverted)
	configDir := filepath.Join(ctx.BaseDir, ".flavia")
	if err := cat.Save(configDir); err != nil {
		return "", fmt.Errorf("saving catalog: %w", err)
	}
	return relConverted, nil
}

// renderMarkdown flattens a ParseResult's section tree into a single
// markdown document, the same shape the chunker expects under .converted/.
func renderMarkdown(result *parser.ParseResult) string {
	var b strings.Builder
	var write func(sections []parser.Section)
	write = func(sections []parser.Section) {
		for _, s := range sections {
			if s.Heading != "" {
				level := s.Level
				if level <= 0 {
					level = 1
				}
				fmt.Fprintf(&b, "%s %s\n\n", strings.Repeat("#", level), s.Heading)
			}
			if s.Content != "" {
				b.WriteString(s.Content)
				b.WriteString("\n\n")
			}
			write(s.Children)
		}
	}
	write(result.Sections)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ConvertPDFTool converts a PDF file to markdown via text extraction, saving
// the result under .converted/ and recording it on the catalog entry.
type ConvertPDFTool struct {
	Registry *parser.Registry
}

func (t *ConvertPDFTool) Name() string     { return "convert_pdf" }
func (t *ConvertPDFTool) Category() string { return "content" }

func (t *ConvertPDFTool) Schema() Schema {
	return Schema{
		Name: "convert_pdf",
		Description: "Convert a PDF file to markdown text via text extraction. The converted " +
			"file is saved under .converted/ and the catalog is updated.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the PDF file, relative to the working directory.", Required: true},
		},
	}
}

func (t *ConvertPDFTool) IsAvailable(ctx agent.Context) bool { return catalogExists(ctx.BaseDir) }

func (t *ConvertPDFTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return "Error: path is required"
	}

	cat, fullPath, entry, errMsg := resolveCatalogEntry(path, ctx)
	if errMsg != "" {
		return errMsg
	}
	if !strings.EqualFold(filepath.Ext(fullPath), ".pdf") {
		return fmt.Sprintf("Error: '%s' is not a PDF file (extension: %s)", path, filepath.Ext(fullPath))
	}

	p, err := t.Registry.Get("pdf")
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	relConverted, err := convertAndUpdateCatalog(p, fullPath, entry, ctx, cat)
	if err != nil {
		return fmt.Sprintf("Error: PDF conversion failed: %v. The file may contain no extractable text.", err)
	}

	return fmt.Sprintf(
		"PDF converted successfully:\n  Source: %s\n  Method: simple text extraction\n  Converted to: %s\n\nContent is now searchable via search_chunks and query_catalog.",
		path, relConverted,
	)
}

// ConvertOfficeTool converts a spreadsheet to markdown via the registry's
// XLSX parser. Office conversion is scoped to .xlsx/.xls — a full
// Word/PowerPoint/OpenDocument matrix is out of scope.
type ConvertOfficeTool struct {
	Registry *parser.Registry
}

func (t *ConvertOfficeTool) Name() string     { return "convert_office" }
func (t *ConvertOfficeTool) Category() string { return "content" }

func (t *ConvertOfficeTool) Schema() Schema {
	return Schema{
		Name: "convert_office",
		Description: "Convert a spreadsheet (.xlsx, .xls) to markdown. The converted file is " +
			"saved under .converted/ and the catalog is updated.",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "Path to the spreadsheet, relative to the working directory.", Required: true},
		},
	}
}

func (t *ConvertOfficeTool) IsAvailable(ctx agent.Context) bool { return catalogExists(ctx.BaseDir) }

func (t *ConvertOfficeTool) Execute(args map[string]any, ctx agent.Context) string {
	path, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return "Error: path is required"
	}

	cat, fullPath, entry, errMsg := resolveCatalogEntry(path, ctx)
	if errMsg != "" {
		return errMsg
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fullPath), "."))
	if ext != "xlsx" && ext != "xls" {
		return fmt.Sprintf("Error: Unsupported file extension '.%s'. Supported: .xls, .xlsx", ext)
	}

	p, err := t.Registry.Get("xlsx")
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	relConverted, err := convertAndUpdateCatalog(p, fullPath, entry, ctx, cat)
	if err != nil {
		return fmt.Sprintf("Error: Office document conversion failed for '%s': %v", path, err)
	}

	return fmt.Sprintf(
		"Excel spreadsheet converted successfully:\n  Source: %s\n  Type: Excel spreadsheet\n  Converted to: %s\n\nContent is now searchable via search_chunks and query_catalog.",
		path, relConverted,
	)
}

// NewConvertDispatcher builds the function RefreshCatalogTool.Convert uses
// to auto-convert newly discovered binary documents, routing by extension to
// the PDF or Office tool.
func NewConvertDispatcher(reg *parser.Registry) func(path string, ctx agent.Context) (string, error) {
	pdfTool := &ConvertPDFTool{Registry: reg}
	officeTool := &ConvertOfficeTool{Registry: reg}
	return func(path string, ctx agent.Context) (string, error) {
		ext := strings.ToLower(filepath.Ext(path))
		var result string
		switch ext {
		case ".pdf":
			result = pdfTool.Execute(map[string]any{"path": path}, ctx)
		case ".xlsx", ".xls":
			result = officeTool.Execute(map[string]any{"path": path}, ctx)
		default:
			return "", fmt.Errorf("no converter for %s", ext)
		}
		if strings.HasPrefix(result, "Error:") {
			return "", fmt.Errorf("%s", result)
		}
		return result, nil
	}
}

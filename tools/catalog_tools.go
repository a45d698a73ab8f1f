package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/pathguard"
)

// catalogPath returns where the persisted catalog lives under ctx.BaseDir.
func catalogPath(baseDir string) string {
	return filepath.Join(baseDir, ".flavia", "content_catalog.json")
}

func catalogExists(baseDir string) bool {
	_, err := os.Stat(catalogPath(baseDir))
	return err == nil
}

func loadCatalog(ctx agent.Context) (*catalog.Catalog, string) {
	cat, err := catalog.Load(filepath.Join(ctx.BaseDir, ".flavia"), ctx.BaseDir)
	if err != nil {
		return nil, "Error: No content catalog found. Run the catalog indexer to build it."
	}
	return cat, ""
}

// QueryCatalogTool answers structured questions about what's in the vault —
// by name, extension, type, category, or free text — without touching the
// chunk index.
type QueryCatalogTool struct{}

func (t *QueryCatalogTool) Name() string     { return "query_catalog" }
func (t *QueryCatalogTool) Category() string { return "content" }

func (t *QueryCatalogTool) Schema() Schema {
	return Schema{
		Name: "query_catalog",
		Description: "Query the content catalog by name, extension, file type, category, or " +
			"free text, without running a semantic search. Use this for \"what files do I " +
			"have\" style questions.",
		Parameters: []Parameter{
			{Name: "name", Type: "string", Description: "Substring to match against file names."},
			{Name: "extension", Type: "string", Description: "File extension, e.g. 'pdf'."},
			{Name: "file_type", Type: "string", Description: "One of the catalog's file_type classes.",
				Enum: []string{"text", "binary_document", "image", "audio", "video", "archive", "other"}},
			{Name: "category", Type: "string", Description: "Catalog category label."},
			{Name: "text_search", Type: "string", Description: "Free text searched across path, summary, and tags."},
			{Name: "show_stats", Type: "boolean", Description: "Prepend overall catalog statistics to the result."},
			{Name: "limit", Type: "integer", Description: "Maximum number of entries to return (default 30)."},
		},
	}
}

func (t *QueryCatalogTool) IsAvailable(ctx agent.Context) bool { return catalogExists(ctx.BaseDir) }

func (t *QueryCatalogTool) Execute(args map[string]any, ctx agent.Context) string {
	cat, errMsg := loadCatalog(ctx)
	if errMsg != "" {
		return errMsg
	}

	opts := catalog.QueryOptions{}
	opts.Name, _ = stringArg(args, "name")
	opts.Extension, _ = stringArg(args, "extension")
	opts.FileType, _ = stringArg(args, "file_type")
	opts.Category, _ = stringArg(args, "category")
	opts.TextSearch, _ = stringArg(args, "text_search")
	limit, err := intArg(args, "limit", 30)
	if err != nil {
		return "Error: limit must be an integer"
	}
	opts.Limit = limit

	showStats, err := boolArg(args, "show_stats", false)
	if err != nil {
		return "Error: show_stats must be true or false"
	}

	results := cat.Query(opts)

	var b strings.Builder
	if showStats {
		stats := cat.GetStats()
		fmt.Fprintf(&b, "Catalog stats: %d files, %s total\n\n", stats.TotalFiles, formatBytes(stats.TotalSizeBytes))
	}
	if len(results) == 0 {
		b.WriteString("No matching files found.")
		return b.String()
	}
	for _, e := range results {
		fmt.Fprintf(&b, "  %s  [%s/%s, %s, converted: %s, status: %s]\n",
			e.Path, e.FileType, e.Category, formatBytes(e.SizeBytes), yesNo(e.ConvertedTo != ""), e.Status)
		if e.Summary != "" {
			fmt.Fprintf(&b, "    Summary: %s\n", e.Summary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// GetCatalogSummaryTool reports the catalog-wide statistics surfaced by
// QueryCatalogTool's show_stats flag, standalone.
type GetCatalogSummaryTool struct{}

func (t *GetCatalogSummaryTool) Name() string     { return "get_catalog_summary" }
func (t *GetCatalogSummaryTool) Category() string { return "content" }

func (t *GetCatalogSummaryTool) Schema() Schema {
	return Schema{
		Name:        "get_catalog_summary",
		Description: "Get an overview of the content catalog: file counts by type and status, conversion coverage.",
		Parameters:  []Parameter{},
	}
}

func (t *GetCatalogSummaryTool) IsAvailable(ctx agent.Context) bool { return catalogExists(ctx.BaseDir) }

func (t *GetCatalogSummaryTool) Execute(args map[string]any, ctx agent.Context) string {
	cat, errMsg := loadCatalog(ctx)
	if errMsg != "" {
		return errMsg
	}
	stats := cat.GetStats()

	var b strings.Builder
	fmt.Fprintf(&b, "Total files: %d (%s)\n", stats.TotalFiles, formatBytes(stats.TotalSizeBytes))
	fmt.Fprintf(&b, "With summary: %d, with conversion: %d\n", stats.WithSummary, stats.WithConversion)

	b.WriteString("By type:\n")
	for _, ft := range sortedKeys(stats.ByType) {
		fmt.Fprintf(&b, "  %s: %d\n", ft, stats.ByType[ft])
	}
	b.WriteString("By status:\n")
	for _, st := range sortedKeys(stats.ByStatus) {
		fmt.Fprintf(&b, "  %s: %d\n", st, stats.ByStatus[st])
	}
	return strings.TrimRight(b.String(), "\n")
}

// RefreshCatalogTool rescans base_dir, classifies what changed, optionally
// converts newly discovered or modified binary documents, and persists the
// result.
type RefreshCatalogTool struct {
	Convert func(path string, ctx agent.Context) (string, error)
}

func (t *RefreshCatalogTool) Name() string     { return "refresh_catalog" }
func (t *RefreshCatalogTool) Category() string { return "content" }

func (t *RefreshCatalogTool) Schema() Schema {
	return Schema{
		Name:        "refresh_catalog",
		Description: "Rescan the project directory for new, modified, or missing files and update the content catalog.",
		Parameters: []Parameter{
			{Name: "convert", Type: "boolean", Description: "Convert newly discovered or modified documents (default false)."},
			{Name: "remove_missing", Type: "boolean", Description: "Remove entries for files that no longer exist (default true)."},
		},
	}
}

func (t *RefreshCatalogTool) IsAvailable(ctx agent.Context) bool { return catalogExists(ctx.BaseDir) }

func (t *RefreshCatalogTool) Execute(args map[string]any, ctx agent.Context) string {
	resolvedBase, errMsg := checkReadAccess(".", ctx)
	if errMsg != "" {
		return errMsg
	}
	configDir := filepath.Join(ctx.BaseDir, ".flavia")
	if ok, reason := pathguard.CheckWrite(configDir, ctx.BaseDir, ctx.Permissions); !ok {
		return fmt.Sprintf("Error: %s", reason)
	}

	cat, errMsg := loadCatalog(ctx)
	if errMsg != "" {
		return errMsg
	}

	convert, err := boolArg(args, "convert", false)
	if err != nil {
		return "Error: convert must be true or false"
	}
	removeMissing, err := boolArg(args, "remove_missing", true)
	if err != nil {
		return "Error: remove_missing must be true or false"
	}

	summary, err := cat.Update()
	if err != nil {
		return fmt.Sprintf("Error: refreshing catalog: %v", err)
	}

	failedConversions := 0
	if convert && t.Convert != nil {
		for _, path := range append(append([]string{}, summary.New...), summary.Modified...) {
			entry, ok := cat.Files[path]
			if !ok || entry.FileType != "binary_document" {
				continue
			}
			if _, err := t.Convert(path, ctx); err != nil {
				failedConversions++
			}
		}
	}

	var removed []string
	if removeMissing {
		removed = cat.RemoveMissing()
	}
	cat.MarkAllCurrent()
	if err := cat.Save(configDir); err != nil {
		return fmt.Sprintf("Error: saving catalog: %v", err)
	}
	_ = resolvedBase

	var b strings.Builder
	fmt.Fprintf(&b, "Catalog refreshed: %d new, %d modified, %d missing, %d unchanged\n",
		len(summary.New), len(summary.Modified), len(summary.Missing), len(summary.Unchanged))
	if convert {
		fmt.Fprintf(&b, "Conversions attempted for new/modified binary documents (%d failed)\n", failedConversions)
	}
	if removeMissing {
		fmt.Fprintf(&b, "Removed %d missing entries\n", len(removed))
	}

	changed := append(append([]string{}, summary.New...), summary.Modified...)
	sort.Strings(changed)
	const maxListed = 20
	if len(changed) > 0 {
		b.WriteString("Changes:\n")
		for i, path := range changed {
			if i >= maxListed {
				fmt.Fprintf(&b, "  ...and %d more\n", len(changed)-maxListed)
				break
			}
			prefix := "+"
			for _, m := range summary.Modified {
				if m == path {
					prefix = "~"
					break
				}
			}
			fmt.Fprintf(&b, "  %s %s\n", prefix, path)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatBytes(n int64) string {
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

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

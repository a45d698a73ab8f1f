package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/chunker"
	"github.com/flavioluiz/flavia-go/retrieval"
	"github.com/flavioluiz/flavia-go/store"
)

// searchChunksMetrics is the narrow slice of *flavia.Metrics this tool needs;
// declared locally (rather than imported) so the tools package doesn't
// depend on the root package, which itself depends on tools.
type searchChunksMetrics interface {
	ObserveRetrievalLatency(seconds float64)
}

// SearchChunksTool is the primary grounding tool: it turns a natural
// language question into catalog-routed, RRF-fused, diversity-filtered
// hybrid search over the indexed chunk store.
type SearchChunksTool struct {
	Store    *store.Store
	Embedder retrieval.Embedder
	Catalog  *catalog.Catalog
	Settings retrieval.Settings
	Metrics  searchChunksMetrics
}

func (t *SearchChunksTool) Name() string     { return "search_chunks" }
func (t *SearchChunksTool) Category() string { return "content" }

func (t *SearchChunksTool) Schema() Schema {
	return Schema{
		Name: "search_chunks",
		Description: "Search the indexed document vault for passages relevant to a " +
			"question. Supports @mentions to scope the search to specific files, " +
			"and an exhaustive retrieval_mode for cross-document coverage.",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Natural language search query. May include @mentions of specific files.", Required: true},
			{Name: "top_k", Type: "integer", Description: "Maximum number of chunks to return (default 8)."},
			{Name: "file_type_filter", Type: "string", Description: "Restrict results to one catalog file_type (e.g. binary_document, video)."},
			{Name: "doc_name_filter", Type: "string", Description: "Restrict results to documents whose name contains this substring."},
			{Name: "debug", Type: "boolean", Description: "Log a retrieval debug trace to .flavia/rag_debug.jsonl."},
			{Name: "retrieval_mode", Type: "string", Description: "normal or exhaustive.", Enum: []string{"normal", "exhaustive"}},
		},
	}
}

func (t *SearchChunksTool) IsAvailable(ctx agent.Context) bool {
	_, err := os.Stat(filepath.Join(ctx.BaseDir, ".index", "index.db"))
	return err == nil
}

func (t *SearchChunksTool) Execute(args map[string]any, ctx agent.Context) string {
	query, ok := stringArg(args, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return "Error: Missing required parameter: query"
	}

	topK, err := intArg(args, "top_k", 8)
	if err != nil {
		return "Error: top_k " + err.Error()
	}
	if topK <= 0 {
		topK = 8
	}

	debug, err := boolArg(args, "debug", ctx.RAGDebug)
	if err != nil {
		return "Error: debug " + err.Error()
	}

	mode := retrieval.ModeNormal
	if rm, ok := stringArg(args, "retrieval_mode"); ok && rm != "" {
		if rm != "normal" && rm != "exhaustive" {
			return "Error: retrieval_mode must be 'normal' or 'exhaustive'"
		}
		mode = retrieval.RetrievalMode(rm)
	} else if looksExhaustiveQuery(query) {
		mode = retrieval.ModeExhaustive
	}

	strippedQuery, mentions := extractDocMentions(query)
	searchQuery := query
	var mentionDocIDs []string
	var unresolved, unindexed []string
	if len(mentions) > 0 && t.Catalog != nil {
		mentionDocIDs, unresolved, unindexed = resolveDocIDsFromMentions(mentions, t.Catalog, ctx.BaseDir)
		if strippedQuery != "" {
			searchQuery = strippedQuery
		}
	}

	fileTypeFilter, _ := stringArg(args, "file_type_filter")
	docNameFilter, _ := stringArg(args, "doc_name_filter")

	docIDsFilter := mentionDocIDs
	if (fileTypeFilter != "" || docNameFilter != "") && t.Catalog != nil {
		filtered := filterDocIDsByCatalog(t.Catalog, ctx.BaseDir, docIDsFilter, fileTypeFilter, docNameFilter)
		docIDsFilter = filtered
	}

	effectiveTopK := topK
	if mode == retrieval.ModeExhaustive && len(docIDsFilter) > 0 {
		perDoc := topK / len(docIDsFilter)
		if perDoc < 4 {
			perDoc = 4
		}
		if perDoc > 12 {
			perDoc = 12
		}
		effectiveTopK = perDoc * len(docIDsFilter)
		if effectiveTopK < topK {
			effectiveTopK = topK
		}
	}

	settings := t.Settings
	if settings == (retrieval.Settings{}) {
		settings = retrieval.DefaultSettings()
	}

	opts := retrieval.Options{
		DocIDsFilter:     docIDsFilter,
		TopK:             effectiveTopK,
		Settings:         settings,
		RetrievalMode:    mode,
		PreserveDocScope: len(docIDsFilter) > 0,
		Debug:            debug,
		TurnID:           ctx.RAGTurnID,
	}

	start := time.Now()
	results, err := retrieval.Retrieve(context.Background(), t.Store, t.Embedder, ctx.BaseDir, searchQuery, opts)
	if t.Metrics != nil {
		t.Metrics.ObserveRetrievalLatency(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Sprintf("Error: search failed: %v", err)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	var warnings []string
	if len(unresolved) > 0 {
		warnings = append(warnings, fmt.Sprintf("Could not resolve @mentions: %s", strings.Join(unresolved, ", ")))
	}
	if len(unindexed) > 0 {
		warnings = append(warnings, fmt.Sprintf("Files not yet indexed: %s", strings.Join(unindexed, ", ")))
	}

	return formatSearchResults(results, warnings)
}

// filterDocIDsByCatalog narrows (or seeds, if empty) a doc_id filter to
// entries whose file_type/name match the given filters.
func filterDocIDsByCatalog(cat *catalog.Catalog, baseDir string, existing []string, fileTypeFilter, docNameFilter string) []string {
	allowed := map[string]bool{}
	for _, id := range existing {
		allowed[id] = true
	}
	restrictToExisting := len(existing) > 0

	var matched []string
	seen := map[string]bool{}
	for _, entry := range cat.Files {
		if fileTypeFilter != "" && entry.FileType != fileTypeFilter {
			continue
		}
		if docNameFilter != "" && !strings.Contains(strings.ToLower(entry.Name), strings.ToLower(docNameFilter)) {
			continue
		}
		if entry.Status == "missing" || entry.ChecksumSHA256 == "" {
			continue
		}
		id := docIDFor(baseDir, entry)
		if restrictToExisting && !allowed[id] {
			continue
		}
		if !seen[id] {
			seen[id] = true
			matched = append(matched, id)
		}
	}
	sort.Strings(matched)
	return matched
}

func formatSearchResults(results []retrieval.Result, warnings []string) string {
	if len(results) == 0 {
		if len(warnings) > 0 {
			return "No results found.\n" + strings.Join(warnings, "\n")
		}
		return "No results found."
	}

	var b strings.Builder
	for i, r := range results {
		heading := "content"
		if len(r.HeadingPath) > 0 {
			heading = strings.Join(r.HeadingPath, " > ")
		} else if r.Modality != "" {
			heading = r.Modality
		}

		loc := ""
		if r.Locator.LineStart != nil && r.Locator.LineEnd != nil {
			loc = fmt.Sprintf(" (lines %d-%d)", *r.Locator.LineStart, *r.Locator.LineEnd)
		} else if r.Locator.TimeStart != nil {
			loc = fmt.Sprintf(" (time %s)", formatTimecode(*r.Locator.TimeStart))
		}

		fmt.Fprintf(&b, "[%d] %s — %s%s\n", i+1, r.DocName, heading, loc)
		fmt.Fprintf(&b, "    %q\n", r.Text)

		for _, tb := range r.TemporalBundle {
			fmt.Fprintf(&b, "    %s %s: %q\n", tb.TimeDisplay, tb.ModalityLabel, tb.Text)
		}
	}

	if len(warnings) > 0 {
		b.WriteString(strings.Join(warnings, "\n"))
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatTimecode(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func docIDFor(baseDir string, entry catalog.FileEntry) string {
	return chunker.ComputeDocID(baseDir, entry.Path, entry.ChecksumSHA256)
}

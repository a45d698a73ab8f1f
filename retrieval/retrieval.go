package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flavioluiz/flavia-go/store"
)

// tracer emits one span per Retrieve call plus a child span around Stage-A
// routing; fusion and temporal expansion get no spans of their own. With no
// SDK/exporter configured by the host process, otel's global no-op provider
// makes this a near-zero-cost no-op.
var tracer = otel.Tracer("github.com/flavioluiz/flavia-go/retrieval")

// RetrievalMode selects between the default top-k pass and the exhaustive
// coverage back-fill pass used for cross-document comparison requests.
type RetrievalMode string

const (
	ModeNormal     RetrievalMode = "normal"
	ModeExhaustive RetrievalMode = "exhaustive"
)

const (
	transcriptWindowSeconds = 15.0
	frameWindowSeconds      = 10.0
	frameNearestSeconds     = 30.0
	maxCoverageBackfillDocs = 8
)

// Settings carries the tunable retrieval knobs the agent loop's
// search_chunks tool forwards into Retrieve, mirroring the rag_* settings
// described in the external interfaces.
type Settings struct {
	RouterK             int
	VectorK             int
	FTSK                int
	RRFK                int
	MaxChunksPerDoc     int
	ExpandVideoTemporal bool
}

// DefaultSettings returns the engine's out-of-the-box tuning.
func DefaultSettings() Settings {
	return Settings{
		RouterK:             40,
		VectorK:             30,
		FTSK:                30,
		RRFK:                defaultRRFK,
		MaxChunksPerDoc:     5,
		ExpandVideoTemporal: true,
	}
}

// Embedder is the minimal dependency Retrieve needs from an LLM provider:
// turning the question into a single query vector. Kept as a narrow local
// interface (rather than importing the llm package directly) so retrieval
// stays a leaf package wired only to store/catalog.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TemporalItem is one entry in a result's temporal_bundle: a neighboring
// video chunk (transcript or frame) surrounding a matched anchor.
type TemporalItem struct {
	TimeDisplay   string  `json:"time_display"`
	ModalityLabel string  `json:"modality_label"` // "(Audio)" or "(Screen)"
	Modality      string  `json:"modality"`
	Text          string  `json:"text"`
	TimeStart     float64 `json:"time_start"`
}

// Result is a ResultRow plus the temporal context attached during Stage B's
// video-temporal-expansion pass.
type Result struct {
	store.ResultRow
	TemporalBundle []TemporalItem `json:"temporal_bundle,omitempty"`
}

// Trace is the structured observability record appended to
// <base_dir>/.flavia/rag_debug.jsonl when debug is requested. It is never
// mixed into LLM context.
type Trace struct {
	TurnID               string   `json:"turn_id,omitempty"`
	Question            string   `json:"question"`
	Settings             Settings `json:"settings"`
	RetrievalMode        string   `json:"retrieval_mode"`
	RouterAvailable      bool     `json:"router_available"`
	RouterDocCount       int      `json:"router_doc_count"`
	RouterElapsedMs      int64    `json:"router_elapsed_ms"`
	VectorHits           int      `json:"vector_hits"`
	VectorElapsedMs      int64    `json:"vector_elapsed_ms"`
	FTSHits              int      `json:"fts_hits"`
	FTSElapsedMs         int64    `json:"fts_elapsed_ms"`
	FusionElapsedMs      int64    `json:"fusion_elapsed_ms"`
	SkippedByDiversity   int      `json:"skipped_by_diversity"`
	CoverageBackfillDocs int      `json:"coverage_backfill_docs"`
	TemporalElapsedMs    int64    `json:"temporal_elapsed_ms"`
	ModalityDistribution map[string]int `json:"modality_distribution"`
	ResultCount          int      `json:"result_count"`
	TotalElapsedMs       int64    `json:"total_elapsed_ms"`
}

// Options configures one Retrieve call.
type Options struct {
	ConfigDir           string // defaults to <base_dir>/.flavia
	DocIDsFilter        []string
	TopK                int
	Settings            Settings
	RetrievalMode       RetrievalMode
	PreserveDocScope    bool // skip router narrowing, keep caller's filter verbatim
	Debug               bool
	// TurnID identifies the agent turn this retrieval belongs to (AgentContext's
	// rag_turn_id), carried into the trace so debug records from one
	// conversation turn can be correlated even across concurrent sub-agents.
	TurnID string
}

// Retrieve is the C5 public contract: catalog-routed, RRF-fused, diversity
// filtered, temporally-expanded hybrid search.
//
// Preconditions: top_k > 0, non-empty question, and (if a filter is
// provided) a non-empty set — any violation returns ([], nil) without work.
func Retrieve(ctx context.Context, st *store.Store, embedder Embedder, baseDir, question string, opts Options) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.String("flavia.retrieval_mode", string(opts.RetrievalMode)),
		attribute.Int("flavia.top_k", opts.TopK),
	))
	defer span.End()

	start := time.Now()

	if opts.TopK <= 0 || question == "" {
		return nil, nil
	}
	if opts.DocIDsFilter != nil && len(opts.DocIDsFilter) == 0 {
		return nil, nil
	}

	settings := opts.Settings
	if settings == (Settings{}) {
		settings = DefaultSettings()
	}
	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = flaviaConfigDir(baseDir)
	}
	mode := opts.RetrievalMode
	if mode == "" {
		mode = ModeNormal
	}

	rtrace := &Trace{
		TurnID:        opts.TurnID,
		Question:      question,
		Settings:      settings,
		RetrievalMode: string(mode),
	}

	effectiveFilter := opts.DocIDsFilter
	if !opts.PreserveDocScope {
		_, routerSpan := tracer.Start(ctx, "retrieval.router")
		routerStart := time.Now()
		route := routeDocIDsFromCatalog(configDir, baseDir, question, settings.RouterK, opts.DocIDsFilter)
		rtrace.RouterElapsedMs = time.Since(routerStart).Milliseconds()
		rtrace.RouterAvailable = route.available
		rtrace.RouterDocCount = len(route.docIDs)
		routerSpan.End()
		if route.available && len(route.docIDs) > 0 {
			effectiveFilter = route.docIDs
		}
	}

	fused, err := retrieveFused(ctx, st, embedder, question, effectiveFilter, settings, rtrace)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	results, skipped := diversityFilter(fused, settings.MaxChunksPerDoc, opts.TopK)
	rtrace.SkippedByDiversity = skipped

	if mode == ModeExhaustive && len(effectiveFilter) >= 2 {
		results = coverageBackfill(ctx, st, embedder, question, effectiveFilter, results, settings, rtrace)
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = Result{ResultRow: r}
	}

	if settings.ExpandVideoTemporal {
		temporalStart := time.Now()
		attachTemporalBundles(ctx, st, out)
		rtrace.TemporalElapsedMs = time.Since(temporalStart).Milliseconds()
	}

	rtrace.ModalityDistribution = modalityDistribution(results)
	rtrace.ResultCount = len(out)
	rtrace.TotalElapsedMs = time.Since(start).Milliseconds()

	if err := st.LogQuery(ctx, question, string(mode), rtrace.RouterDocCount, len(out), rtrace.TotalElapsedMs); err != nil {
		slog.Warn("retrieval: query audit log write failed", "error", err)
	}
	if opts.Debug {
		writeDebugTrace(baseDir, rtrace)
	}

	return out, nil
}

// retrieveFused runs Stage B: embed the question once, run vector KNN and
// FTS honoring the effective filter, and fuse with RRF.
func retrieveFused(ctx context.Context, st *store.Store, embedder Embedder, question string, docIDsFilter []string, settings Settings, trace *Trace) ([]store.ResultRow, error) {
	var vecResults, ftsResults []store.ResultRow

	if settings.VectorK > 0 {
		vecStart := time.Now()
		embeddings, err := embedder.Embed(ctx, []string{question})
		if err != nil {
			return nil, fmt.Errorf("embedding question: %w", err)
		}
		if len(embeddings) == 0 || len(embeddings[0]) == 0 {
			return nil, fmt.Errorf("embedder returned no vector for question")
		}
		vecResults, err = st.KNNSearch(ctx, embeddings[0], settings.VectorK, docIDsFilter)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		trace.VectorElapsedMs = time.Since(vecStart).Milliseconds()
		trace.VectorHits = len(vecResults)
	}

	if settings.FTSK > 0 {
		ftsStart := time.Now()
		var err error
		ftsResults, err = st.FTSSearch(ctx, question, settings.FTSK, docIDsFilter)
		if err != nil {
			return nil, fmt.Errorf("fts search: %w", err)
		}
		trace.FTSElapsedMs = time.Since(ftsStart).Milliseconds()
		trace.FTSHits = len(ftsResults)
	}

	fusionStart := time.Now()
	fused, _ := fuseRRF(vecResults, ftsResults, settings.RRFK)
	trace.FusionElapsedMs = time.Since(fusionStart).Milliseconds()
	return fused, nil
}

// diversityFilter walks the RRF-sorted list, capping how many chunks any one
// doc_id may contribute, and stops once top_k results are collected.
func diversityFilter(fused []store.ResultRow, maxPerDoc, topK int) ([]store.ResultRow, int) {
	if maxPerDoc <= 0 {
		maxPerDoc = len(fused)
	}
	docCounts := make(map[string]int)
	var out []store.ResultRow
	skipped := 0
	for _, r := range fused {
		if docCounts[r.DocID] >= maxPerDoc {
			skipped++
			continue
		}
		docCounts[r.DocID]++
		out = append(out, r)
		if len(out) >= topK {
			break
		}
	}
	return out, skipped
}

// coverageBackfill implements §4.5.3: in exhaustive mode with ≥2 scoped
// docs, fetch supplemental single-doc results for any doc not yet
// represented, then reorder so every originally-scoped doc has at least one
// hit before filling the rest by RRF order.
func coverageBackfill(ctx context.Context, st *store.Store, embedder Embedder, question string, scopeDocIDs []string, results []store.ResultRow, settings Settings, trace *Trace) []store.ResultRow {
	represented := make(map[string]bool, len(results))
	for _, r := range results {
		represented[r.DocID] = true
	}

	var missing []string
	for _, docID := range scopeDocIDs {
		if !represented[docID] {
			missing = append(missing, docID)
		}
	}
	if len(missing) == 0 {
		return results
	}
	if len(missing) > maxCoverageBackfillDocs {
		missing = missing[:maxCoverageBackfillDocs]
	}
	trace.CoverageBackfillDocs = len(missing)

	perDocK := settings.VectorK
	if settings.FTSK > perDocK {
		perDocK = settings.FTSK
	}
	if perDocK <= 0 {
		perDocK = 5
	} else if perDocK > 5 {
		perDocK = 5
	}

	supplemental := settings
	supplemental.VectorK = perDocK
	supplemental.FTSK = perDocK

	var backfilled []store.ResultRow
	for _, docID := range missing {
		fused, err := retrieveFused(ctx, st, embedder, question, []string{docID}, supplemental, &Trace{})
		if err != nil {
			slog.Warn("retrieval: coverage back-fill failed for doc", "doc_id", docID, "error", err)
			continue
		}
		if len(fused) > perDocK {
			fused = fused[:perDocK]
		}
		backfilled = append(backfilled, fused...)
	}

	merged := append(backfilled, results...)
	seen := make(map[string]bool, len(merged))
	var deduped []store.ResultRow
	for _, r := range merged {
		if seen[r.ChunkID] {
			continue
		}
		seen[r.ChunkID] = true
		deduped = append(deduped, r)
	}
	return deduped
}

// attachTemporalBundles implements §4.5.4: for each video_transcript/
// video_frame result, collect the neighboring transcript/frame chunks from
// the same doc within the anchor window and attach them as a TemporalBundle.
func attachTemporalBundles(ctx context.Context, st *store.Store, results []Result) {
	docCache := make(map[string][]store.ResultRow)

	for i := range results {
		r := &results[i]
		if r.Modality != "video_transcript" && r.Modality != "video_frame" {
			continue
		}
		if r.Locator.TimeStart == nil {
			continue
		}
		anchor := *r.Locator.TimeStart
		window := transcriptWindowSeconds
		if r.Modality == "video_frame" {
			window = frameWindowSeconds
		}

		docChunks, ok := docCache[r.DocID]
		if !ok {
			chunks, err := st.GetResultRowsByDocID(ctx, r.DocID, []string{"video_transcript", "video_frame"})
			if err != nil {
				slog.Warn("retrieval: temporal expansion lookup failed", "doc_id", r.DocID, "error", err)
				chunks = nil
			}
			docCache[r.DocID] = chunks
			docChunks = chunks
		}

		r.TemporalBundle = temporalBundleFor(docChunks, anchor, window)
	}
}

// temporalBundleFor collects transcript chunks within the window (sorted by
// time), then frame chunks within the window (sorted by time); if no frames
// qualify, falls back to the nearest frame within ±30s on each side.
func temporalBundleFor(docChunks []store.ResultRow, anchor, window float64) []TemporalItem {
	var transcripts, frames []store.ResultRow
	for _, c := range docChunks {
		if c.Locator.TimeStart == nil {
			continue
		}
		t := *c.Locator.TimeStart
		switch c.Modality {
		case "video_transcript":
			if t >= anchor-window && t <= anchor+window {
				transcripts = append(transcripts, c)
			}
		case "video_frame":
			if t >= anchor-window && t <= anchor+window {
				frames = append(frames, c)
			}
		}
	}

	if len(frames) == 0 {
		var nearest *store.ResultRow
		var nearestDist float64
		for idx, c := range docChunks {
			if c.Modality != "video_frame" || c.Locator.TimeStart == nil {
				continue
			}
			t := *c.Locator.TimeStart
			if t < anchor-frameNearestSeconds || t > anchor+frameNearestSeconds {
				continue
			}
			d := t - anchor
			if d < 0 {
				d = -d
			}
			if nearest == nil || d < nearestDist {
				c := docChunks[idx]
				nearest = &c
				nearestDist = d
			}
		}
		if nearest != nil {
			frames = append(frames, *nearest)
		}
	}

	sort.Slice(transcripts, func(i, j int) bool { return *transcripts[i].Locator.TimeStart < *transcripts[j].Locator.TimeStart })
	sort.Slice(frames, func(i, j int) bool { return *frames[i].Locator.TimeStart < *frames[j].Locator.TimeStart })

	var bundle []TemporalItem
	for _, c := range transcripts {
		bundle = append(bundle, TemporalItem{
			TimeDisplay:   formatTimeDisplay(*c.Locator.TimeStart),
			ModalityLabel: "(Audio)",
			Modality:      c.Modality,
			Text:          c.Text,
			TimeStart:     *c.Locator.TimeStart,
		})
	}
	for _, c := range frames {
		bundle = append(bundle, TemporalItem{
			TimeDisplay:   formatTimeDisplay(*c.Locator.TimeStart),
			ModalityLabel: "(Screen)",
			Modality:      c.Modality,
			Text:          c.Text,
			TimeStart:     *c.Locator.TimeStart,
		})
	}
	return bundle
}

func formatTimeDisplay(seconds float64) string {
	m := int(seconds) / 60
	s := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

func modalityDistribution(results []store.ResultRow) map[string]int {
	dist := make(map[string]int)
	for _, r := range results {
		dist[r.Modality]++
	}
	return dist
}

// writeDebugTrace appends one JSONL record to <base_dir>/.flavia/rag_debug.jsonl.
func writeDebugTrace(baseDir string, trace *Trace) {
	dir := flaviaConfigDir(baseDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("retrieval: debug trace dir create failed", "error", err)
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "rag_debug.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("retrieval: debug trace open failed", "error", err)
		return
	}
	defer f.Close()

	data, err := json.Marshal(trace)
	if err != nil {
		slog.Warn("retrieval: debug trace marshal failed", "error", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		slog.Warn("retrieval: debug trace write failed", "error", err)
	}
}

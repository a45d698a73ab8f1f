package flavia

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/chunker"
	"github.com/flavioluiz/flavia-go/store"
)

// Indexer runs the offline pipeline that refreshes the catalog, chunks every
// converted document, embeds the chunks, and upserts them into the index
// store. Writers run offline, never interleaved with an in-progress
// conversation, so this type has no relationship to Agent beyond sharing
// Settings.
type Indexer struct {
	Settings Settings
	Catalog  *catalog.Catalog
	Store    *store.Store
	Embedder interface {
		Embed(ctx context.Context, texts []string) ([][]float32, error)
	}
	Metrics *Metrics

	// EmbedBatchSize bounds how many chunk texts are sent to the embedder in
	// one call; 0 uses a sane default.
	EmbedBatchSize int
}

// IndexReport summarizes one Run call: the catalog delta plus chunk/upsert
// counts, for a CLI or caller to print.
type IndexReport struct {
	catalog.UpdateSummary
	FilesChunked   int
	ChunksUpserted int
	ChunksDeleted  int
	Errors         []string
}

// Run rescans the catalog, deletes stale chunks for modified/missing
// converted paths, chunks + embeds + upserts every current entry with a
// converted_to, and marks the catalog current again. A converted_to path
// change is handled as delete-old + insert-new rather than an in-place
// chunk rewrite.
func (ix *Indexer) Run(ctx context.Context) (IndexReport, error) {
	ctx, span := tracer.Start(ctx, "indexer.Run")
	defer span.End()

	report := IndexReport{}

	summary, err := ix.Catalog.Update()
	if err != nil {
		return report, fmt.Errorf("catalog update: %w", err)
	}
	report.UpdateSummary = summary
	span.SetAttributes(
		attribute.Int("flavia.new_files", len(summary.New)),
		attribute.Int("flavia.modified_files", len(summary.Modified)),
		attribute.Int("flavia.missing_files", len(summary.Missing)),
	)

	staleConvertedPaths := make([]string, 0, len(summary.Modified)+len(summary.Missing))
	for _, path := range append(append([]string{}, summary.Modified...), summary.Missing...) {
		if entry, ok := ix.Catalog.Files[path]; ok && entry.ConvertedTo != "" {
			staleConvertedPaths = append(staleConvertedPaths, entry.ConvertedTo)
		}
	}
	if len(staleConvertedPaths) > 0 {
		staleIDs, err := ix.Store.GetChunkIDsByConvertedPaths(ctx, staleConvertedPaths)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("looking up stale chunks: %v", err))
		} else if len(staleIDs) > 0 {
			if err := ix.Store.DeleteChunks(ctx, staleIDs); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("deleting stale chunks: %v", err))
			} else {
				report.ChunksDeleted = len(staleIDs)
			}
		}
	}

	ix.Catalog.RemoveMissing()

	for _, entry := range ix.Catalog.Files {
		if entry.ConvertedTo == "" {
			continue
		}
		chunks, err := chunker.ChunkEntry(entry, ix.Settings.BaseDir)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("chunking %s: %v", entry.Path, err))
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		report.FilesChunked++

		upserted, err := ix.embedAndUpsert(ctx, chunks)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("indexing %s: %v", entry.Path, err))
			continue
		}
		report.ChunksUpserted += upserted
	}

	ix.Catalog.MarkAllCurrent()
	if err := ix.Catalog.Save(ix.Settings.ConfigDir()); err != nil {
		return report, fmt.Errorf("saving catalog: %w", err)
	}

	if ix.Metrics != nil {
		if stats, err := ix.Store.GetStats(ctx); err == nil {
			ix.Metrics.IndexedDocs.Set(float64(stats.Documents))
		}
	}

	span.SetAttributes(
		attribute.Int("flavia.files_chunked", report.FilesChunked),
		attribute.Int("flavia.chunks_upserted", report.ChunksUpserted),
	)
	slog.Info("indexer: run complete",
		"new", len(summary.New), "modified", len(summary.Modified), "missing", len(summary.Missing),
		"files_chunked", report.FilesChunked, "chunks_upserted", report.ChunksUpserted)

	return report, nil
}

// embedAndUpsert batches chunk texts through the embedder (EmbedBatchSize at
// a time) and upserts the resulting vectors with their metadata.
func (ix *Indexer) embedAndUpsert(ctx context.Context, chunks []chunker.Chunk) (int, error) {
	batchSize := ix.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	total := 0
	now := time.Now().UTC().Format(time.RFC3339)
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := ix.Embedder.Embed(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embedding batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return total, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}

		items := make([]store.UpsertItem, len(batch))
		for i, c := range batch {
			record := c.ToIndexRecord()
			record.IndexedAt = now
			items[i] = store.UpsertItem{Record: record, Embedding: vectors[i], Text: c.Text}
		}

		inserted, updated, err := ix.Store.Upsert(ctx, items)
		if err != nil {
			return total, fmt.Errorf("upserting batch: %w", err)
		}
		total += inserted + updated
		if ix.Metrics != nil {
			ix.Metrics.IndexUpserts.Add(float64(inserted + updated))
		}
	}
	return total, nil
}

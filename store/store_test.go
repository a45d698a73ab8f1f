//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func sampleItem(chunkID, docID string, vec []float32, text string) UpsertItem {
	lineStart, lineEnd := 1, 10
	return UpsertItem{
		Record: IndexRecord{
			ChunkID:       chunkID,
			DocID:         docID,
			Modality:      "text",
			ConvertedPath: docID + ".md",
			Locator:       Locator{LineStart: &lineStart, LineEnd: &lineEnd},
			HeadingPath:   []string{"Intro"},
			DocName:       docID,
			FileType:      "text",
		},
		Embedding: vec,
		Text:      text,
	}
}

func TestUpsertInsertsAcrossAllThreeTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "the quick brown fox"),
		sampleItem("c2", "d1", []float32{0, 1, 0, 0}, "jumps over the lazy dog"),
	}
	inserted, updated, err := s.Upsert(ctx, items)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if inserted != 2 || updated != 0 {
		t.Fatalf("expected 2 inserted, 0 updated, got %d/%d", inserted, updated)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Chunks != 2 || stats.Embeddings != 2 || stats.FTSRows != 2 {
		t.Fatalf("expected parity across tables, got %+v", stats)
	}
	if !stats.TablesConsistent {
		t.Fatalf("expected tables_consistent=true, got %+v", stats)
	}
}

func TestUpsertIsIdempotentOnChunkID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "version one")
	if _, _, err := s.Upsert(ctx, []UpsertItem{item}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	item.Text = "version two"
	inserted, updated, err := s.Upsert(ctx, []UpsertItem{item})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted != 0 || updated != 1 {
		t.Fatalf("expected 0 inserted, 1 updated, got %d/%d", inserted, updated)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Chunks != 1 {
		t.Fatalf("expected 1 chunk after re-upsert, got %d", stats.Chunks)
	}
}

func TestKNNSearchEmptyFilterShortCircuits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "hello"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.KNNSearch(ctx, []float32{1, 0, 0, 0}, 5, []string{})
	if err != nil {
		t.Fatalf("knn search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for empty filter, got %d", len(results))
	}
}

func TestKNNSearchUnrestricted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "alpha"),
		sampleItem("c2", "d2", []float32{0, 1, 0, 0}, "beta"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.KNNSearch(ctx, []float32{1, 0, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("knn search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ChunkID != "c1" {
		t.Fatalf("expected c1 closest to query vector, got %s", results[0].ChunkID)
	}
}

func TestKNNSearchScopedFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "alpha"),
		sampleItem("c2", "d2", []float32{0.9, 0.1, 0, 0}, "beta"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.KNNSearch(ctx, []float32{1, 0, 0, 0}, 5, []string{"d2"})
	if err != nil {
		t.Fatalf("knn search: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "d2" {
		t.Fatalf("expected exactly the d2 chunk, got %+v", results)
	}
}

func TestFTSSearchExactTermMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "see section RFC-2616 for details"),
		sampleItem("c2", "d1", []float32{0, 1, 0, 0}, "unrelated content about cats"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.FTSSearch(ctx, "RFC-2616", 5, nil)
	if err != nil {
		t.Fatalf("fts search: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "c1" {
		t.Fatalf("expected exact match on c1, got %+v", results)
	}
}

func TestDeleteChunksRemovesFromAllTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Upsert(ctx, []UpsertItem{
		sampleItem("c1", "d1", []float32{1, 0, 0, 0}, "alpha"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.DeleteChunks(ctx, []string{"c1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Chunks != 0 || stats.Embeddings != 0 || stats.FTSRows != 0 {
		t.Fatalf("expected all tables empty after delete, got %+v", stats)
	}
}

func TestGetChunksByDocIDSortsByTimeStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	later := 120.0
	earlier := 30.0
	items := []UpsertItem{
		{
			Record: IndexRecord{
				ChunkID: "v2", DocID: "vid1", Modality: "video_transcript",
				Locator: Locator{TimeStart: &later}, HeadingPath: []string{},
				DocName: "vid1", FileType: "video",
			},
			Embedding: []float32{1, 0, 0, 0}, Text: "second window",
		},
		{
			Record: IndexRecord{
				ChunkID: "v1", DocID: "vid1", Modality: "video_transcript",
				Locator: Locator{TimeStart: &earlier}, HeadingPath: []string{},
				DocName: "vid1", FileType: "video",
			},
			Embedding: []float32{0, 1, 0, 0}, Text: "first window",
		},
	}
	if _, _, err := s.Upsert(ctx, items); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	records, err := s.GetChunksByDocID(ctx, "vid1", nil)
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(records) != 2 || records[0].ChunkID != "v1" || records[1].ChunkID != "v2" {
		t.Fatalf("expected v1 before v2 by time_start, got %+v", records)
	}
}

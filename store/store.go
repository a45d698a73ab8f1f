package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// IndexRecord is a C4 row: everything about a chunk except its embedding
// vector and full text, which live in chunks_vec and chunks_fts respectively.
type IndexRecord struct {
	ChunkID       string   `json:"chunk_id"`
	DocID         string   `json:"doc_id"`
	Modality      string   `json:"modality"`
	ConvertedPath string   `json:"converted_path,omitempty"`
	Locator       Locator  `json:"locator"`
	HeadingPath   []string `json:"heading_path"`
	DocName       string   `json:"doc_name"`
	FileType      string   `json:"file_type"`
	IndexedAt     string   `json:"indexed_at,omitempty"`
}

// Locator is either a line range (text modality) or a time range (video
// modalities), matching the Chunk invariant in the data model.
type Locator struct {
	LineStart *int     `json:"line_start,omitempty"`
	LineEnd   *int     `json:"line_end,omitempty"`
	TimeStart *float64 `json:"time_start,omitempty"`
	TimeEnd   *float64 `json:"time_end,omitempty"`
}

// UpsertItem is one row to write: an IndexRecord plus its embedding and the
// full chunk text/heading string that the FTS5 table indexes.
type UpsertItem struct {
	Record    IndexRecord
	Embedding []float32
	Text      string
}

// ResultRow is a chunk as returned by knn_search/fts_search/get_chunks_by_doc_id:
// the IndexRecord plus its text and a method-specific score.
type ResultRow struct {
	IndexRecord
	Text     string  `json:"text"`
	Distance float64 `json:"distance,omitempty"` // vector search: lower is closer
	Rank     float64 `json:"rank,omitempty"`     // fts search: bm25, lower is better
}

// Stats summarizes index store contents, including the cross-table parity
// invariant (chunks_vec, chunks_fts and chunks_meta share the same chunk_id
// set after every successful upsert/delete batch).
type Stats struct {
	Chunks         int  `json:"chunks"`
	Embeddings     int  `json:"embeddings"`
	FTSRows        int  `json:"fts_rows"`
	Documents      int  `json:"documents"`
	TablesConsistent bool `json:"tables_consistent"`
}

// Store wraps the single SQLite database holding the co-resident vector KNN
// table, FTS5 table, and metadata table.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at dbPath and initializes the
// schema, including the sqlite-vec and FTS5 virtual tables.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB { return s.db }

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int { return s.embeddingDim }

// Upsert writes a batch of chunks atomically: vector, FTS and metadata
// updated together per chunk_id. The FTS row is delete-then-insert since
// FTS5 has no native UPDATE. Returns (inserted, updated) counts.
func (s *Store) Upsert(ctx context.Context, items []UpsertItem) (inserted, updated int, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			r := item.Record
			var existed bool
			if e := tx.QueryRowContext(ctx,
				"SELECT 1 FROM chunks_meta WHERE chunk_id = ?", r.ChunkID).Scan(new(int)); e == nil {
				existed = true
			} else if e != sql.ErrNoRows {
				return e
			}

			locatorJSON, err := json.Marshal(r.Locator)
			if err != nil {
				return err
			}
			headingJSON, err := json.Marshal(r.HeadingPath)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chunks_meta (chunk_id, doc_id, modality, converted_path, locator_json,
					heading_json, doc_name, file_type, time_start)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(chunk_id) DO UPDATE SET
					doc_id = excluded.doc_id,
					modality = excluded.modality,
					converted_path = excluded.converted_path,
					locator_json = excluded.locator_json,
					heading_json = excluded.heading_json,
					doc_name = excluded.doc_name,
					file_type = excluded.file_type,
					time_start = excluded.time_start,
					indexed_at = CURRENT_TIMESTAMP
			`, r.ChunkID, r.DocID, r.Modality, r.ConvertedPath, string(locatorJSON),
				string(headingJSON), r.DocName, r.FileType, r.Locator.TimeStart); err != nil {
				return err
			}

			var rowidSeq int64
			err = tx.QueryRowContext(ctx,
				"SELECT rowid_seq FROM chunk_rowids WHERE chunk_id = ?", r.ChunkID).Scan(&rowidSeq)
			if err == sql.ErrNoRows {
				res, err := tx.ExecContext(ctx,
					"INSERT INTO chunk_rowids (chunk_id) VALUES (?)", r.ChunkID)
				if err != nil {
					return err
				}
				rowidSeq, err = res.LastInsertId()
				if err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO chunks_vec (rowid_seq, embedding) VALUES (?, ?)",
				rowidSeq, serializeFloat32(item.Embedding)); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				"DELETE FROM chunks_fts WHERE chunk_id = ?", r.ChunkID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chunks_fts (chunk_id, doc_id, modality, text, heading_path)
				VALUES (?, ?, ?, ?, ?)
			`, r.ChunkID, r.DocID, r.Modality, item.Text, strings.Join(r.HeadingPath, " > ")); err != nil {
				return err
			}

			if existed {
				updated++
			} else {
				inserted++
			}
		}
		return nil
	})
	return inserted, updated, err
}

// KNNSearch runs a vector KNN query. docIDsFilter == nil means unrestricted;
// a non-nil empty slice means explicit empty scope and returns no results
// without issuing a query; a non-empty filter requests the full-corpus KNN
// and post-filters by doc_id before truncating to k.
func (s *Store) KNNSearch(ctx context.Context, queryVec []float32, k int, docIDsFilter []string) ([]ResultRow, error) {
	if docIDsFilter != nil && len(docIDsFilter) == 0 {
		return nil, nil
	}

	knnK := k
	if len(docIDsFilter) > 0 {
		var total int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_meta").Scan(&total); err != nil {
			return nil, err
		}
		if total == 0 {
			return nil, nil
		}
		knnK = total
	}
	if knnK <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT cr.chunk_id, v.distance,
			m.doc_id, m.modality, m.converted_path, m.locator_json, m.heading_json,
			m.doc_name, m.file_type,
			COALESCE(f.text, '')
		FROM chunks_vec v
		JOIN chunk_rowids cr ON cr.rowid_seq = v.rowid_seq
		JOIN chunks_meta m ON m.chunk_id = cr.chunk_id
		LEFT JOIN chunks_fts f ON f.chunk_id = cr.chunk_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryVec), knnK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	filterSet := toSet(docIDsFilter)
	var results []ResultRow
	for rows.Next() {
		var r ResultRow
		var locatorJSON, headingJSON string
		if err := rows.Scan(&r.ChunkID, &r.Distance,
			&r.DocID, &r.Modality, &r.ConvertedPath, &locatorJSON, &headingJSON,
			&r.DocName, &r.FileType, &r.Text); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(locatorJSON), &r.Locator); err != nil {
			return nil, fmt.Errorf("decoding locator for chunk %s: %w", r.ChunkID, err)
		}
		if err := json.Unmarshal([]byte(headingJSON), &r.HeadingPath); err != nil {
			return nil, fmt.Errorf("decoding heading_path for chunk %s: %w", r.ChunkID, err)
		}
		if filterSet != nil && !filterSet[r.DocID] {
			continue
		}
		results = append(results, r)
		if len(docIDsFilter) > 0 && len(results) >= k {
			break
		}
	}
	return results, rows.Err()
}

// FTSSearch runs a full-text query, ranked by BM25 (lower rank = better
// match). The query is wrapped in double quotes (internal quotes doubled)
// to force exact-term matching of codes and identifiers.
func (s *Store) FTSSearch(ctx context.Context, query string, k int, docIDsFilter []string) ([]ResultRow, error) {
	if docIDsFilter != nil && len(docIDsFilter) == 0 {
		return nil, nil
	}
	if k <= 0 {
		return nil, nil
	}

	escaped := strings.ReplaceAll(query, `"`, `""`)
	ftsQuery := `"` + escaped + `"`

	args := []interface{}{ftsQuery}
	docFilter := ""
	if len(docIDsFilter) > 0 {
		placeholders := make([]string, len(docIDsFilter))
		for i, id := range docIDsFilter {
			placeholders[i] = "?"
			args = append(args, id)
		}
		docFilter = "AND m.doc_id IN (" + strings.Join(placeholders, ",") + ")"
	}
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT f.chunk_id, f.rank,
			m.doc_id, m.modality, m.converted_path, m.locator_json, m.heading_json,
			m.doc_name, m.file_type, f.text
		FROM chunks_fts f
		JOIN chunks_meta m ON m.chunk_id = f.chunk_id
		WHERE chunks_fts MATCH ? %s
		ORDER BY f.rank
		LIMIT ?
	`, docFilter), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var r ResultRow
		var locatorJSON, headingJSON string
		var rank float64
		if err := rows.Scan(&r.ChunkID, &rank,
			&r.DocID, &r.Modality, &r.ConvertedPath, &locatorJSON, &headingJSON,
			&r.DocName, &r.FileType, &r.Text); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(locatorJSON), &r.Locator); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(headingJSON), &r.HeadingPath); err != nil {
			return nil, err
		}
		r.Rank = rank
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteChunks removes chunks from all three co-resident tables.
func (s *Store) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
		args := make([]interface{}, len(chunkIDs))
		for i, id := range chunkIDs {
			args[i] = id
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM chunks_vec WHERE rowid_seq IN (
				SELECT rowid_seq FROM chunk_rowids WHERE chunk_id IN (%s)
			)`, placeholders), args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"DELETE FROM chunk_rowids WHERE chunk_id IN (%s)", placeholders), args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"DELETE FROM chunks_fts WHERE chunk_id IN (%s)", placeholders), args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"DELETE FROM chunks_meta WHERE chunk_id IN (%s)", placeholders), args...); err != nil {
			return err
		}
		return nil
	})
}

// GetChunkIDsByConvertedPaths returns the chunk_ids whose converted_path is
// one of the given paths, for re-chunking/purge when a converter re-runs.
func (s *Store) GetChunkIDsByConvertedPaths(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]interface{}, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT chunk_id FROM chunks_meta WHERE converted_path IN (%s)", placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunksByDocID returns all chunks for a document, optionally restricted
// to a set of modalities, sorted by time_start when present (stable for
// video chunks; text chunks with no time_start sort after them).
func (s *Store) GetChunksByDocID(ctx context.Context, docID string, modalities []string) ([]IndexRecord, error) {
	query := `
		SELECT chunk_id, doc_id, modality, converted_path, locator_json, heading_json,
			doc_name, file_type, indexed_at
		FROM chunks_meta
		WHERE doc_id = ?`
	args := []interface{}{docID}
	if len(modalities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(modalities)), ",")
		query += " AND modality IN (" + placeholders + ")"
		for _, m := range modalities {
			args = append(args, m)
		}
	}
	query += " ORDER BY time_start IS NULL, time_start, chunk_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []IndexRecord
	for rows.Next() {
		var r IndexRecord
		var locatorJSON, headingJSON string
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.Modality, &r.ConvertedPath,
			&locatorJSON, &headingJSON, &r.DocName, &r.FileType, &r.IndexedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(locatorJSON), &r.Locator); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(headingJSON), &r.HeadingPath); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetResultRowsByDocID returns all chunks for a document with their full
// text, optionally restricted to a set of modalities, sorted by time_start.
// Used by the retrieval temporal-expansion pass to pull neighboring video
// chunks around a matched anchor without a second KNN/FTS round-trip.
func (s *Store) GetResultRowsByDocID(ctx context.Context, docID string, modalities []string) ([]ResultRow, error) {
	query := `
		SELECT m.chunk_id, m.doc_id, m.modality, m.converted_path, m.locator_json, m.heading_json,
			m.doc_name, m.file_type, m.indexed_at, COALESCE(f.text, '')
		FROM chunks_meta m
		LEFT JOIN chunks_fts f ON f.chunk_id = m.chunk_id
		WHERE m.doc_id = ?`
	args := []interface{}{docID}
	if len(modalities) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(modalities)), ",")
		query += " AND m.modality IN (" + placeholders + ")"
		for _, m := range modalities {
			args = append(args, m)
		}
	}
	query += " ORDER BY m.time_start IS NULL, m.time_start, m.chunk_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ResultRow
	for rows.Next() {
		var r ResultRow
		var locatorJSON, headingJSON string
		if err := rows.Scan(&r.ChunkID, &r.DocID, &r.Modality, &r.ConvertedPath,
			&locatorJSON, &headingJSON, &r.DocName, &r.FileType, &r.IndexedAt, &r.Text); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(locatorJSON), &r.Locator); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(headingJSON), &r.HeadingPath); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetStats reports row counts and the chunk_id parity invariant across the
// three co-resident tables.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_meta").Scan(&stats.Chunks); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_vec").Scan(&stats.Embeddings); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks_fts").Scan(&stats.FTSRows); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT doc_id) FROM chunks_meta").Scan(&stats.Documents); err != nil {
		return nil, err
	}
	stats.TablesConsistent = stats.Chunks == stats.Embeddings && stats.Chunks == stats.FTSRows
	return stats, nil
}

// LogQuery writes an entry to the query audit log for debug/observability.
func (s *Store) LogQuery(ctx context.Context, question, retrievalMode string, routerDocCount, resultCount int, elapsedMs int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (question, retrieval_mode, router_doc_count, result_count, elapsed_ms)
		VALUES (?, ?, ?, ?, ?)
	`, question, retrievalMode, routerDocCount, resultCount, elapsedMs)
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

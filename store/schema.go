package store

import "fmt"

// schemaSQL returns the DDL for the index store. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Non-vector, non-text chunk metadata, keyed by the text chunk_id that
-- chunks_fts also carries; chunks_vec reaches the same chunk_id through the
-- chunk_rowids surrogate table below.
CREATE TABLE IF NOT EXISTS chunks_meta (
    chunk_id TEXT PRIMARY KEY,
    doc_id TEXT NOT NULL,
    modality TEXT NOT NULL,
    converted_path TEXT,
    locator_json TEXT NOT NULL,
    heading_json TEXT NOT NULL,
    doc_name TEXT NOT NULL,
    file_type TEXT NOT NULL,
    time_start REAL,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_meta_doc ON chunks_meta(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_meta_time ON chunks_meta(doc_id, time_start);

-- Vector embeddings via sqlite-vec. chunks_vec holds no chunk_id column;
-- vec0 requires an integer rowid so we keep a side table mapping
-- rowid <-> chunk_id text key.
CREATE TABLE IF NOT EXISTS chunk_rowids (
    rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
    chunk_id TEXT NOT NULL UNIQUE
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_vec USING vec0(
    rowid_seq INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Full-text search over chunk body + heading path, Porter stemming.
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    chunk_id UNINDEXED,
    doc_id UNINDEXED,
    modality UNINDEXED,
    text,
    heading_path,
    tokenize='porter unicode61'
);

-- Audit log of agent-issued retrieval calls, for debug/observability tooling.
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    retrieval_mode TEXT,
    router_doc_count INTEGER,
    result_count INTEGER,
    elapsed_ms INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`, embeddingDim)
}

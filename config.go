// Package flavia wires together the Path Guard, Catalog, Chunker, Index
// Store, Retriever, Agent Loop and Spawn Scheduler into a single locally
// hosted RAG assistant over a document vault, plus the ambient settings and
// sentinel errors shared across those packages.
package flavia

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flavioluiz/flavia-go/llm"
)

// Settings holds the rag_* tunables and provider configuration, per the
// core's environment/config inputs. RAGChunkMinTokens, RAGChunkMaxTokens and
// RAGVideoWindowSeconds are not read by anything: the chunker always uses its
// own fixed sizes (1200/3200 characters, 60-second video windows) whatever
// these fields hold. Nothing copies RAGCatalogRouterK, RAGVectorK, RAGFTSK,
// RAGRRFK, RAGMaxChunksPerDoc or RAGExpandVideoTemporal into a
// retrieval.Settings either: tools.SearchChunksTool uses its own Settings
// field and falls back to retrieval.DefaultSettings when that is zero.
type Settings struct {
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	Chat      llm.Config `json:"chat" yaml:"chat"`
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	RAGChunkMinTokens       int     `json:"rag_chunk_min_tokens" yaml:"rag_chunk_min_tokens"`
	RAGChunkMaxTokens       int     `json:"rag_chunk_max_tokens" yaml:"rag_chunk_max_tokens"`
	RAGVideoWindowSeconds   float64 `json:"rag_video_window_seconds" yaml:"rag_video_window_seconds"`
	RAGCatalogRouterK       int     `json:"rag_catalog_router_k" yaml:"rag_catalog_router_k"`
	RAGVectorK              int     `json:"rag_vector_k" yaml:"rag_vector_k"`
	RAGFTSK                 int     `json:"rag_fts_k" yaml:"rag_fts_k"`
	RAGRRFK                 int     `json:"rag_rrf_k" yaml:"rag_rrf_k"`
	RAGMaxChunksPerDoc      int     `json:"rag_max_chunks_per_doc" yaml:"rag_max_chunks_per_doc"`
	RAGExpandVideoTemporal  bool    `json:"rag_expand_video_temporal" yaml:"rag_expand_video_temporal"`
	ParallelWorkers         int     `json:"parallel_workers" yaml:"parallel_workers"`
	RAGDebug                bool    `json:"rag_debug" yaml:"rag_debug"`

	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// DefaultSettings returns the engine's out-of-the-box tuning, matching
// retrieval.DefaultSettings' defaults for the rag_* knobs they share.
func DefaultSettings(baseDir string) Settings {
	return Settings{
		BaseDir: baseDir,
		Chat: llm.Config{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedding: llm.Config{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		RAGChunkMinTokens:      300,
		RAGChunkMaxTokens:      800,
		RAGVideoWindowSeconds:  60.0,
		RAGCatalogRouterK:      40,
		RAGVectorK:             30,
		RAGFTSK:                30,
		RAGRRFK:                60,
		RAGMaxChunksPerDoc:     5,
		RAGExpandVideoTemporal: true,
		ParallelWorkers:        4,
		EmbeddingDim:           1536,
	}
}

// IndexDBPath returns the embedded index database path under base_dir.
func (s Settings) IndexDBPath() string {
	return filepath.Join(s.BaseDir, ".index", "index.db")
}

// ConfigDir returns the .flavia config directory under base_dir.
func (s Settings) ConfigDir() string {
	return filepath.Join(s.BaseDir, ".flavia")
}

// EnsureDirs creates the on-disk layout's directories (.flavia, .index,
// .converted) under base_dir if they don't already exist.
func (s Settings) EnsureDirs() error {
	for _, dir := range []string{s.ConfigDir(), filepath.Join(s.BaseDir, ".index"), filepath.Join(s.BaseDir, ".converted")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

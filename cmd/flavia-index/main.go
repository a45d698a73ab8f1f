// Command flavia-index runs the offline side of the core: catalog
// build/update and chunk/embed/upsert indexing. It never opens a
// conversation — that's the job of a host process embedding agent.Agent.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	flavia "github.com/flavioluiz/flavia-go"
	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/llm"
	"github.com/flavioluiz/flavia-go/store"
)

var (
	baseDir        string
	ignorePatterns []string
)

func main() {
	root := &cobra.Command{
		Use:           "flavia-index",
		Short:         "Offline catalog/index maintenance for a flavia document vault",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseDir, "base-dir", ".", "vault root directory")

	root.AddCommand(buildCmd(), updateCmd(), indexCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Full rescan of base-dir, replacing the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := flavia.DefaultSettings(baseDir)
			if err := settings.EnsureDirs(); err != nil {
				return err
			}
			cat := catalog.New(baseDir)
			if err := cat.Build(ignorePatterns); err != nil {
				return err
			}
			if err := cat.Save(settings.ConfigDir()); err != nil {
				return err
			}
			stats := cat.GetStats()
			fmt.Printf("Cataloged %d files under %s\n", stats.TotalFiles, baseDir)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ignorePatterns, "ignore", nil, "additional fnmatch ignore patterns")
	return cmd
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Incremental rescan: classify new/modified/missing files",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := flavia.DefaultSettings(baseDir)
			cat, err := catalog.Load(settings.ConfigDir(), baseDir)
			if err != nil {
				return fmt.Errorf("loading catalog (run 'build' first): %w", err)
			}
			summary, err := cat.Update()
			if err != nil {
				return err
			}
			if err := cat.Save(settings.ConfigDir()); err != nil {
				return err
			}
			fmt.Printf("new=%d modified=%d missing=%d unchanged=%d\n",
				len(summary.New), len(summary.Modified), len(summary.Missing), len(summary.Unchanged))
			return nil
		},
	}
}

func indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed, and upsert every converted document into the index store",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := flavia.DefaultSettings(baseDir)
			if err := settings.EnsureDirs(); err != nil {
				return err
			}
			settings.Embedding.APIKey = os.Getenv("FLAVIA_EMBEDDING_API_KEY")
			if settings.Embedding.APIKey == "" {
				return fmt.Errorf("FLAVIA_EMBEDDING_API_KEY is required to embed chunks")
			}
			if v := os.Getenv("FLAVIA_EMBEDDING_BASE_URL"); v != "" {
				settings.Embedding.BaseURL = v
			}

			cat, err := catalog.Load(settings.ConfigDir(), baseDir)
			if err != nil {
				return fmt.Errorf("loading catalog (run 'build' first): %w", err)
			}
			st, err := store.New(settings.IndexDBPath(), settings.EmbeddingDim)
			if err != nil {
				return fmt.Errorf("opening index store: %w", err)
			}
			defer st.Close()

			embedder, err := llm.NewProvider(settings.Embedding)
			if err != nil {
				return fmt.Errorf("configuring embedder: %w", err)
			}

			metrics := flavia.NewMetrics()
			ix := &flavia.Indexer{
				Settings: settings,
				Catalog:  cat,
				Store:    st,
				Embedder: embedder,
				Metrics:  metrics,
			}
			report, err := ix.Run(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("files_chunked=%d chunks_upserted=%d chunks_deleted=%d\n",
				report.FilesChunked, report.ChunksUpserted, report.ChunksDeleted)
			for _, e := range report.Errors {
				fmt.Fprintln(os.Stderr, "Warning:", e)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print index store stats (chunk/document counts, table parity)",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := flavia.DefaultSettings(baseDir)
			st, err := store.New(settings.IndexDBPath(), settings.EmbeddingDim)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.GetStats(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("chunks=%d embeddings=%d fts_rows=%d documents=%d tables_consistent=%v\n",
				stats.Chunks, stats.Embeddings, stats.FTSRows, stats.Documents, stats.TablesConsistent)
			return nil
		},
	}
}

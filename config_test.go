package flavia

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsPathHelpers(t *testing.T) {
	s := DefaultSettings("/vault")
	if got := s.IndexDBPath(); got != filepath.Join("/vault", ".index", "index.db") {
		t.Fatalf("unexpected index db path: %q", got)
	}
	if got := s.ConfigDir(); got != filepath.Join("/vault", ".flavia") {
		t.Fatalf("unexpected config dir: %q", got)
	}
}

func TestSettingsEnsureDirsCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s := DefaultSettings(dir)
	if err := s.EnsureDirs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{".flavia", ".index", ".converted"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected %s to be created as a directory: %v", sub, err)
		}
	}
}

func TestDefaultSettingsMatchesRetrievalDefaults(t *testing.T) {
	s := DefaultSettings("/vault")
	if s.RAGCatalogRouterK != 40 || s.RAGVectorK != 30 || s.RAGFTSK != 30 || s.RAGRRFK != 60 {
		t.Fatalf("unexpected retrieval defaults: %+v", s)
	}
	if !s.RAGExpandVideoTemporal {
		t.Fatal("expected video temporal expansion to default on")
	}
}

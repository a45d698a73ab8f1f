package tools

import (
	"strings"
	"testing"

	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/retrieval"
	"github.com/flavioluiz/flavia-go/store"
)

func TestFormatSearchResultsIncludesHeadingAndLocator(t *testing.T) {
	lineStart, lineEnd := 10, 20
	results := []retrieval.Result{
		{ResultRow: store.ResultRow{
			IndexRecord: store.IndexRecord{
				DocName:     "spec.pdf",
				HeadingPath: []string{"Section 1", "Scope"},
				Locator:     store.Locator{LineStart: &lineStart, LineEnd: &lineEnd},
			},
			Text: "the scope covers X",
		}},
	}

	out := formatSearchResults(results, nil)
	if !strings.Contains(out, "[1] spec.pdf — Section 1 > Scope (lines 10-20)") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, `"the scope covers X"`) {
		t.Fatalf("expected quoted chunk text, got %q", out)
	}
}

func TestFormatSearchResultsEmpty(t *testing.T) {
	if got := formatSearchResults(nil, nil); got != "No results found." {
		t.Fatalf("got %q", got)
	}
	got := formatSearchResults(nil, []string{"Could not resolve @mentions: x.pdf"})
	if !strings.Contains(got, "No results found.") || !strings.Contains(got, "Could not resolve") {
		t.Fatalf("expected warnings appended to empty result message, got %q", got)
	}
}

func TestFormatSearchResultsIncludesTemporalBundle(t *testing.T) {
	results := []retrieval.Result{
		{
			ResultRow: store.ResultRow{
				IndexRecord: store.IndexRecord{DocName: "lecture.mp4", Modality: "video_transcript"},
				Text:        "anchor text",
			},
			TemporalBundle: []retrieval.TemporalItem{
				{TimeDisplay: "01:40", ModalityLabel: "(Audio)", Text: "neighboring line"},
			},
		},
	}
	out := formatSearchResults(results, nil)
	if !strings.Contains(out, "01:40 (Audio): \"neighboring line\"") {
		t.Fatalf("expected temporal bundle line, got %q", out)
	}
}

func TestFormatTimecode(t *testing.T) {
	if got := formatTimecode(3725); got != "01:02:05" {
		t.Fatalf("got %q", got)
	}
}

func TestFilterDocIDsByCatalogAppliesFiltersAndDedupes(t *testing.T) {
	cat := &catalog.Catalog{Files: map[string]catalog.FileEntry{
		"a": {Path: "a", Name: "alpha.pdf", FileType: "pdf", Status: "current", ChecksumSHA256: "1"},
		"b": {Path: "b", Name: "beta.xlsx", FileType: "xlsx", Status: "current", ChecksumSHA256: "2"},
		"c": {Path: "c", Name: "gamma.pdf", FileType: "pdf", Status: "missing", ChecksumSHA256: "3"},
	}}

	got := filterDocIDsByCatalog(cat, "/base", nil, "pdf", "")
	if len(got) != 1 {
		t.Fatalf("expected only the non-missing pdf entry to match, got %v", got)
	}

	got = filterDocIDsByCatalog(cat, "/base", nil, "", "beta")
	if len(got) != 1 {
		t.Fatalf("expected name-substring filter to match exactly one entry, got %v", got)
	}
}

func TestFilterDocIDsByCatalogRestrictsToExistingSet(t *testing.T) {
	cat := &catalog.Catalog{Files: map[string]catalog.FileEntry{
		"a": {Path: "a", Name: "alpha.pdf", FileType: "pdf", Status: "current", ChecksumSHA256: "1"},
		"b": {Path: "b", Name: "beta.pdf", FileType: "pdf", Status: "current", ChecksumSHA256: "2"},
	}}
	existing := []string{docIDFor("/base", cat.Files["a"])}

	got := filterDocIDsByCatalog(cat, "/base", existing, "pdf", "")
	if len(got) != 1 || got[0] != existing[0] {
		t.Fatalf("expected the filter to stay within the existing doc_id set, got %v", got)
	}
}

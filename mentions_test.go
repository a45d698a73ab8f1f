package flavia

import (
	"os"
	"path/filepath"
	"testing"
)

func mentionSet(tokens ...string) map[string]bool {
	out := map[string]bool{}
	for _, t := range tokens {
		out[t] = true
	}
	return out
}

func TestExtractDocMentionsNormalizesAndDedupes(t *testing.T) {
	got := extractDocMentions(`Compare @"docs/Spec.PDF" with @./docs/spec.pdf, and @report.xlsx.`)
	want := mentionSet("docs/spec.pdf", "report.xlsx")
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("missing mention %q in %v", k, got)
		}
	}
}

func TestExtractDocMentionsIgnoresEmailLikeTokens(t *testing.T) {
	got := extractDocMentions("contact me at user@example.com about this")
	if len(got) != 0 {
		t.Fatalf("expected no mentions extracted from an email address, got %v", got)
	}
}

func TestExtractDocMentionsStripsTrailingPunctuation(t *testing.T) {
	got := extractDocMentions("see @report.pdf, and @other.pdf.")
	want := mentionSet("report.pdf", "other.pdf")
	if len(got) != len(want) || !got["report.pdf"] || !got["other.pdf"] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestMentionsEquivalentBySuffixAndStem(t *testing.T) {
	cases := []struct {
		required, candidate string
		want                 bool
	}{
		{"spec.pdf", "docs/spec.pdf", true},
		{"docs/spec.pdf", "spec.pdf", true},
		{"spec.pdf", "spec.xlsx", true}, // same stem
		{"spec.pdf", "other.pdf", false},
		{"", "spec.pdf", false},
	}
	for _, c := range cases {
		if got := mentionsEquivalent(c.required, c.candidate); got != c.want {
			t.Errorf("mentionsEquivalent(%q, %q) = %v, want %v", c.required, c.candidate, got, c.want)
		}
	}
}

func TestMentionSetsEqual(t *testing.T) {
	a := mentionSet("x", "y")
	b := mentionSet("y", "x")
	c := mentionSet("x")
	if !mentionSetsEqual(a, b) {
		t.Fatal("expected equal sets regardless of insertion order")
	}
	if mentionSetsEqual(a, c) {
		t.Fatal("expected unequal sets of different size to compare unequal")
	}
}

func TestRemainingMentions(t *testing.T) {
	required := mentionSet("a.pdf", "b.pdf", "c.pdf")
	covered := mentionSet("b.pdf")
	remaining := remainingMentions(required, covered)
	if len(remaining) != 2 || remaining["b.pdf"] {
		t.Fatalf("unexpected remaining set: %v", remaining)
	}
}

func TestFormatMentionsSortsAndPrefixes(t *testing.T) {
	got := formatMentions(mentionSet("b.pdf", "a.pdf"))
	if got != "@a.pdf, @b.pdf" {
		t.Fatalf("got %q", got)
	}
	if formatMentions(mentionSet()) != "(none)" {
		t.Fatalf("expected (none) for an empty set")
	}
}

func TestHasCitationMarkers(t *testing.T) {
	if !hasCitationMarkers("per the spec [1], this holds") {
		t.Fatal("expected a [1] marker to be detected")
	}
	if hasCitationMarkers("no markers here") {
		t.Fatal("expected no marker to be detected")
	}
}

func TestIsErrorResult(t *testing.T) {
	if !isErrorResult("Error: file not found") {
		t.Fatal("expected Error: prefix to be treated as an error")
	}
	if !isErrorResult("operation cancelled by user") {
		t.Fatal("expected operation cancelled to be treated as an error")
	}
	if isErrorResult("here are the results") {
		t.Fatal("expected ordinary text to not be treated as an error")
	}
}

func TestRequiresExhaustiveRetrieval(t *testing.T) {
	if !requiresExhaustiveRetrieval("list all items without descriptions") {
		t.Fatal("expected an exhaustive-sweep phrase to trigger exhaustive mode")
	}
	if requiresExhaustiveRetrieval("what is the capital of France?") {
		t.Fatal("expected an ordinary question to not trigger exhaustive mode")
	}
}

func TestRequiresCrossDocCoverage(t *testing.T) {
	if !requiresCrossDocCoverage("compare @a.pdf versus @b.pdf", 2) {
		t.Fatal("expected a comparison phrase with 2+ mentions to require coverage")
	}
	if requiresCrossDocCoverage("compare @a.pdf versus @b.pdf", 1) {
		t.Fatal("expected a single mention to not require coverage regardless of wording")
	}
	if requiresCrossDocCoverage("what does @a.pdf and @b.pdf say", 2) {
		t.Fatal("expected non-comparison wording with 2 mentions to not require coverage")
	}
}

func TestRequiresMentionScopedSearchNeedsToolAndIndex(t *testing.T) {
	dir := t.TempDir()
	msg := "what does @report.pdf say"

	if requiresMentionScopedSearch(msg, []string{"search_chunks"}, dir) {
		t.Fatal("expected no requirement without an index.db present")
	}
	if requiresMentionScopedSearch(msg, []string{"read_file"}, dir) {
		t.Fatal("expected no requirement when search_chunks isn't available")
	}
	if requiresMentionScopedSearch("no mentions here", []string{"search_chunks"}, dir) {
		t.Fatal("expected no requirement without any @mentions")
	}

	indexDir := filepath.Join(dir, ".index")
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(indexDir, "index.db"), nil, 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !requiresMentionScopedSearch(msg, []string{"search_chunks"}, dir) {
		t.Fatal("expected requirement once search_chunks is available and index.db exists")
	}
}

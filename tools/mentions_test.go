package tools

import (
	"testing"

	"github.com/flavioluiz/flavia-go/catalog"
)

func TestExtractDocMentionsQuotedAndBare(t *testing.T) {
	stripped, mentions := extractDocMentions(`compare @"Annual Report.pdf" with @budget.xlsx please`)
	if stripped != "compare with please" {
		t.Fatalf("unexpected stripped query: %q", stripped)
	}
	want := []string{"annual report.pdf", "budget.xlsx"}
	if len(mentions) != len(want) {
		t.Fatalf("got mentions %v, want %v", mentions, want)
	}
	for i, w := range want {
		if mentions[i] != w {
			t.Errorf("mention[%d] = %q, want %q", i, mentions[i], w)
		}
	}
}

func TestNormalizeMentionStripsPrefixAndPunctuation(t *testing.T) {
	got := normalizeMention(`./Docs\Spec.PDF,`)
	if got != "docs/spec.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestEntryMatchesMentionBySuffixAndStem(t *testing.T) {
	entry := catalog.FileEntry{Path: "docs/spec.pdf", Name: "spec.pdf"}
	cases := []struct {
		mention string
		want    bool
	}{
		{"docs/spec.pdf", true},
		{"spec.pdf", true},
		{"spec", true},
		{"other.pdf", false},
		{"", false},
	}
	for _, c := range cases {
		if got := entryMatchesMention(entry, c.mention); got != c.want {
			t.Errorf("entryMatchesMention(%+v, %q) = %v, want %v", entry, c.mention, got, c.want)
		}
	}
}

func TestResolveDocIDsFromMentionsSeparatesUnresolvedAndUnindexed(t *testing.T) {
	cat := &catalog.Catalog{Files: map[string]catalog.FileEntry{
		"docs/spec.pdf": {Path: "docs/spec.pdf", Name: "spec.pdf", Status: "current", ChecksumSHA256: "abc"},
		"docs/draft.pdf": {Path: "docs/draft.pdf", Name: "draft.pdf", Status: "current"}, // no checksum yet
	}}

	resolved, unresolved, unindexed := resolveDocIDsFromMentions(
		[]string{"spec.pdf", "draft.pdf", "missing.pdf"}, cat, "/base")

	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved doc_id, got %v", resolved)
	}
	if len(unresolved) != 1 || unresolved[0] != "missing.pdf" {
		t.Fatalf("expected missing.pdf unresolved, got %v", unresolved)
	}
	if len(unindexed) != 1 || unindexed[0] != "docs/draft.pdf" {
		t.Fatalf("expected docs/draft.pdf reported unindexed, got %v", unindexed)
	}
}

func TestLooksExhaustiveQuery(t *testing.T) {
	if !looksExhaustiveQuery("list every item without descriptions") {
		t.Fatal("expected exhaustive phrasing to be detected")
	}
	if looksExhaustiveQuery("what is the deadline for this report?") {
		t.Fatal("expected an ordinary question to not be flagged exhaustive")
	}
}

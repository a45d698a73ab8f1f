package reasoning

import (
	"testing"

	"github.com/flavioluiz/flavia-go/store"
)

func TestExtractCitationsMatchesBracketedOrdinal(t *testing.T) {
	chunks := []store.ResultRow{
		{IndexRecord: store.IndexRecord{ChunkID: "c1", DocName: "policy.pdf"}},
		{IndexRecord: store.IndexRecord{ChunkID: "c2", DocName: "handbook.pdf"}},
	}
	citations := ExtractCitations("The retention period is 90 days [2].", chunks)
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d: %+v", len(citations), citations)
	}
	if citations[0].ChunkID != "c2" || !citations[0].Verified {
		t.Fatalf("expected citation to resolve to c2 verified, got %+v", citations[0])
	}
}

func TestExtractCitationsMatchesDocumentName(t *testing.T) {
	chunks := []store.ResultRow{
		{IndexRecord: store.IndexRecord{ChunkID: "c1", DocName: "policy.pdf"}},
	}
	citations := ExtractCitations("See the retention rules (policy.pdf).", chunks)
	if len(citations) != 1 || citations[0].ChunkID != "c1" {
		t.Fatalf("expected citation matched to policy.pdf, got %+v", citations)
	}
}

func TestExtractCitationsUnmatchedReturnsUnverified(t *testing.T) {
	citations := ExtractCitations("Section 9.9 covers this.", nil)
	if len(citations) != 1 || citations[0].Verified {
		t.Fatalf("expected unverified citation when no chunks available, got %+v", citations)
	}
}

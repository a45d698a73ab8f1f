package flavia

import "testing"

func TestParseSearchResultRowsReconstructsToolOutput(t *testing.T) {
	toolResult := "[1] report.pdf — Introduction (lines 1-10)\n" +
		"    \"Retention is ninety days for standard accounts.\"\n" +
		"[2] handbook.pdf — Policy > Retention (lines 22-30)\n" +
		"    \"See section 4 for exceptions.\"\n"

	rows := parseSearchResultRows(toolResult)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].ChunkID != "1" || rows[0].DocName != "report.pdf" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].Text != "Retention is ninety days for standard accounts." {
		t.Fatalf("unexpected first row text: %q", rows[0].Text)
	}
	if rows[1].ChunkID != "2" || rows[1].DocName != "handbook.pdf" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestParseSearchResultRowsEmptyOnUnrecognizedText(t *testing.T) {
	if rows := parseSearchResultRows("No results found."); rows != nil {
		t.Fatalf("expected nil rows for unrecognized text, got %+v", rows)
	}
}

func TestVerifiedComparisonCitationsRequiresResolvableMarker(t *testing.T) {
	toolResult := "[1] report.pdf — Introduction (lines 1-10)\n" +
		"    \"Retention is ninety days for standard accounts.\"\n"

	if !verifiedComparisonCitations("Per report.pdf [1], retention is ninety days.", toolResult) {
		t.Fatalf("expected citation [1] to verify against the retrieved row")
	}
	if verifiedComparisonCitations("The answer mentions [9] which was never retrieved.", toolResult) {
		t.Fatalf("expected an out-of-range ordinal citation to fail verification")
	}
	if verifiedComparisonCitations("No citation markers here at all.", toolResult) {
		t.Fatalf("expected no citation markers to fail verification")
	}
}

func TestVerifiedComparisonCitationsFallsBackWithoutParsedRows(t *testing.T) {
	if !verifiedComparisonCitations("Answer with a marker [1] but unparsable tool output.", "search failed") {
		t.Fatalf("expected fallback to the literal marker check when no rows can be parsed")
	}
}

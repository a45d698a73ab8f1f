package flavia

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/flavioluiz/flavia-go/reasoning"
	"github.com/flavioluiz/flavia-go/store"
)

// searchResultLineRe matches one citation line of formatSearchResults'
// output ("[n] doc_name — heading (locator)") followed by its Go-quoted
// evidence-text line, letting the loop reconstruct enough of the retrieved
// set to verify citations against it without the search_chunks tool needing
// to return anything but plain text.
var searchResultLineRe = regexp.MustCompile(`(?m)^\[(\d+)\] (.+?) — (.+)\n    (".*")\s*$`)

// parseSearchResultRows reconstructs a minimal []store.ResultRow from a
// search_chunks tool result's rendered text, sufficient for
// reasoning.ExtractCitations to resolve "[n]"/doc-name/heading citations
// against what was actually retrieved this turn, and for ExtractSnippet to
// preview the evidence text backing a verified citation.
func parseSearchResultRows(toolResult string) []store.ResultRow {
	matches := searchResultLineRe.FindAllStringSubmatch(toolResult, -1)
	if len(matches) == 0 {
		return nil
	}
	rows := make([]store.ResultRow, 0, len(matches))
	for _, m := range matches {
		text, err := strconv.Unquote(m[4])
		if err != nil {
			text = m[4]
		}
		rows = append(rows, store.ResultRow{
			IndexRecord: store.IndexRecord{
				ChunkID:     m[1],
				DocName:     strings.TrimSpace(m[2]),
				HeadingPath: []string{strings.TrimSpace(m[3])},
			},
			Text: text,
		})
	}
	return rows
}

// answerWordSet tokenizes answer into the lowercased word set ExtractSnippet
// expects for its overlap scoring.
func answerWordSet(answer string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = true
	}
	return words
}

// verifiedComparisonCitations reports whether answer's citation markers
// resolve to something actually retrieved this turn, not just the presence
// of bracket syntax. A grounded answer with zero resolvable citations
// against a non-empty retrieved set is treated the same as having no
// citations at all, per the comparison-format policy (spec §4.6.3). Verified
// citations are logged with a preview of the evidence text they resolved to,
// for operators inspecting slog output.
func verifiedComparisonCitations(answer, lastSearchResultText string) bool {
	if !hasCitationMarkers(answer) {
		return false
	}
	rows := parseSearchResultRows(lastSearchResultText)
	if len(rows) == 0 {
		// No retrieved rows to verify against (e.g. unparsed tool output);
		// fall back to the spec's literal marker check.
		return true
	}

	byChunkID := make(map[string]store.ResultRow, len(rows))
	for _, r := range rows {
		byChunkID[r.ChunkID] = r
	}

	words := answerWordSet(answer)
	anyVerified := false
	for _, c := range reasoning.ExtractCitations(answer, rows) {
		if !c.Verified {
			continue
		}
		anyVerified = true
		if row, ok := byChunkID[c.ChunkID]; ok {
			if snippet := reasoning.ExtractSnippet(row.Text, words); snippet != "" {
				slog.Debug("agent: citation verified", "ref", c.SourceRef, "doc", row.DocName, "evidence", snippet)
			}
		}
	}
	return anyVerified
}

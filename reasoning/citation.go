// Package reasoning holds small post-processing passes over an agent's
// final answer, starting with citation-marker extraction and verification.
package reasoning

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flavioluiz/flavia-go/store"
)

// Citation represents an extracted citation from an answer.
type Citation struct {
	Text      string `json:"text"`       // The cited text
	SourceRef string `json:"source_ref"` // Reference string (e.g., "doc.pdf, Section 3.2")
	ChunkID   string `json:"chunk_id"`   // Matched chunk ID, "" if unmatched
	Verified  bool   `json:"verified"`   // Whether the citation was verified against retrieved chunks
}

// citationPatterns recognizes common citation styles, plus the bracketed
// numeric marker (e.g. "[1]") that the agent loop requires in every
// grounded final answer.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([^)]+\.(?:pdf|docx|xlsx|pptx|md))[^)]*\)`), // (document.pdf, ...)
	regexp.MustCompile(`(?:Section|Sec\.|§)\s*(\d+(?:\.\d+)*)`),       // Section 3.2
	regexp.MustCompile(`(?:Page|p\.)\s*(\d+)`),                        // Page 12
	regexp.MustCompile(`\[(\d+)\]`),                                   // [1]
}

// ExtractCitations finds citation references in an answer text and tries to
// verify each one against the chunks the agent actually retrieved.
func ExtractCitations(answer string, chunks []store.ResultRow) []Citation {
	var citations []Citation
	seen := make(map[string]bool)

	for _, pattern := range citationPatterns {
		matches := pattern.FindAllStringSubmatch(answer, -1)
		for _, match := range matches {
			if len(match) < 2 {
				continue
			}
			ref := strings.TrimSpace(match[0])
			if seen[ref] {
				continue
			}
			seen[ref] = true

			citation := Citation{Text: ref, SourceRef: match[1]}
			citation.ChunkID, citation.Verified = matchCitationToChunk(match[1], chunks)
			citations = append(citations, citation)
		}
	}

	return citations
}

// matchCitationToChunk tries to find the chunk that a citation marker
// refers to, by document name, heading path, or 1-based ordinal position
// in the retrieved set (covering the common "[1]"-style numbered marker).
func matchCitationToChunk(ref string, chunks []store.ResultRow) (string, bool) {
	lowerRef := strings.ToLower(ref)

	for _, c := range chunks {
		if strings.Contains(strings.ToLower(c.DocName), lowerRef) {
			return c.ChunkID, true
		}
	}

	for _, c := range chunks {
		for _, h := range c.HeadingPath {
			if strings.Contains(strings.ToLower(h), lowerRef) {
				return c.ChunkID, true
			}
		}
	}

	var ordinal int
	if _, err := fmt.Sscanf(ref, "%d", &ordinal); err == nil && ordinal > 0 && ordinal <= len(chunks) {
		return chunks[ordinal-1].ChunkID, true
	}

	return "", false
}

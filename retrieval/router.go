package retrieval

import (
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/flavioluiz/flavia-go/catalog"
	_ "github.com/mattn/go-sqlite3"
)

// routeResult distinguishes the three Stage-A outcomes the caller must
// handle differently: "routing unavailable", "ran but found nothing", and
// "here is a shortlist".
type routeResult struct {
	docIDs    []string
	available bool
}

var routerTokenRe = regexp.MustCompile(`[A-Za-z0-9_-]{2,}`)

// catalogRouterTokens extracts normalized, order-preserving distinct terms
// from a question for Stage-A routing.
func catalogRouterTokens(question string) []string {
	matches := routerTokenRe.FindAllString(strings.ToLower(question), -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, t := range matches {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// catalogDocID reproduces the chunker's doc_id derivation so the router can
// shortlist by the same identifier the index store uses. Deliberately
// duplicated rather than imported from the chunker package, which keeps
// catalog a leaf dependency of both.
func catalogDocID(baseDir, path, checksum string) string {
	raw := fmt.Sprintf("%s:%s:%s", baseDir, path, checksum)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// routeDocIDsFromCatalog is the Stage A router: it shortlists candidate
// doc_ids using catalog content cards (path/name/type/category/summary/tags/
// source metadata) before Stage B ever touches the vector or FTS index.
//
// Returns:
//   - available=false: routing unavailable (catalog missing/unreadable)
//   - available=true, docIDs=[]: routing ran but found no candidates
//   - available=true, docIDs=[...]: shortlisted candidates
func routeDocIDsFromCatalog(configDir, baseDir, question string, shortlistK int, scopeDocIDs []string) routeResult {
	if shortlistK <= 0 {
		return routeResult{docIDs: []string{}, available: true}
	}

	cat, err := catalog.Load(configDir, baseDir)
	if err != nil {
		return routeResult{available: false}
	}

	var scope map[string]bool
	if scopeDocIDs != nil {
		scope = make(map[string]bool, len(scopeDocIDs))
		for _, id := range scopeDocIDs {
			scope[id] = true
		}
	}

	type row = struct {
		docID      string
		searchable string
	}
	var rows []row
	for _, card := range cat.ContentCards() {
		docID := catalogDocID(baseDir, card.Path, card.ChecksumSHA256)
		if scope != nil && !scope[docID] {
			continue
		}
		rows = append(rows, row{docID: docID, searchable: card.Searchable})
	}
	if len(rows) == 0 {
		return routeResult{docIDs: []string{}, available: true}
	}

	tokens := catalogRouterTokens(question)
	if len(tokens) == 0 {
		return routeResult{docIDs: []string{}, available: true}
	}
	if len(tokens) > 16 {
		tokens = tokens[:16]
	}

	shortlisted, err := routeViaEphemeralFTS(rows, tokens, shortlistK)
	if err != nil {
		return routeResult{docIDs: routeViaTokenOverlap(rows, tokens, shortlistK), available: true}
	}
	return routeResult{docIDs: shortlisted, available: true}
}

func routeViaEphemeralFTS(rows []struct {
	docID      string
	searchable string
}, tokens []string, shortlistK int) ([]string, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE VIRTUAL TABLE catalog_fts USING fts5(
		doc_id UNINDEXED, content, tokenize = 'porter unicode61'
	)`); err != nil {
		return nil, err
	}

	stmt, err := db.Prepare(`INSERT INTO catalog_fts (doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if _, err := stmt.Exec(r.docID, r.searchable); err != nil {
			stmt.Close()
			return nil, err
		}
	}
	stmt.Close()

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = fmt.Sprintf(`"%s"`, strings.ReplaceAll(t, `"`, `""`))
	}
	ftsQuery := strings.Join(quoted, " OR ")

	queryRows, err := db.Query(`
		SELECT doc_id FROM catalog_fts
		WHERE catalog_fts MATCH ?
		ORDER BY bm25(catalog_fts) ASC
		LIMIT ?`, ftsQuery, shortlistK)
	if err != nil {
		return nil, err
	}
	defer queryRows.Close()

	var shortlisted []string
	seen := make(map[string]bool)
	for queryRows.Next() {
		var docID string
		if err := queryRows.Scan(&docID); err != nil {
			return nil, err
		}
		if !seen[docID] {
			seen[docID] = true
			shortlisted = append(shortlisted, docID)
		}
	}
	if shortlisted == nil {
		shortlisted = []string{}
	}
	return shortlisted, queryRows.Err()
}

// routeViaTokenOverlap is the graceful fallback used when the ephemeral
// FTS5 table cannot be built (e.g. fts5 unavailable in this sqlite build):
// rank candidates by raw token overlap instead of BM25.
func routeViaTokenOverlap(rows []struct {
	docID      string
	searchable string
}, tokens []string, shortlistK int) []string {
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	type scored struct {
		docID   string
		overlap int
	}
	var candidates []scored
	for _, r := range rows {
		docTerms := routerTokenRe.FindAllString(strings.ToLower(r.searchable), -1)
		overlap := 0
		seen := make(map[string]bool)
		for _, dt := range docTerms {
			if tokenSet[dt] && !seen[dt] {
				seen[dt] = true
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{docID: r.docID, overlap: overlap})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].docID < candidates[j].docID
	})

	if len(candidates) > shortlistK {
		candidates = candidates[:shortlistK]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.docID
	}
	return out
}

func flaviaConfigDir(baseDir string) string {
	return filepath.Join(baseDir, ".flavia")
}

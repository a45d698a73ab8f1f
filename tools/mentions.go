package tools

import (
	"regexp"
	"sort"
	"strings"

	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/chunker"
)

// docMentionQuoted matches @"some file name.pdf" mentions; docMentionBare
// matches bare @token mentions (stopping at whitespace/quote characters).
var (
	docMentionQuoted = regexp.MustCompile(`@"([^"]+)"`)
	docMentionBare   = regexp.MustCompile(`@([^\s"@]+)`)
	mentionTrailingPunct = regexp.MustCompile(`[.,;:!?)\]}'"]+$`)
)

// exhaustiveQueryPatterns are keywords that imply the caller wants an
// exhaustive, cross-document sweep even when retrieval_mode wasn't passed
// explicitly.
var exhaustiveQueryPatterns = []string{
	"todos os itens", "item por item", "sem descriç", "lista completa",
	"compare", "versus", " vs ", "expected x", "esperado x",
	"all items", "item by item", "without descriptions", "list only",
	"comparison", "every item", "each item",
}

// extractDocMentions strips @mentions out of query and returns the cleaned
// query plus the normalized mention tokens found, in order of appearance.
func extractDocMentions(query string) (string, []string) {
	var mentions []string
	stripped := query

	quoted := docMentionQuoted.FindAllStringSubmatchIndex(stripped, -1)
	for _, m := range quoted {
		mentions = append(mentions, normalizeMention(stripped[m[2]:m[3]]))
	}
	stripped = docMentionQuoted.ReplaceAllString(stripped, " ")

	bare := docMentionBare.FindAllStringSubmatch(stripped, -1)
	for _, m := range bare {
		mentions = append(mentions, normalizeMention(m[1]))
	}
	stripped = docMentionBare.ReplaceAllString(stripped, " ")

	stripped = strings.Join(strings.Fields(stripped), " ")
	return stripped, mentions
}

// normalizeMention matches _normalize_ref: trims whitespace, folds
// backslashes to forward slashes, strips a leading "./", strips trailing
// punctuation, and lowercases.
func normalizeMention(value string) string {
	v := strings.TrimSpace(value)
	v = strings.ReplaceAll(v, "\\", "/")
	v = strings.TrimPrefix(v, "./")
	v = mentionTrailingPunct.ReplaceAllString(v, "")
	return strings.ToLower(v)
}

// entryMatchesMention checks whether entry is referred to by normalized,
// matching against its path, name, converted_to target, frame descriptions,
// and file stem, with suffix matching on path components.
func entryMatchesMention(entry catalog.FileEntry, normalized string) bool {
	if normalized == "" {
		return false
	}
	candidates := []string{
		strings.ToLower(entry.Path),
		strings.ToLower(entry.Name),
		strings.ToLower(entry.ConvertedTo),
	}
	if idx := strings.LastIndex(entry.Name, "."); idx > 0 {
		candidates = append(candidates, strings.ToLower(entry.Name[:idx]))
	}
	for _, fd := range entry.FrameDescriptions {
		candidates = append(candidates, strings.ToLower(fd))
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if c == normalized {
			return true
		}
		if strings.HasSuffix(c, "/"+normalized) {
			return true
		}
	}
	return false
}

// resolveDocIDsFromMentions maps the @mention tokens in a query to doc_ids
// via the catalog, reporting which mentions resolved to nothing and which
// resolved to a file that hasn't been indexed yet.
func resolveDocIDsFromMentions(mentions []string, cat *catalog.Catalog, baseDir string) (resolved []string, unresolved []string, unindexed []string) {
	seen := map[string]bool{}
	for _, mention := range mentions {
		var matched []catalog.FileEntry
		for _, entry := range cat.Files {
			if entryMatchesMention(entry, mention) {
				matched = append(matched, entry)
			}
		}
		if len(matched) == 0 {
			unresolved = append(unresolved, mention)
			continue
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].Path < matched[j].Path })
		for _, entry := range matched {
			if entry.Status == "missing" || entry.ChecksumSHA256 == "" {
				unindexed = append(unindexed, entry.Path)
				continue
			}
			docID := chunker.ComputeDocID(baseDir, entry.Path, entry.ChecksumSHA256)
			if !seen[docID] {
				seen[docID] = true
				resolved = append(resolved, docID)
			}
		}
	}
	return resolved, unresolved, unindexed
}

// looksExhaustiveQuery reports whether query contains wording that implies
// an exhaustive, cross-document retrieval even without an explicit
// retrieval_mode argument.
func looksExhaustiveQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, pat := range exhaustiveQueryPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

package flavia

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// mentionTokenRe matches @mentions: a quoted form or a bare run of non-space,
// non-@, non-quote characters. Go's RE2 engine has no lookbehind, so the
// "not preceded by a letter/digit" guard (keeping emails like a@b.com from
// being read as a mention) is applied separately in extractDocMentions.
var mentionTokenRe = regexp.MustCompile(`@(?:"[^"]+"|'[^']+'|[^\s@'"]+)`)

const mentionTrailingPunct = ".,;:!?)]}"

// crossDocComparisonPatterns flags requests that explicitly ask to compare
// multiple referenced documents against each other.
var crossDocComparisonPatterns = []string{
	"compare", "comparar", "comparação", "comparacao", "versus", " vs ",
	"esperado x", "enviado x", "expected x", "item por item", "subitem por subitem",
}

// exhaustiveQueryPatterns flags requests that want a complete, item-by-item
// sweep rather than a best-effort top-k answer.
var exhaustiveQueryPatterns = []string{
	"todos os itens", "todos os subitens", "item por item", "subitem por subitem",
	"sem descrições", "sem descricoes", "sem descrição", "sem descricao",
	"lista completa", "apenas lista", "somente lista", "sem detalhes",
	"compare", "comparar", "comparação", "comparacao", "versus",
	"esperado x", "enviado x", "expected x",
	"all items", "all subitems", "item by item", "subitem by subitem",
	"comparison", "without descriptions", "list only",
}

// writeToolNames is checked against each dispatched tool call to track
// whether the run attempted (and whether it managed) a write.
var writeToolNames = map[string]bool{
	"write_file": true, "edit_file": true, "insert_text": true,
	"append_file": true, "delete_file": true,
	"create_directory": true, "remove_directory": true,
}

var citationMarkerRe = regexp.MustCompile(`\[\d+\]`)

func isAlnumRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// extractDocMentions pulls the normalized set of @mention tokens out of
// free text.
func extractDocMentions(text string) map[string]bool {
	mentions := map[string]bool{}
	if strings.TrimSpace(text) == "" {
		return mentions
	}
	for _, loc := range mentionTokenRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if isAlnumRune(prev) {
				continue
			}
		}
		raw := strings.TrimSpace(text[start:end])
		if !strings.HasPrefix(raw, "@") {
			continue
		}
		token := strings.TrimSpace(raw[1:])
		if len(token) >= 2 {
			if (token[0] == '\'' && token[len(token)-1] == '\'') || (token[0] == '"' && token[len(token)-1] == '"') {
				token = token[1 : len(token)-1]
			}
		}
		token = strings.TrimRight(token, mentionTrailingPunct)
		token = normalizeMentionToken(token)
		if token != "" {
			mentions[token] = true
		}
	}
	return mentions
}

// normalizeMentionToken folds a raw mention token into a form suitable for
// set equality: forward slashes, no leading "./", lowercase, no surrounding
// slashes.
func normalizeMentionToken(token string) string {
	normalized := strings.TrimSpace(token)
	normalized = strings.ReplaceAll(normalized, "\\", "/")
	for strings.HasPrefix(normalized, "./") {
		normalized = normalized[2:]
	}
	normalized = strings.ToLower(normalized)
	return strings.Trim(normalized, "/")
}

// mentionsEquivalent reports whether two mention tokens likely refer to the
// same file: exact match, one a path-suffix of the other, or same stem.
func mentionsEquivalent(required, candidate string) bool {
	if required == candidate {
		return true
	}
	if required == "" || candidate == "" {
		return false
	}
	if strings.HasSuffix(required, "/"+candidate) || strings.HasSuffix(candidate, "/"+required) {
		return true
	}
	return mentionStem(required) == mentionStem(candidate)
}

func mentionStem(p string) string {
	base := path.Base(p)
	if idx := strings.LastIndex(base, "."); idx > 0 {
		return base[:idx]
	}
	return base
}

// formatMentions renders a sorted mention set for user/system notices.
func formatMentions(mentions map[string]bool) string {
	if len(mentions) == 0 {
		return "(none)"
	}
	sorted := sortedMentionSlice(mentions)
	parts := make([]string, len(sorted))
	for i, m := range sorted {
		parts[i] = "@" + m
	}
	return strings.Join(parts, ", ")
}

func sortedMentionSlice(mentions map[string]bool) []string {
	out := make([]string, 0, len(mentions))
	for m := range mentions {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func remainingMentions(required, covered map[string]bool) map[string]bool {
	out := map[string]bool{}
	for m := range required {
		if !covered[m] {
			out[m] = true
		}
	}
	return out
}

func mentionSetsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// hasCitationMarkers reports whether text contains an inline retrieval
// citation marker like [1].
func hasCitationMarkers(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return citationMarkerRe.MatchString(text)
}

// isErrorResult reports whether a tool result string indicates failure or
// cancellation, the way the loop distinguishes a grounded search from a
// failed one.
func isErrorResult(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(lowered, "error:") || strings.HasPrefix(lowered, "operation cancelled")
}

// requiresExhaustiveRetrieval reports whether userMessage's wording implies
// the retrieval should default to an exhaustive, cross-document sweep.
func requiresExhaustiveRetrieval(userMessage string) bool {
	if strings.TrimSpace(userMessage) == "" {
		return false
	}
	lowered := strings.ToLower(userMessage)
	for _, pat := range exhaustiveQueryPatterns {
		if strings.Contains(lowered, pat) {
			return true
		}
	}
	return false
}

// requiresCrossDocCoverage reports whether a multi-mention request should be
// held to covering every mentioned scope before answering.
func requiresCrossDocCoverage(userMessage string, mentionCount int) bool {
	if mentionCount < 2 || strings.TrimSpace(userMessage) == "" {
		return false
	}
	lowered := strings.ToLower(userMessage)
	for _, pat := range crossDocComparisonPatterns {
		if strings.Contains(lowered, pat) {
			return true
		}
	}
	return false
}

// requiresMentionScopedSearch reports whether userMessage's @mentions should
// force a grounded search_chunks call before the run may answer: the agent
// must both have search_chunks available and an index to search.
func requiresMentionScopedSearch(userMessage string, availableTools []string, baseDir string) bool {
	if strings.TrimSpace(userMessage) == "" {
		return false
	}
	if len(extractDocMentions(userMessage)) == 0 {
		return false
	}
	hasSearch := false
	for _, t := range availableTools {
		if t == "search_chunks" {
			hasSearch = true
			break
		}
	}
	if !hasSearch {
		return false
	}
	_, err := os.Stat(filepath.Join(baseDir, ".index", "index.db"))
	return err == nil
}

func mentionGroundingErrorMessage() string {
	return "Unable to complete the answer because @file grounding was required but `search_chunks` " +
		"was not executed successfully. Please retry, keeping the @file references explicit."
}

func mentionCoverageErrorMessage(remaining map[string]bool) string {
	suffix := ""
	if len(remaining) > 0 {
		sorted := sortedMentionSlice(remaining)
		parts := make([]string, len(sorted))
		for i, m := range sorted {
			parts[i] = "@" + m
		}
		suffix = " Missing evidence scope for: " + strings.Join(parts, ", ")
	}
	return "Unable to complete the answer because multi-file grounding was incomplete." +
		suffix + " Please retry with explicit @file references."
}

func comparisonFormatErrorMessage() string {
	return "Unable to complete the comparative answer with grounded citations. " +
		"Please retry and keep explicit @file scope so evidence can be cited item by item."
}

func formatMaxIterationsMessage(limit int) string {
	return fmt.Sprintf("Maximum iterations reached (%d). Would you like to continue with more iterations or try a more specific request?", limit)
}

// Package pathguard centralizes filesystem access decisions for tools that
// read or write files on an agent's behalf: resolving relative paths against
// a base directory, enforcing read/write allow-lists, and gating direct
// access to converted-content caches behind a retrieval-first policy.
package pathguard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Permissions is an agent's read/write allow-list. Explicit distinguishes
// "no permissions configured, fall back to base_dir containment" from
// "permissions configured but both lists are empty, deny everything."
type Permissions struct {
	ReadPaths  []string
	WritePaths []string
	Explicit   bool
}

// DefaultForBaseDir grants read and write access to baseDir itself, matching
// the implicit backward-compatible behavior used when no allow-lists are set.
func DefaultForBaseDir(baseDir string) Permissions {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	return Permissions{ReadPaths: []string{abs}, WritePaths: []string{abs}}
}

// NewPermissions builds an explicit allow-list, resolving every entry
// relative to baseDir.
func NewPermissions(readPaths, writePaths []string, baseDir string) Permissions {
	resolve := func(paths []string) []string {
		out := make([]string, 0, len(paths))
		for _, p := range paths {
			out = append(out, ResolvePath(p, baseDir))
		}
		return out
	}
	return Permissions{
		ReadPaths:  resolve(readPaths),
		WritePaths: resolve(writePaths),
		Explicit:   true,
	}
}

// CanRead reports whether path falls under a read or write allow-list entry
// (write implies read).
func (p Permissions) CanRead(path string) bool {
	for _, allowed := range append(append([]string{}, p.ReadPaths...), p.WritePaths...) {
		if isWithin(path, allowed) {
			return true
		}
	}
	return false
}

// CanWrite reports whether path falls under a write allow-list entry.
func (p Permissions) CanWrite(path string) bool {
	for _, allowed := range p.WritePaths {
		if isWithin(path, allowed) {
			return true
		}
	}
	return false
}

func isWithin(path, allowed string) bool {
	rp, err1 := filepath.Abs(path)
	ra, err2 := filepath.Abs(allowed)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(ra, rp)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// ResolvePath resolves a path string (relative or absolute) to an absolute
// path, joining relative paths against baseDir.
func ResolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(baseDir, path))
}

// ConvertedAccessMode governs direct reads of files under base_dir/.converted.
type ConvertedAccessMode string

const (
	// ModeOpen allows unrestricted direct .converted/ reads.
	ModeOpen ConvertedAccessMode = "open"
	// ModeHybrid requires a prior search_chunks call in the current run
	// before a direct .converted/ read is allowed, unless no index exists
	// to search in the first place.
	ModeHybrid ConvertedAccessMode = "hybrid"
	// ModeStrict disables direct .converted/ reads entirely.
	ModeStrict ConvertedAccessMode = "strict"
)

// NormalizeConvertedAccessMode applies the same backward-compatibility rules
// as the original permission resolver: an unrecognized or empty mode string
// falls back to strict, and a bare legacy "allow_converted_read" flag maps to
// open/strict.
func NormalizeConvertedAccessMode(mode string, legacyAllow *bool) ConvertedAccessMode {
	normalized := ConvertedAccessMode(strings.ToLower(strings.TrimSpace(mode)))
	switch normalized {
	case ModeOpen, ModeHybrid, ModeStrict:
		if normalized == ModeHybrid && legacyAllow != nil && *legacyAllow {
			return ModeOpen
		}
		return normalized
	}
	if legacyAllow != nil {
		if *legacyAllow {
			return ModeOpen
		}
		return ModeStrict
	}
	return ModeStrict
}

// ConvertedAccessPolicy carries the run-time facts needed to evaluate the
// hybrid mode's "search before read" requirement, without pathguard needing
// to know about agent message history or index internals.
type ConvertedAccessPolicy struct {
	Mode                   ConvertedAccessMode
	SearchChunksAvailable  bool // an index exists and search_chunks is in the toolset
	RecentSearchChunksCall bool // search_chunks was called recently in this run
}

// CheckRead evaluates whether path may be read under policy and perms,
// applying the converted-content policy first and the general read
// allow-list second. It returns (true, "") when allowed, or (false, reason)
// with an "Access denied" prefixed reason when not.
func CheckRead(path, baseDir string, perms Permissions, policy ConvertedAccessPolicy) (bool, string) {
	if ok, reason := checkConvertedAccessPolicy(path, baseDir, policy); !ok {
		return false, reason
	}

	if !perms.Explicit && len(perms.ReadPaths) == 0 && len(perms.WritePaths) == 0 {
		if isWithin(path, baseDir) {
			return true, ""
		}
		return false, "Access denied - path is outside allowed directory"
	}

	if perms.CanRead(path) {
		return true, ""
	}

	allowed := append(append([]string{}, perms.ReadPaths...), perms.WritePaths...)
	if len(allowed) > 0 {
		return false, fmt.Sprintf("Access denied - path is outside allowed directories: %s", joinWithMore(allowed, 3))
	}
	return false, "Access denied - no read permissions configured"
}

// CheckWrite evaluates whether path may be written under perms. Converted-
// content policy does not apply to writes (the policy only gates reads of
// pre-converted artifacts).
func CheckWrite(path, baseDir string, perms Permissions) (bool, string) {
	if !perms.Explicit && len(perms.ReadPaths) == 0 && len(perms.WritePaths) == 0 {
		if isWithin(path, baseDir) {
			return true, ""
		}
		return false, "Write access denied - path is outside allowed directory"
	}

	if perms.CanWrite(path) {
		return true, ""
	}

	if len(perms.WritePaths) > 0 {
		return false, fmt.Sprintf("Write access denied - allowed write directories: %s", joinWithMore(perms.WritePaths, 3))
	}
	return false, "Write access denied - no write permissions configured"
}

func checkConvertedAccessPolicy(path, baseDir string, policy ConvertedAccessPolicy) (bool, string) {
	convertedDir := filepath.Join(baseDir, ".converted")
	if !isWithin(path, convertedDir) {
		return true, ""
	}

	switch policy.Mode {
	case ModeOpen:
		return true, ""
	case ModeHybrid:
		if !policy.SearchChunksAvailable {
			return true, ""
		}
		if policy.RecentSearchChunksCall {
			return true, ""
		}
		return false, "Access denied - direct '.converted/' access in hybrid mode requires a prior " +
			"'search_chunks' call. Run search_chunks first, then retry. " +
			"For unrestricted direct access, set converted_access_mode: open."
	default: // strict, or unset
		return false, "Access denied - direct '.converted/' access is disabled " +
			"(converted_access_mode: strict). Use 'search_chunks' for content retrieval, " +
			"or set converted_access_mode: hybrid/open."
	}
}

func joinWithMore(paths []string, limit int) string {
	if len(paths) <= limit {
		return strings.Join(paths, ", ")
	}
	return strings.Join(paths[:limit], ", ") + fmt.Sprintf(" and %d more", len(paths)-limit)
}

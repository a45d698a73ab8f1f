package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const schemaVersion = "1.0"

// Catalog is the central index of every file in a project directory,
// keyed by relative path. It exclusively owns FileEntry instances — only
// Build/Update/Remove/mutator methods change their status.
type Catalog struct {
	BaseDir          string               `json:"base_dir"`
	Version          string               `json:"version"`
	CatalogCreatedAt string               `json:"catalog_created_at"`
	CatalogUpdatedAt string               `json:"catalog_updated_at"`
	Files            map[string]FileEntry `json:"files"`
	DirectoryTree    *DirectoryNode       `json:"directory_tree,omitempty"`
	Settings         Settings             `json:"settings"`
}

// Settings mirrors the on-disk settings block persisted alongside the catalog.
type Settings struct {
	AutoConvert     bool     `json:"auto_convert"`
	AutoSummarize   bool     `json:"auto_summarize"`
	IgnoredPatterns []string `json:"ignored_patterns,omitempty"`
}

// New returns an empty catalog rooted at baseDir.
func New(baseDir string) *Catalog {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	return &Catalog{
		BaseDir:  abs,
		Version:  schemaVersion,
		Files:    make(map[string]FileEntry),
		Settings: Settings{AutoConvert: true},
	}
}

// UpdateSummary is how update() reports what changed in one rescan.
type UpdateSummary struct {
	New       []string `json:"new"`
	Modified  []string `json:"modified"`
	Missing   []string `json:"missing"`
	Unchanged []string `json:"unchanged"`
}

// Build performs a full scan of BaseDir, replacing all existing entries.
func (c *Catalog) Build(ignorePatterns []string) error {
	patterns := ignorePatterns
	if len(patterns) == 0 {
		patterns = c.Settings.IgnoredPatterns
	}
	scanner := NewScanner(c.BaseDir, patterns)
	entries, tree, err := scanner.Scan()
	if err != nil {
		return fmt.Errorf("scanning %s: %w", c.BaseDir, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	c.CatalogCreatedAt = now
	c.CatalogUpdatedAt = now
	c.DirectoryTree = tree

	c.Files = make(map[string]FileEntry, len(entries))
	for _, e := range entries {
		c.Files[e.Path] = e
	}
	if len(ignorePatterns) > 0 {
		c.Settings.IgnoredPatterns = ignorePatterns
	}
	return nil
}

// Update rescans BaseDir and classifies every entry as new/modified/missing/
// unchanged. A file is "modified" only when both mtime and checksum changed;
// an mtime-only change ("touch") refreshes timestamps without invalidating
// the entry's summary/converted_to/tags.
func (c *Catalog) Update() (UpdateSummary, error) {
	scanner := NewScanner(c.BaseDir, c.Settings.IgnoredPatterns)
	current, tree, err := scanner.Scan()
	if err != nil {
		return UpdateSummary{}, fmt.Errorf("scanning %s: %w", c.BaseDir, err)
	}

	currentPaths := make(map[string]bool, len(current))
	var summary UpdateSummary

	for _, entry := range current {
		currentPaths[entry.Path] = true
		old, existed := c.Files[entry.Path]
		switch {
		case !existed:
			entry.Status = "new"
			c.Files[entry.Path] = entry
			summary.New = append(summary.New, entry.Path)
		case entry.ModifiedAt != old.ModifiedAt:
			if entry.ChecksumSHA256 != old.ChecksumSHA256 {
				entry.Status = "modified"
				entry.Summary = ""
				entry.ConvertedTo = old.ConvertedTo
				entry.Tags = old.Tags
				c.Files[entry.Path] = entry
				summary.Modified = append(summary.Modified, entry.Path)
			} else {
				old.ModifiedAt = entry.ModifiedAt
				old.IndexedAt = entry.IndexedAt
				old.Status = "current"
				c.Files[entry.Path] = old
				summary.Unchanged = append(summary.Unchanged, entry.Path)
			}
		default:
			old.Status = "current"
			c.Files[entry.Path] = old
			summary.Unchanged = append(summary.Unchanged, entry.Path)
		}
	}

	for path, entry := range c.Files {
		if !currentPaths[path] {
			entry.Status = "missing"
			c.Files[path] = entry
			summary.Missing = append(summary.Missing, path)
		}
	}

	c.DirectoryTree = tree
	c.CatalogUpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return summary, nil
}

// RemoveMissing purges every entry whose status is "missing" and returns
// their paths.
func (c *Catalog) RemoveMissing() []string {
	var removed []string
	for path, e := range c.Files {
		if e.Status == "missing" {
			delete(c.Files, path)
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed
}

// MarkAllCurrent transitions every new/modified entry to current. Called
// after indexing succeeds.
func (c *Catalog) MarkAllCurrent() {
	for path, e := range c.Files {
		if e.Status == "new" || e.Status == "modified" {
			e.Status = "current"
			c.Files[path] = e
		}
	}
}

// SetConverted records a converter's output for path, invalidating nothing
// (summary is set independently via SetSummary).
func (c *Catalog) SetConverted(path, convertedTo string) {
	if e, ok := c.Files[path]; ok {
		e.ConvertedTo = convertedTo
		c.Files[path] = e
	}
}

// SetSummary records a generated summary for path.
func (c *Catalog) SetSummary(path, summary string) {
	if e, ok := c.Files[path]; ok {
		e.Summary = summary
		c.Files[path] = e
	}
}

// Query is a QueryOptions-driven linear filter over all entries, returned
// in a stable path-sorted order.
type QueryOptions struct {
	Name           string
	Extension      string
	FileType       string
	Category       string
	HasSummary     *bool
	HasConversion  *bool
	Status         string
	TextSearch     string
	Limit          int
}

// Query filters the catalog by the given options, respecting Limit (0 means
// the default of 50).
func (c *Catalog) Query(opts QueryOptions) []FileEntry {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	paths := make([]string, 0, len(c.Files))
	for p := range c.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var results []FileEntry
	for _, p := range paths {
		e := c.Files[p]
		if opts.Name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(opts.Name)) {
			continue
		}
		if opts.Extension != "" && e.Extension != strings.ToLower(opts.Extension) {
			continue
		}
		if opts.FileType != "" && e.FileType != opts.FileType {
			continue
		}
		if opts.Category != "" && e.Category != opts.Category {
			continue
		}
		if opts.HasSummary != nil {
			has := e.Summary != ""
			if has != *opts.HasSummary {
				continue
			}
		}
		if opts.HasConversion != nil {
			has := e.ConvertedTo != ""
			if has != *opts.HasConversion {
				continue
			}
		}
		if opts.Status != "" && e.Status != opts.Status {
			continue
		}
		if opts.TextSearch != "" {
			needle := strings.ToLower(opts.TextSearch)
			haystack := strings.ToLower(e.Path)
			if e.Summary != "" {
				haystack += " " + strings.ToLower(e.Summary)
			}
			if len(e.Tags) > 0 {
				haystack += " " + strings.ToLower(strings.Join(e.Tags, " "))
			}
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		results = append(results, e)
		if len(results) >= limit {
			break
		}
	}
	return results
}

// FilesNeedingConversion returns binary_document entries with no converted
// version yet.
func (c *Catalog) FilesNeedingConversion() []FileEntry {
	var out []FileEntry
	for _, e := range c.Files {
		if e.FileType == "binary_document" && e.ConvertedTo == "" && e.Status != "missing" {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ModifiedFiles returns entries whose status is new or modified.
func (c *Catalog) ModifiedFiles() []FileEntry {
	var out []FileEntry
	for _, e := range c.Files {
		if e.Status == "new" || e.Status == "modified" {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ContentCard is the searchable summary of one catalog entry used by the
// retrieval Stage A router. Only entries that have been converted (and are
// not missing) participate, since routing only ever needs to narrow down to
// documents the retriever can actually produce chunks for.
type ContentCard struct {
	Path           string
	ChecksumSHA256 string
	Searchable     string
}

// ContentCards returns one card per eligible entry, sorted by path for
// deterministic ordering.
func (c *Catalog) ContentCards() []ContentCard {
	var out []ContentCard
	for _, e := range c.Files {
		if e.Status == "missing" || e.ConvertedTo == "" {
			continue
		}
		parts := []string{e.Path, e.Name, e.FileType, e.Category, e.SourceType, e.Summary, e.ExtractionQuality, e.SourceURL}
		if len(e.Tags) > 0 {
			parts = append(parts, strings.Join(e.Tags, " "))
		}
		for _, v := range e.SourceMetadata {
			parts = append(parts, v)
		}
		var nonEmpty []string
		for _, p := range parts {
			if p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		searchable := strings.TrimSpace(strings.Join(nonEmpty, " "))
		if searchable == "" {
			continue
		}
		out = append(out, ContentCard{Path: e.Path, ChecksumSHA256: e.ChecksumSHA256, Searchable: searchable})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Stats summarizes catalog contents for the agent's system prompt and the
// get_catalog_summary tool.
type Stats struct {
	TotalFiles      int            `json:"total_files"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	ByType          map[string]int `json:"by_type"`
	ByExtension     map[string]int `json:"by_extension"`
	ByStatus        map[string]int `json:"by_status"`
	WithSummary     int            `json:"with_summary"`
	WithConversion  int            `json:"with_conversion"`
}

// GetStats computes catalog statistics over active (non-missing) entries.
func (c *Catalog) GetStats() Stats {
	stats := Stats{
		ByType:      make(map[string]int),
		ByExtension: make(map[string]int),
		ByStatus:    make(map[string]int),
	}
	for _, e := range c.Files {
		stats.ByStatus[e.Status]++
		if e.Status == "missing" {
			continue
		}
		stats.TotalFiles++
		stats.TotalSizeBytes += e.SizeBytes
		stats.ByType[e.FileType]++
		stats.ByExtension[e.Extension]++
		if e.Summary != "" {
			stats.WithSummary++
		}
		if e.ConvertedTo != "" {
			stats.WithConversion++
		}
	}
	return stats
}

// persistedCatalog is the on-disk shape, schema-versioned independently of
// the in-memory Catalog's field layout.
type persistedCatalog struct {
	Version          string               `json:"version"`
	CatalogCreatedAt string               `json:"catalog_created_at"`
	CatalogUpdatedAt string               `json:"catalog_updated_at"`
	BaseDir          string               `json:"base_dir"`
	Settings         Settings             `json:"settings"`
	Stats            Stats                `json:"stats"`
	DirectoryTree    *DirectoryNode       `json:"directory_tree,omitempty"`
	Files            map[string]FileEntry `json:"files"`
}

// Save writes the catalog as JSON to <configDir>/content_catalog.json.
func (c *Catalog) Save(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	p := persistedCatalog{
		Version:          schemaVersion,
		CatalogCreatedAt: c.CatalogCreatedAt,
		CatalogUpdatedAt: c.CatalogUpdatedAt,
		BaseDir:          c.BaseDir,
		Settings:         c.Settings,
		Stats:            c.GetStats(),
		DirectoryTree:    c.DirectoryTree,
		Files:            c.Files,
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	path := filepath.Join(configDir, "content_catalog.json")
	return os.WriteFile(path, data, 0644)
}

// Load reads the catalog from <configDir>/content_catalog.json. A corrupt or
// missing file is reported as an error; callers should treat that as "no
// catalog" and fall back to a full Build.
func Load(configDir, baseDir string) (*Catalog, error) {
	path := filepath.Join(configDir, "content_catalog.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p persistedCatalog
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing catalog json: %w", err)
	}
	return &Catalog{
		BaseDir:          baseDir,
		Version:          p.Version,
		CatalogCreatedAt: p.CatalogCreatedAt,
		CatalogUpdatedAt: p.CatalogUpdatedAt,
		Files:            p.Files,
		DirectoryTree:    p.DirectoryTree,
		Settings:         p.Settings,
	}, nil
}

// Package agent holds the leaf configuration types shared by the tool
// registry and the agent loop: profiles loaded from .flavia/agents.yaml,
// runtime context, and tool-execution status reporting. It deliberately
// imports neither tools nor the loop package, so both of those can import it
// without creating a cycle.
package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flavioluiz/flavia-go/pathguard"
)

const (
	defaultModel            = "gpt-4o-mini"
	defaultMaxDepth          = 3
	defaultCompactThreshold  = 0.9
	defaultConvertedAccess   = pathguard.ModeHybrid
)

// Profile is an agent's declarative configuration: its persona/context
// string, model, permissions, and any named subagents it may spawn. Loaded
// from .flavia/agents.yaml (see LoadProfiles) or built programmatically
// for the root agent.
type Profile struct {
	Name                    string
	Context                 string
	Model                   string
	BaseDir                 string
	Tools                   []string
	Subagents               map[string]SubagentConfig
	MaxDepth                int
	CompactThreshold        float64
	CompactThresholdSource  string // "default" or "config"
	ConvertedAccessMode     pathguard.ConvertedAccessMode
	Permissions             pathguard.Permissions
}

// SubagentConfig is one named entry under a profile's `subagents:` map in
// agents.yaml, resolved into a child Profile via CreateSubagentProfile.
type SubagentConfig struct {
	Context             string                    `yaml:"context"`
	Path                string                    `yaml:"path"`
	Model               string                    `yaml:"model"`
	Tools               []string                  `yaml:"tools"`
	Subagents           map[string]SubagentConfig `yaml:"subagents"`
	MaxDepth            int                       `yaml:"max_depth"`
	CompactThreshold    *float64                  `yaml:"compact_threshold"`
	ConvertedAccessMode string                    `yaml:"converted_access_mode"`
	AllowConvertedRead  *bool                     `yaml:"allow_converted_read"`
	Permissions         *PermissionsConfig        `yaml:"permissions"`
	Name                string                    `yaml:"-"`
}

// PermissionsConfig is the YAML shape of an explicit read/write allow-list.
type PermissionsConfig struct {
	Read  []string `yaml:"read"`
	Write []string `yaml:"write"`
}

// DefaultProfile returns the root agent's profile: full read/write access to
// baseDir, no subagents, the default model and compaction threshold.
func DefaultProfile(baseDir string) Profile {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	return Profile{
		Name:                   "agent",
		Model:                  defaultModel,
		BaseDir:                abs,
		MaxDepth:               defaultMaxDepth,
		CompactThreshold:       defaultCompactThreshold,
		CompactThresholdSource: "default",
		ConvertedAccessMode:    defaultConvertedAccess,
		Permissions:            pathguard.DefaultForBaseDir(abs),
	}
}

// CreateSubagentProfile resolves a named subagent config into a child
// Profile, inheriting the parent's model/max_depth/compact_threshold/
// converted_access_mode/permissions for anything the child config omits.
func (p Profile) CreateSubagentProfile(name string) (Profile, bool) {
	cfg, ok := p.Subagents[name]
	if !ok {
		return Profile{}, false
	}
	cfg.Name = name

	child := Profile{
		Name:                   name,
		Context:                cfg.Context,
		Model:                  p.Model,
		BaseDir:                p.BaseDir,
		Tools:                  cfg.Tools,
		Subagents:              cfg.Subagents,
		MaxDepth:               p.MaxDepth,
		CompactThreshold:       p.CompactThreshold,
		CompactThresholdSource: p.CompactThresholdSource,
		ConvertedAccessMode:    p.ConvertedAccessMode,
		Permissions:            p.Permissions,
	}

	if cfg.Path != "" {
		child.BaseDir = pathguard.ResolvePath(cfg.Path, p.BaseDir)
	}
	if cfg.Model != "" {
		child.Model = cfg.Model
	}
	if cfg.MaxDepth > 0 {
		child.MaxDepth = cfg.MaxDepth
	}
	if cfg.CompactThreshold != nil {
		child.CompactThreshold = *cfg.CompactThreshold
		child.CompactThresholdSource = "config"
	}

	mode := string(p.ConvertedAccessMode)
	if cfg.ConvertedAccessMode != "" {
		mode = cfg.ConvertedAccessMode
	}
	child.ConvertedAccessMode = pathguard.NormalizeConvertedAccessMode(mode, cfg.AllowConvertedRead)

	if cfg.Permissions != nil {
		child.Permissions = pathguard.NewPermissions(cfg.Permissions.Read, cfg.Permissions.Write, child.BaseDir)
	} else {
		child.Permissions = p.Permissions
	}

	return child, true
}

// ValidateCompactThreshold returns a threshold in [0.0, 1.0] unchanged and
// rejects anything outside that range with an error (it never clamps),
// matching the profile loader's strictness for malformed agents.yaml entries.
func ValidateCompactThreshold(v float64) (float64, error) {
	if v < 0.0 || v > 1.0 {
		return 0, fmt.Errorf("compact_threshold must be between 0.0 and 1.0 (got %v)", v)
	}
	return v, nil
}

// ValidateConvertedAccessMode normalizes and validates a mode string.
func ValidateConvertedAccessMode(v string) (pathguard.ConvertedAccessMode, error) {
	mode := pathguard.ConvertedAccessMode(strings.ToLower(strings.TrimSpace(v)))
	switch mode {
	case pathguard.ModeOpen, pathguard.ModeHybrid, pathguard.ModeStrict:
		return mode, nil
	default:
		return "", fmt.Errorf("converted_access_mode must be one of: strict, hybrid, open (got %q)", v)
	}
}

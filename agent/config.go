package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flavioluiz/flavia-go/pathguard"
)

// ErrInvalidConfig is returned for invalid agents.yaml values (e.g. a
// converted_access_mode that conflicts with a legacy allow_converted_read
// flag). Kept local to this package rather than imported from the module
// root: the root package's agent loop imports agent, so agent must not
// import back.
var ErrInvalidConfig = errors.New("agent: invalid configuration")

// agentsFileConfig is the on-disk shape of .flavia/agents.yaml: a required
// `main:` profile plus its nested `subagents:` map.
type agentsFileConfig struct {
	Main SubagentConfig `yaml:"main"`
}

// LoadProfiles reads .flavia/agents.yaml under baseDir (via configDir) and
// resolves it into the root Profile. A missing file is not an error: the
// caller gets DefaultProfile(baseDir) instead, matching the "no agents.yaml
// configured yet" bootstrap case.
func LoadProfiles(configDir, baseDir string) (Profile, error) {
	path := filepath.Join(configDir, "agents.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultProfile(baseDir), nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg agentsFileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Profile{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return profileFromConfig(cfg.Main, nil, baseDir)
}

// profileFromConfig mirrors AgentProfile.from_config: resolve a profile from
// its YAML config, inheriting from parent where fields are omitted.
func profileFromConfig(cfg SubagentConfig, parent *Profile, baseDir string) (Profile, error) {
	p := DefaultProfile(baseDir)
	if parent != nil {
		p = *parent
	}

	p.Context = cfg.Context
	if cfg.Path != "" {
		p.BaseDir = pathguard.ResolvePath(cfg.Path, p.BaseDir)
	}
	if cfg.Model != "" {
		p.Model = cfg.Model
	}
	if len(cfg.Tools) > 0 {
		p.Tools = cfg.Tools
	}
	if cfg.Name != "" {
		p.Name = cfg.Name
	}
	if cfg.MaxDepth > 0 {
		p.MaxDepth = cfg.MaxDepth
	}
	if cfg.CompactThreshold != nil {
		threshold, err := ValidateCompactThreshold(*cfg.CompactThreshold)
		if err != nil {
			return Profile{}, err
		}
		p.CompactThreshold = threshold
		p.CompactThresholdSource = "config"
	}

	mode := string(p.ConvertedAccessMode)
	if cfg.ConvertedAccessMode != "" {
		mode = cfg.ConvertedAccessMode
	}
	if cfg.ConvertedAccessMode != "" || cfg.AllowConvertedRead != nil {
		if cfg.ConvertedAccessMode != "" && cfg.AllowConvertedRead != nil {
			legacy := pathguard.ModeStrict
			if *cfg.AllowConvertedRead {
				legacy = pathguard.ModeOpen
			}
			if pathguard.ConvertedAccessMode(mode) != legacy {
				return Profile{}, fmt.Errorf("%w: allow_converted_read conflicts with converted_access_mode", ErrInvalidConfig)
			}
		}
		p.ConvertedAccessMode = pathguard.NormalizeConvertedAccessMode(mode, cfg.AllowConvertedRead)
	}

	if cfg.Permissions != nil {
		p.Permissions = pathguard.NewPermissions(cfg.Permissions.Read, cfg.Permissions.Write, p.BaseDir)
	} else if parent != nil {
		p.Permissions = parent.Permissions
	} else {
		p.Permissions = pathguard.DefaultForBaseDir(p.BaseDir)
	}

	p.Subagents = cfg.Subagents

	return p, nil
}

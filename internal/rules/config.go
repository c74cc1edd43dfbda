package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/privaudit/pkg/types"
)

// Config tunes which rules run and how their findings are ranked. Loaded
// from an optional YAML file:
//
//	disabled:
//	  - circular-access
//	severities:
//	  overprivileged-cloudformation-role: Medium
type Config struct {
	Disabled   []string                  `yaml:"disabled"`
	Severities map[string]types.Severity `yaml:"severities"`
}

// LoadConfig reads and validates a rule configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse rule config %s: %w", path, err)
	}

	for _, name := range cfg.Disabled {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("rule config disables unknown rule %q", name)
		}
	}
	for name, sev := range cfg.Severities {
		if _, ok := Lookup(name); !ok {
			return nil, fmt.Errorf("rule config overrides unknown rule %q", name)
		}
		switch sev {
		case types.SeverityLow, types.SeverityMedium, types.SeverityHigh:
		default:
			return nil, fmt.Errorf("rule config has invalid severity %q for rule %q", sev, name)
		}
	}

	return &cfg, nil
}

// IsDisabled reports whether a rule is switched off by this config.
func (c *Config) IsDisabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.State.CooldownFile == "" {
		c.State.CooldownFile = "state/cooldowns.json"
	}
	if c.State.RotationFile == "" {
		c.State.RotationFile = "state/rotation.json"
	}
	if c.State.DefaultCooldown == 0 {
		c.State.DefaultCooldown = 5 * time.Minute
	}
	if c.State.RateLimitCooldown == 0 {
		c.State.RateLimitCooldown = 10 * time.Minute
	}
	if c.State.BillingCooldown == 0 {
		c.State.BillingCooldown = 30 * time.Minute
	}
	if c.State.RetryDelay == 0 {
		c.State.RetryDelay = 2 * time.Second
	}
	if c.Usage.LogFile == "" {
		c.Usage.LogFile = "state/usage.jsonl"
	}

	for name, p := range c.Providers {
		if p.Timeout == 0 {
			p.Timeout = 2 * time.Minute
			c.Providers[name] = p
		}
	}
}

// Validate checks all cross-references and fails fast with a
// ConfigurationError naming the first offending path.
func (c *AppConfig) Validate() error {
	if len(c.Providers) == 0 {
		return &ConfigurationError{Path: "providers", Reason: "no providers configured"}
	}
	for name, p := range c.Providers {
		if p.Adapter == "" {
			return &ConfigurationError{Path: "providers." + name + ".adapter", Reason: "adapter kind is required"}
		}
	}

	if len(c.Models) == 0 {
		return &ConfigurationError{Path: "models", Reason: "no models configured"}
	}
	for key, m := range c.Models {
		if m.Provider == "" {
			return &ConfigurationError{Path: "models." + string(key) + ".provider", Reason: "provider is required"}
		}
		if _, ok := c.Providers[m.Provider]; !ok {
			return &ConfigurationError{
				Path:   "models." + string(key) + ".provider",
				Reason: fmt.Sprintf("unknown provider %q", m.Provider),
			}
		}
		if m.Model == "" {
			return &ConfigurationError{Path: "models." + string(key) + ".model", Reason: "backend model name is required"}
		}
	}

	for tier, keys := range c.Tiers {
		if len(keys) == 0 {
			return &ConfigurationError{Path: "tiers." + tier, Reason: "tier has no candidates"}
		}
		for _, key := range keys {
			if _, ok := c.Models[key]; !ok {
				return &ConfigurationError{
					Path:   "tiers." + tier,
					Reason: fmt.Sprintf("unknown model key %q", key),
				}
			}
		}
	}

	for name, t := range c.Tasks {
		if t.Tier == "" {
			return &ConfigurationError{Path: "tasks." + name + ".tier", Reason: "tier is required"}
		}
		if _, ok := c.Tiers[t.Tier]; !ok {
			return &ConfigurationError{
				Path:   "tasks." + name + ".tier",
				Reason: fmt.Sprintf("unknown tier %q", t.Tier),
			}
		}
		if t.Retries < 0 {
			return &ConfigurationError{Path: "tasks." + name + ".retries", Reason: "retries must be >= 0"}
		}
	}

	return nil
}

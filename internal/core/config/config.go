package config

import (
	"fmt"
	"time"

	"github.com/vietddude/genroute/internal/core/domain"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Providers map[string]ProviderConfig       `yaml:"providers"`
	Models    map[domain.ModelKey]ModelConfig `yaml:"models"`
	Tiers     map[string][]domain.ModelKey    `yaml:"tiers"`
	Tasks     map[string]TaskConfig           `yaml:"tasks"`
	State     StateConfig                     `yaml:"state"`
	Usage     UsageConfig                     `yaml:"usage"`
	Logging   LoggingConfig                   `yaml:"logging"`
	Metrics   MetricsConfig                   `yaml:"metrics"`
}

// ProviderConfig holds settings for one backend provider.
type ProviderConfig struct {
	// Adapter selects the adapter family, e.g. "openai" or "gemini".
	Adapter  string `yaml:"adapter"`
	Endpoint string `yaml:"endpoint"`
	// APIKeyEnv names the environment variable holding the credential.
	// The adapter resolves it at construction time.
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings ("30s", "2m") for timeout.
func (p *ProviderConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Adapter   string `yaml:"adapter"`
		Endpoint  string `yaml:"endpoint"`
		APIKeyEnv string `yaml:"api_key_env"`
		Timeout   string `yaml:"timeout"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	timeout, err := parseOptionalDuration("timeout", raw.Timeout)
	if err != nil {
		return err
	}
	*p = ProviderConfig{
		Adapter:   raw.Adapter,
		Endpoint:  raw.Endpoint,
		APIKeyEnv: raw.APIKeyEnv,
		Timeout:   timeout,
	}
	return nil
}

// Capabilities flags which request fields a model understands. Nil means
// supported; normalization drops fields the model cannot take.
type Capabilities struct {
	AspectRatio    *bool `yaml:"aspect_ratio"`
	Size           *bool `yaml:"size"`
	Seed           *bool `yaml:"seed"`
	NegativePrompt *bool `yaml:"negative_prompt"`
}

func supports(b *bool) bool { return b == nil || *b }

func (c Capabilities) SupportsAspectRatio() bool    { return supports(c.AspectRatio) }
func (c Capabilities) SupportsSize() bool           { return supports(c.Size) }
func (c Capabilities) SupportsSeed() bool           { return supports(c.Seed) }
func (c Capabilities) SupportsNegativePrompt() bool { return supports(c.NegativePrompt) }

// ModelConfig binds a backend model to its provider and capability set.
type ModelConfig struct {
	Provider     string       `yaml:"provider"`
	Model        string       `yaml:"model"`
	Capabilities Capabilities `yaml:"capabilities"`
}

// TaskConfig maps a named unit of work onto a tier.
type TaskConfig struct {
	Tier string `yaml:"tier"`
	// Retries is the per-model retry budget; each candidate is attempted
	// Retries+1 times before moving on.
	Retries  int             `yaml:"retries"`
	Defaults RequestDefaults `yaml:"defaults"`
}

// RequestDefaults are applied under caller-supplied options during
// normalization. Caller values win when set.
type RequestDefaults struct {
	AspectRatio    string `yaml:"aspect_ratio"`
	Size           string `yaml:"size"`
	Seed           *int64 `yaml:"seed"`
	NegativePrompt string `yaml:"negative_prompt"`
	Replicas       int    `yaml:"replicas"`
}

// StateConfig holds the shared-file state settings.
type StateConfig struct {
	CooldownFile string `yaml:"cooldown_file"`
	RotationFile string `yaml:"rotation_file"`
	// RedisURL, when set, swaps the file-backed cooldown store for a
	// Redis-backed one behind the same interface.
	RedisURL string `yaml:"redis_url"`

	// Cooldown durations: a rate-limit error's explicit retry-after hint
	// wins, then the status-specific default, then DefaultCooldown.
	DefaultCooldown   time.Duration `yaml:"-"`
	RateLimitCooldown time.Duration `yaml:"-"`
	BillingCooldown   time.Duration `yaml:"-"`

	// RetryDelay is the fixed sleep between same-model retries.
	RetryDelay time.Duration `yaml:"-"`
}

// UnmarshalYAML accepts Go duration strings for the cooldown and delay
// fields.
func (s *StateConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		CooldownFile      string `yaml:"cooldown_file"`
		RotationFile      string `yaml:"rotation_file"`
		RedisURL          string `yaml:"redis_url"`
		DefaultCooldown   string `yaml:"default_cooldown"`
		RateLimitCooldown string `yaml:"rate_limit_cooldown"`
		BillingCooldown   string `yaml:"billing_cooldown"`
		RetryDelay        string `yaml:"retry_delay"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	out := StateConfig{
		CooldownFile: raw.CooldownFile,
		RotationFile: raw.RotationFile,
		RedisURL:     raw.RedisURL,
	}
	var err error
	if out.DefaultCooldown, err = parseOptionalDuration("default_cooldown", raw.DefaultCooldown); err != nil {
		return err
	}
	if out.RateLimitCooldown, err = parseOptionalDuration("rate_limit_cooldown", raw.RateLimitCooldown); err != nil {
		return err
	}
	if out.BillingCooldown, err = parseOptionalDuration("billing_cooldown", raw.BillingCooldown); err != nil {
		return err
	}
	if out.RetryDelay, err = parseOptionalDuration("retry_delay", raw.RetryDelay); err != nil {
		return err
	}
	*s = out
	return nil
}

// parseOptionalDuration parses a duration string, treating empty as unset.
func parseOptionalDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	return d, nil
}

// UsageConfig holds the attempt-log settings.
type UsageConfig struct {
	LogFile string `yaml:"log_file"`
	// PostgresURL, when set, mirrors attempt records into Postgres for
	// dashboards. The JSONL log stays primary.
	PostgresURL string `yaml:"postgres_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig holds the optional metrics listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// ConfigurationError reports an unresolvable or missing configuration path.
// It is fatal and never retried.
type ConfigurationError struct {
	Path   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Path, e.Reason)
}

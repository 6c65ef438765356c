// Package provider implements the backend adapters.
//
// This package contains:
//   - Adapter interface: core abstraction for generation backends
//   - OpenAIAdapter: images-API style HTTP backend (b64 or URL responses)
//   - GeminiAdapter: generateContent REST backend (inline base64 parts)
//   - RateLimitError: the quota/rate-limit half of the error taxonomy
//
// Adapters are stateless: one per provider, selected by the provider's
// configured adapter kind. Adding a backend family means adding one adapter
// here plus config rows; routing is untouched.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
)

// Adapter turns normalized request options into one backend request and
// decodes the response. Implementations own their credential resolution,
// per-call timeout, and response decoding.
type Adapter interface {
	// Name returns the provider identifier, e.g. "openai", "gemini".
	Name() string

	// Generate produces at least one payload or fails. A backend 200 with
	// zero decodable payloads is a failure.
	Generate(ctx context.Context, model config.ModelConfig, opts domain.RequestOptions) (*domain.GenerationResult, error)
}

// New constructs the adapter for a provider entry. Unknown adapter kinds fail
// fast with a ConfigurationError.
func New(name string, cfg config.ProviderConfig) (Adapter, error) {
	switch cfg.Adapter {
	case "openai":
		return NewOpenAIAdapter(name, cfg), nil
	case "gemini":
		return NewGeminiAdapter(name, cfg), nil
	default:
		return nil, &config.ConfigurationError{
			Path:   "providers." + name + ".adapter",
			Reason: fmt.Sprintf("unknown adapter kind %q", cfg.Adapter),
		}
	}
}

// BuildAll constructs one adapter per configured provider, keyed by provider
// name.
func BuildAll(providers map[string]config.ProviderConfig) (map[string]Adapter, error) {
	adapters := make(map[string]Adapter, len(providers))
	for name, cfg := range providers {
		a, err := New(name, cfg)
		if err != nil {
			return nil, err
		}
		adapters[name] = a
	}
	return adapters, nil
}

// newHTTPClient builds the shared client shape all adapters use.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// apiKey resolves the provider credential from its configured env var.
func apiKey(cfg config.ProviderConfig) string {
	if cfg.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(cfg.APIKeyEnv)
}

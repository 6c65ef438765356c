package routing

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/infra/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{&provider.RateLimitError{Provider: "p", StatusCode: 429}, ActionQuarantine},
		{&provider.RateLimitError{Provider: "p", StatusCode: 402}, ActionQuarantine},
		{fmt.Errorf("attempt failed: %w", &provider.RateLimitError{Provider: "p", StatusCode: 429}), ActionQuarantine},
		{errors.New("429 Too Many Requests"), ActionQuarantine},
		{errors.New("RESOURCE_EXHAUSTED: daily limit reached"), ActionQuarantine},
		{errors.New("monthly quota exceeded"), ActionQuarantine},
		{errors.New("project rate limit hit"), ActionQuarantine},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("http 500: internal server error"), ActionRetry},
		{errors.New("decode response: unexpected EOF"), ActionRetry},
		{errors.New("no images in response"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestCooldownFor(t *testing.T) {
	cfg := config.StateConfig{
		DefaultCooldown:   5 * time.Minute,
		RateLimitCooldown: 10 * time.Minute,
		BillingCooldown:   30 * time.Minute,
	}

	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{
			"explicit hint wins",
			&provider.RateLimitError{StatusCode: 429, RetryAfter: 7 * time.Second},
			7 * time.Second,
		},
		{
			"429 default",
			&provider.RateLimitError{StatusCode: 429},
			10 * time.Minute,
		},
		{
			"402 default",
			&provider.RateLimitError{StatusCode: 402},
			30 * time.Minute,
		},
		{
			"untyped quota error",
			errors.New("quota exceeded"),
			5 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cooldownFor(tt.err, cfg); got != tt.want {
				t.Errorf("cooldownFor = %v, want %v", got, tt.want)
			}
		})
	}
}

package routing

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/infra/provider"
)

// ErrorAction determines how the orchestrator reacts to an attempt failure.
type ErrorAction int

const (
	// ActionRetry burns one unit of the candidate's retry budget.
	ActionRetry ErrorAction = iota
	// ActionQuarantine abandons the candidate immediately and puts its
	// provider on cooldown. Retrying a quota error wastes the budget.
	ActionQuarantine
)

// quotaMarkers are case-insensitive substrings that flag a quota or
// rate-limit failure even when the adapter could not type the error.
var quotaMarkers = []string{
	"resource_exhausted",
	"quota",
	"rate limit",
	"too many requests",
	"429",
}

// ClassifyError determines the action for a given attempt error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	var rle *provider.RateLimitError
	if errors.As(err, &rle) {
		return ActionQuarantine
	}

	sLower := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(sLower, marker) {
			return ActionQuarantine
		}
	}

	// Network errors, 5xx, malformed responses: worth another try.
	return ActionRetry
}

// cooldownFor picks the quarantine duration: the backend's explicit
// retry-after hint wins, then the status-specific default, then the generic
// default.
func cooldownFor(err error, cfg config.StateConfig) time.Duration {
	var rle *provider.RateLimitError
	if errors.As(err, &rle) {
		if rle.RetryAfter > 0 {
			return rle.RetryAfter
		}
		switch rle.StatusCode {
		case http.StatusTooManyRequests:
			return cfg.RateLimitCooldown
		case http.StatusPaymentRequired:
			return cfg.BillingCooldown
		}
	}
	return cfg.DefaultCooldown
}

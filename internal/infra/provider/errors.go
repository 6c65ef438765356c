package provider

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// RateLimitError is raised when a backend signals quota exhaustion or rate
// limiting. The orchestrator reacts by quarantining the provider and moving
// to the next candidate without spending further retries.
type RateLimitError struct {
	Provider   string
	StatusCode int
	// RetryAfter is the backend's explicit hint, 0 when it gave none.
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limited (%d), retry after %s: %s",
			e.Provider, e.StatusCode, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %s rate limited (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// isRateLimitStatus reports whether the HTTP status itself marks a quota
// failure. 402 covers providers that shift to payment-required on exhausted
// credit.
func isRateLimitStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusPaymentRequired
}

// parseRetryAfter reads a Retry-After header value as delay seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

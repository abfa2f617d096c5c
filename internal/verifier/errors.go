package verifier

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned while the breaker is open: the call is
// short-circuited without touching the network.
var ErrCircuitOpen = errors.New("verification circuit open")

// RateLimitedError is returned when the fixed-window rate limit is
// exhausted. The call fails fast and is never queued; RetryAfterMs says
// how long until the window resets.
type RateLimitedError struct {
	RetryAfterMs int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("verification rate limited, retry after %dms", e.RetryAfterMs)
}

// APIError is a structured failure from the verification provider
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("verification API error: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("verification API error: HTTP %d", e.StatusCode)
}

// IsFailFast reports whether the error came from the limiter or breaker
// rather than an actual call attempt. Fail-fast errors consume no retry
// budget and do not count toward the breaker; the lead is simply retried
// on a later tick.
func IsFailFast(err error) bool {
	var rl *RateLimitedError
	return errors.Is(err, ErrCircuitOpen) || errors.As(err, &rl)
}

package marketdata

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned immediately while the circuit breaker is
// open. No transport call is made and no retry budget is consumed.
var ErrCircuitOpen = errors.New("market data circuit breaker is open")

// RateLimitError is returned when the upstream responds with HTTP 429
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limit exceeded, retry after %s", e.RetryAfter)
}

// UpstreamError is returned for non-2xx upstream responses other than 429
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%s", e.StatusCode, truncate(e.Body, 200))
}

// IsAuthError reports whether the error is a 401/403 upstream response.
// Auth failures indicate misconfiguration and are never retried.
func IsAuthError(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode == 401 || ue.StatusCode == 403
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

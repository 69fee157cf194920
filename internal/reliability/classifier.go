// Package reliability classifies upstream failures and paces retries.
package reliability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IsRetryableHTTPStatus reports whether a request that failed with code is
// worth sending again.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsRetryableRealtimeError classifies realtime API error events by code,
// falling back to the error type. Anything else is treated as a client bug.
func IsRetryableRealtimeError(errType, code string) bool {
	switch code {
	case "rate_limit_exceeded", "server_error", "session_expired_retry":
		return true
	}
	return errType == "server_error" || errType == "rate_limit_error"
}

// ExponentialBackoff doubles base per attempt and never exceeds cap.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return min(base, cap)
	}
	if attempt > 30 {
		return cap
	}
	d := base << attempt
	if d <= 0 || d > cap {
		return cap
	}
	return d
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as an
// HTTP date. ok is false when the header is absent or unusable.
func ParseRetryAfter(v string, now time.Time) (d time.Duration, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	if d = at.Sub(now); d < 0 {
		d = 0
	}
	return d, true
}

// RetryDelay picks the wait before the next attempt: the server's hint when
// it fits under cap, otherwise the exponential schedule.
func RetryDelay(attempt int, hint time.Duration, base, cap time.Duration) time.Duration {
	if hint > 0 && hint <= cap {
		return hint
	}
	return ExponentialBackoff(attempt, base, cap)
}

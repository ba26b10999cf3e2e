// Package transport provides the retrying HTTP client used to talk to the
// Twitch identity service.
package transport

import (
	"net/http"
	"strconv"
	"time"
)

// BackoffConfig configures exponential backoff behavior.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultBackoffConfig returns sensible defaults for exponential backoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		MaxAttempts: 3,
	}
}

// CalculateBackoff returns the delay for a given attempt number using
// exponential backoff. attempt is 1-indexed (the first retry is attempt 1).
func CalculateBackoff(config BackoffConfig, attempt int) time.Duration {
	if attempt <= 0 {
		return config.BaseDelay
	}

	// Safe bit shifting to prevent overflow.
	if attempt > 30 {
		attempt = 30
	}

	multiplier := float64(int(1)<<uint(attempt-1)) * config.Multiplier // #nosec G115 -- attempt capped at 30
	delay := time.Duration(float64(config.BaseDelay) * multiplier)

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	return delay
}

// RetryAfterDelay extracts a server-requested retry delay from a
// Retry-After header, which id.twitch.tv sends on 429 responses either as
// an integer number of seconds or an HTTP date. Returns false when the
// header is absent or unparseable.
func RetryAfterDelay(headers http.Header) (time.Duration, bool) {
	raw := headers.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(raw); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}

// NextDelay picks the delay before the next retry attempt: the upstream's
// own Retry-After header takes priority over the token endpoint's
// rate-limit response, falling back to CalculateBackoff's exponential
// schedule when the header is absent, matching how this codebase honors
// provider-supplied retry hints ahead of a generic backoff elsewhere.
func NextDelay(config BackoffConfig, attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if delay, ok := RetryAfterDelay(resp.Header); ok {
			if delay > config.MaxDelay {
				return config.MaxDelay
			}
			return delay
		}
	}
	return CalculateBackoff(config, attempt)
}

package transport

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfterDelay_IntegerSeconds(t *testing.T) {
	headers := http.Header{"Retry-After": []string{"30"}}

	delay, ok := RetryAfterDelay(headers)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, delay)
}

func TestRetryAfterDelay_HTTPDate(t *testing.T) {
	when := time.Now().Add(45 * time.Second)
	headers := http.Header{"Retry-After": []string{when.UTC().Format(http.TimeFormat)}}

	delay, ok := RetryAfterDelay(headers)
	assert.True(t, ok)
	assert.InDelta(t, 45*time.Second, delay, float64(2*time.Second))
}

func TestRetryAfterDelay_Absent(t *testing.T) {
	_, ok := RetryAfterDelay(http.Header{})
	assert.False(t, ok)
}

func TestRetryAfterDelay_Garbage(t *testing.T) {
	headers := http.Header{"Retry-After": []string{"not-a-delay"}}

	_, ok := RetryAfterDelay(headers)
	assert.False(t, ok)
}

func TestRetryAfterDelay_NegativeSecondsRejected(t *testing.T) {
	headers := http.Header{"Retry-After": []string{"-5"}}

	_, ok := RetryAfterDelay(headers)
	assert.False(t, ok)
}

func TestNextDelay_PrefersRetryAfterHeader(t *testing.T) {
	config := DefaultBackoffConfig()
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"10"}}}

	delay := NextDelay(config, 1, resp)
	assert.Equal(t, 10*time.Second, delay)
}

func TestNextDelay_CapsHeaderDelayAtMaxDelay(t *testing.T) {
	config := DefaultBackoffConfig()
	config.MaxDelay = 5 * time.Second
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"120"}}}

	delay := NextDelay(config, 1, resp)
	assert.Equal(t, config.MaxDelay, delay)
}

func TestNextDelay_FallsBackToExponentialBackoffWithoutHeader(t *testing.T) {
	config := DefaultBackoffConfig()

	assert.Equal(t, CalculateBackoff(config, 2), NextDelay(config, 2, nil))
	assert.Equal(t, CalculateBackoff(config, 2), NextDelay(config, 2, &http.Response{Header: http.Header{}}))
}

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Client is a reusable HTTP client with retry, connection pooling, and
// metrics built in. The identity-service client wraps one of these rather
// than talking to net/http directly.
type Client struct {
	client       *http.Client
	config       Config
	metrics      *Metrics
	requestCount int64
	successCount int64
	errorCount   int64
	totalLatency int64 // nanoseconds
	mu           sync.RWMutex
	retry        *retryHandler
}

// Config configures a Client.
type Config struct {
	Timeout             time.Duration
	MaxRetries          int
	BaseRetryDelay      time.Duration
	MaxRetryDelay       time.Duration
	BackoffMultiplier   float64
	RetryableStatus     []string
	Headers             map[string]string
	UserAgent           string
	RequestInterceptor  RequestInterceptor
	ResponseInterceptor ResponseInterceptor

	// Transport / connection pooling.
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
}

// Metrics tracks client performance.
type Metrics struct {
	TotalRequests   int64
	SuccessfulReqs  int64
	FailedReqs      int64
	AvgLatency      time.Duration
	LastRequestTime time.Time
	RetryCount      int64
	ErrorsByType    map[int]int64
}

// RequestInterceptor allows modifying requests before sending.
type RequestInterceptor interface {
	Intercept(req *http.Request) error
}

// ResponseInterceptor allows processing responses after receiving.
type ResponseInterceptor interface {
	Intercept(resp *http.Response) error
}

type retryHandler struct {
	config Config
}

// New creates a Client with sane defaults for a rate-limited, occasionally
// flaky upstream token endpoint.
func New(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.BaseRetryDelay == 0 {
		config.BaseRetryDelay = time.Second
	}
	if config.MaxRetryDelay == 0 {
		config.MaxRetryDelay = 30 * time.Second
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if len(config.RetryableStatus) == 0 {
		config.RetryableStatus = []string{"429", "500", "502", "503", "504"}
	}

	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 20
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 5
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}
	if config.TLSHandshakeTimeout == 0 {
		config.TLSHandshakeTimeout = 10 * time.Second
	}
	if config.ExpectContinueTimeout == 0 {
		config.ExpectContinueTimeout = time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		Proxy:                 http.ProxyFromEnvironment,
	}

	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}
	if config.UserAgent != "" {
		config.Headers["User-Agent"] = config.UserAgent
	} else {
		config.Headers["User-Agent"] = "twitch-credprovider/1.0"
	}

	return &Client{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config:  config,
		metrics: &Metrics{ErrorsByType: make(map[int]int64)},
		retry:   &retryHandler{config: config},
	}
}

// Do executes an HTTP request with retry logic and metrics, honoring ctx
// cancellation between retries.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	atomic.AddInt64(&c.requestCount, 1)

	if c.config.RequestInterceptor != nil {
		if err := c.config.RequestInterceptor.Intercept(req); err != nil {
			return nil, fmt.Errorf("request interceptor failed: %w", err)
		}
	}

	for key, value := range c.config.Headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.calculateDelay(attempt, resp)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			atomic.AddInt64(&c.metrics.RetryCount, 1)
		}

		retryReq := req.Clone(ctx)
		resp, err = c.client.Do(retryReq)
		if err != nil {
			if attempt < c.config.MaxRetries {
				continue
			}
			break
		}

		if c.config.ResponseInterceptor != nil {
			if interceptErr := c.config.ResponseInterceptor.Intercept(resp); interceptErr != nil {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("response interceptor failed: %w", interceptErr)
			}
		}

		if c.shouldRetryStatus(resp.StatusCode, attempt) {
			_ = resp.Body.Close()
			continue
		}

		break
	}

	c.updateMetrics(resp, err, time.Since(start))
	return resp, err
}

// DoString executes req and returns the response body as a string.
func (c *Client) DoString(ctx context.Context, req *http.Request) (string, *http.Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp, fmt.Errorf("reading response body: %w", err)
	}
	return string(body), resp, nil
}

func (c *Client) shouldRetryStatus(statusCode, attempt int) bool {
	if attempt >= c.config.MaxRetries {
		return false
	}
	statusStr := fmt.Sprintf("%d", statusCode)
	for _, retryable := range c.config.RetryableStatus {
		if retryable == statusStr {
			return true
		}
	}
	return false
}

func (c *Client) updateMetrics(resp *http.Response, err error, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.LastRequestTime = time.Now()
	c.metrics.TotalRequests++

	if err != nil {
		c.errorCount++
		c.metrics.FailedReqs++
	} else {
		c.successCount++
		c.metrics.SuccessfulReqs++
		if resp != nil {
			c.metrics.ErrorsByType[resp.StatusCode]++
		}
	}

	atomic.AddInt64(&c.totalLatency, latency.Nanoseconds())
	totalReqs := atomic.LoadInt64(&c.requestCount)
	if totalReqs > 0 {
		c.metrics.AvgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / totalReqs)
	}
}

// GetMetrics returns a snapshot of client metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	metrics := *c.metrics
	metrics.TotalRequests = atomic.LoadInt64(&c.requestCount)
	metrics.SuccessfulReqs = atomic.LoadInt64(&c.successCount)
	metrics.FailedReqs = atomic.LoadInt64(&c.errorCount)
	return metrics
}

// calculateDelay honors a Retry-After header on the previous response (the
// shape id.twitch.tv uses on 429s) ahead of the generic exponential
// schedule, so a server-specified cooldown isn't ignored in favor of a
// guess.
func (r *retryHandler) calculateDelay(attempt int, lastResp *http.Response) time.Duration {
	return NextDelay(BackoffConfig{
		BaseDelay:   r.config.BaseRetryDelay,
		MaxDelay:    r.config.MaxRetryDelay,
		Multiplier:  r.config.BackoffMultiplier,
		MaxAttempts: r.config.MaxRetries,
	}, attempt, lastResp)
}

// Builder provides a builder pattern for Client, matching the fluent
// configuration style used elsewhere in this module.
type Builder struct {
	config Config
}

// NewBuilder creates a new Client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithTimeout sets the request timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetry sets retry count and base delay.
func (b *Builder) WithRetry(maxRetries int, baseDelay time.Duration) *Builder {
	b.config.MaxRetries = maxRetries
	b.config.BaseRetryDelay = baseDelay
	return b
}

// WithHeaders merges default headers into the client config.
func (b *Builder) WithHeaders(headers map[string]string) *Builder {
	if b.config.Headers == nil {
		b.config.Headers = make(map[string]string)
	}
	for k, v := range headers {
		b.config.Headers[k] = v
	}
	return b
}

// WithUserAgent sets the User-Agent header.
func (b *Builder) WithUserAgent(ua string) *Builder {
	b.config.UserAgent = ua
	return b
}

// Build constructs the Client.
func (b *Builder) Build() *Client {
	return New(b.config)
}

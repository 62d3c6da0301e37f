// Package clients provides the HTTP transport and authentication used to talk
// to the planning API.
package clients

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/planport/pkg/config"
	perrors "github.com/ajitpratap0/planport/pkg/errors"
	"github.com/ajitpratap0/planport/pkg/metrics"
)

// HTTPClient is a rate-limited HTTP client guarded by a circuit breaker.
// It is safe for concurrent use.
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client
	transport  http.RoundTripper

	totalRequests  int64
	failedRequests int64

	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`

	// HTTP/2 settings
	EnableHTTP2 bool `json:"enable_http2"`

	// Timeouts
	DialTimeout         time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout"`
	RequestTimeout      time.Duration `json:"request_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`

	UserAgent string `json:"user_agent"`

	// Rate limiting (0 = unlimited)
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	ResetTimeout          time.Duration `json:"reset_timeout"`

	// Transport replaces the default transport, mainly for tests
	Transport http.RoundTripper `json:"-"`
}

// DefaultHTTPConfig returns the default client configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		RequestTimeout:        60 * time.Second,
		KeepAlive:             30 * time.Second,
		UserAgent:             "planport",
		RateLimit:             10,
		RateBurst:             20,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		ResetTimeout:          30 * time.Second,
	}
}

// HTTPConfigFrom builds client settings from the application configuration.
func HTTPConfigFrom(cfg *config.Config) *HTTPConfig {
	c := DefaultHTTPConfig()
	c.MaxIdleConns = cfg.HTTP.MaxIdleConns
	c.MaxIdleConnsPerHost = cfg.HTTP.MaxIdleConnsPerHost
	c.IdleConnTimeout = cfg.HTTP.IdleConnTimeout
	c.EnableHTTP2 = cfg.HTTP.EnableHTTP2
	c.RequestTimeout = cfg.Connection.RequestTimeout
	c.UserAgent = cfg.Connection.UserAgent
	c.RateLimit = cfg.HTTP.RateLimitPerSec
	c.RateBurst = cfg.HTTP.RateLimitBurst
	c.CircuitBreakerEnabled = cfg.HTTP.CircuitBreaker
	c.FailureThreshold = cfg.HTTP.FailureThreshold
	c.ResetTimeout = cfg.HTTP.ResetTimeout
	return c
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
	}

	if config.Transport != nil {
		client.transport = config.Transport
	} else {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   config.DialTimeout,
				KeepAlive: config.KeepAlive,
			}).DialContext,
			MaxIdleConns:          config.MaxIdleConns,
			MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
			IdleConnTimeout:       config.IdleConnTimeout,
			TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		}

		if config.EnableHTTP2 {
			if err := http2.ConfigureTransport(transport); err != nil {
				client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
			} else {
				client.logger.Debug("HTTP/2 enabled")
			}
		}
		client.transport = transport
	}

	client.httpClient = &http.Client{
		Transport: client.transport,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		client.rateLimiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	if config.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(config.FailureThreshold, config.ResetTimeout, logger)
	}

	return client
}

// StandardClient returns the underlying *http.Client. It bypasses rate
// limiting and the circuit breaker and is meant for libraries that need a
// plain client, such as the OAuth2 token exchange.
func (c *HTTPClient) StandardClient() *http.Client {
	return c.httpClient
}

// Do performs an HTTP request. Transport failures are returned as connection
// or timeout errors; any HTTP status is returned as a response and 5xx
// statuses count against the circuit breaker.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			atomic.AddInt64(&c.failedRequests, 1)
			return nil, perrors.Wrap(err, perrors.ErrorTypeRateLimit, "rate limit wait aborted")
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, perrors.New(perrors.ErrorTypeConnection, "circuit breaker open").
			WithDetail("host", req.URL.Host)
	}

	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()

	resp, err := c.httpClient.Do(req)

	metrics.HTTPRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		metrics.HTTPRequests.WithLabelValues(req.Method, "error").Inc()
		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordFailure()
		}
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return nil, classifyTransportError(err)
	}

	metrics.HTTPRequests.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	if c.circuitBreaker != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			c.circuitBreaker.RecordFailure()
		} else {
			c.circuitBreaker.RecordSuccess()
		}
	}

	return resp, nil
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	total := atomic.LoadInt64(&c.totalRequests)
	failed := atomic.LoadInt64(&c.failedRequests)

	stats := HTTPStats{
		TotalRequests:  total,
		FailedRequests: failed,
	}
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	if c.circuitBreaker != nil {
		stats.CircuitState = c.circuitBreaker.State().String()
	}
	return stats
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64   `json:"total_requests"`
	FailedRequests int64   `json:"failed_requests"`
	SuccessRate    float64 `json:"success_rate"`
	CircuitState   string  `json:"circuit_state,omitempty"`
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return perrors.Wrap(err, perrors.ErrorTypeTimeout, "planning API request timed out")
	}
	return perrors.Wrap(err, perrors.ErrorTypeConnection, "planning API request failed")
}

package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/pipeline/resilience"
)

// Config configures the HTTP client.
type Config struct {
	// Name identifies the remote API in errors and logs (e.g. "pubmed").
	Name string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "X-API-Key", "Authorization").
	APIKeyHeader string

	// RetryOptions are passed to the retry engine around each request.
	RetryOptions []resilience.Option
}

// Client wraps http.Client with rate limiting and classified retries.
// It is safe for concurrent use.
type Client struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      Config
}

// New creates a new HTTP client with rate limiting.
// The client applies rate limiting before each request attempt and retries
// transient failures (429, 5xx, network errors) through the retry engine.
func New(cfg Config) *Client {
	// Apply defaults
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Helixir-Pipeline/1.0"
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries. It waits for
// the rate limiter before each attempt, sets the User-Agent and optional API
// key headers, and maps non-2xx responses to resilience.APIError so the retry
// engine can classify them. A Retry-After header on a 429 is honored in place
// of the computed backoff.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	// Set default headers
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	// Set API key if configured
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	ctx := req.Context()

	return resilience.DoValue(ctx, func() (*http.Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			// A cancelled wait must not be retried.
			return nil, err
		}

		if err := resetRequestBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewAPIError(c.config.Name, 0, "request failed", err)
		}

		if resp.StatusCode >= 400 {
			apiErr := responseError(c.config.Name, resp)

			// Honor Retry-After by absorbing the server-requested delay
			// before handing the error back to the retry engine.
			if resp.StatusCode == http.StatusTooManyRequests {
				if delay := retryAfter(resp); delay > 0 {
					if sleepErr := resilience.Sleep(ctx, delay); sleepErr != nil {
						return nil, sleepErr
					}
				}
			}

			return nil, apiErr
		}

		return resp, nil
	}, c.config.RetryOptions...)
}

// responseError drains and closes the response body and maps the status to a
// classified APIError.
func responseError(name string, resp *http.Response) *resilience.APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	msg := http.StatusText(resp.StatusCode)
	if len(body) > 0 {
		msg = string(body)
	}
	return resilience.NewAPIError(name, resp.StatusCode, msg, nil)
}

// retryAfter parses the Retry-After header as either seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}

// resetRequestBody resets the request body for retry if possible.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

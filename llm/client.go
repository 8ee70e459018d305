// Package llm provides LLM provider adapters for the pipeline's drafting and
// screening stages. Every provider call is wrapped in the retry engine, so
// transient provider failures (rate limits, 5xx, network errors) are retried
// with jittered exponential backoff while auth and validation failures
// surface immediately.
package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/helixir/pipeline/observability"
	"github.com/helixir/pipeline/resilience"
)

// Client is the provider-independent completion interface.
type Client interface {
	// Complete sends a completion request and returns the model's response.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Provider returns the provider name.
	Provider() string
	// Model returns the model identifier being used.
	Model() string
}

// Request is a provider-independent completion request.
type Request struct {
	// System is the system prompt (optional).
	System string
	// Prompt is the user prompt.
	Prompt string
	// MaxTokens caps the response length; 0 uses the client default.
	MaxTokens int
	// Temperature overrides the client temperature when non-nil.
	Temperature *float64
}

// Response is a provider-independent completion response.
type Response struct {
	// Text is the model's output.
	Text string
	// Model is the model that produced the response.
	Model string
	// StopReason is the provider's stop reason, if reported.
	StopReason string
	// Usage contains token consumption for the call.
	Usage Usage
}

// Usage contains token usage information for a completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ClientConfig holds the provider-independent parameters shared by adapters.
type ClientConfig struct {
	// APIKey is the provider API key.
	APIKey string
	// Model is the model identifier.
	Model string
	// BaseURL is the API base URL.
	BaseURL string
	// Timeout is the HTTP client timeout.
	Timeout time.Duration
	// Temperature is the default sampling temperature.
	Temperature float64
	// MaxTokens is the default response token cap.
	MaxTokens int
	// RateLimitRPS is the sustained requests-per-second limit; 0 disables
	// client-side rate limiting.
	RateLimitRPS float64
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int
	// RetryOptions are passed to the retry engine around each call.
	RetryOptions []resilience.Option
	// Metrics enables Prometheus instrumentation of completion calls; nil
	// disables it.
	Metrics *observability.Metrics
}

// defaultMaxTokens is the fallback response token cap.
const defaultMaxTokens = 1024

// newLimiter builds the optional per-client rate limiter.
func newLimiter(cfg ClientConfig) *rate.Limiter {
	if cfg.RateLimitRPS <= 0 {
		return nil
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
}

// waitLimiter waits on the limiter when one is configured.
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// recordCallMetrics records one finished completion call, failed or not.
// Failures are labeled with the classified error kind.
func recordCallMetrics(m *observability.Metrics, provider, model string, started time.Time, resp *Response, err error) {
	if m == nil {
		return
	}

	elapsed := time.Since(started).Seconds()
	m.LLMRequestsTotal.WithLabelValues(provider, model).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(elapsed)

	if err != nil {
		m.LLMRequestsFailed.WithLabelValues(provider, model, string(resilience.Classify(err))).Inc()
		m.CallDuration.WithLabelValues("llm.complete", "error").Observe(elapsed)
		return
	}

	m.CallDuration.WithLabelValues("llm.complete", "success").Observe(elapsed)
	m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(resp.Usage.InputTokens))
	m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(resp.Usage.OutputTokens))
}

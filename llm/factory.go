package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/helixir/pipeline/observability"
	"github.com/helixir/pipeline/resilience"
)

// FactoryConfig holds the parameters needed to create a Client.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// Temperature is the LLM temperature setting.
	Temperature float64
	// MaxTokens is the default response token cap.
	MaxTokens int
	// RateLimitRPS is the sustained requests-per-second limit per client.
	RateLimitRPS float64
	// RateLimitBurst is the burst size for the per-client rate limiter.
	RateLimitBurst int
	// RetryOptions are passed to the retry engine around each call.
	RetryOptions []resilience.Option
	// Metrics enables Prometheus instrumentation of completion calls.
	Metrics *observability.Metrics
	// OpenAI contains OpenAI-specific settings.
	OpenAI ProviderConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic ProviderConfig
}

// ProviderConfig holds provider-specific connection settings.
type ProviderConfig struct {
	// APIKey is the provider API key.
	APIKey string
	// Model is the model identifier.
	Model string
	// BaseURL is the API base URL (empty means the provider default).
	BaseURL string
}

// NewClient creates a Client based on the configuration. Supports "openai"
// and "anthropic" providers. Returns an error for unsupported or empty
// provider values.
func NewClient(cfg FactoryConfig) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAIClient(clientConfig(cfg, cfg.OpenAI)), nil
	case "anthropic":
		return NewAnthropicClient(clientConfig(cfg, cfg.Anthropic)), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// clientConfig merges the shared factory settings with one provider's settings.
func clientConfig(cfg FactoryConfig, provider ProviderConfig) ClientConfig {
	return ClientConfig{
		APIKey:         provider.APIKey,
		Model:          provider.Model,
		BaseURL:        provider.BaseURL,
		Timeout:        cfg.Timeout,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RetryOptions:   cfg.RetryOptions,
		Metrics:        cfg.Metrics,
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/helixir/pipeline/observability"
	"github.com/helixir/pipeline/resilience"
)

// defaultOpenAIBaseURL is the default OpenAI API base URL.
const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// chatRequest represents the OpenAI Chat Completions API request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the OpenAI Chat Completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage contains token usage information.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openAIErrorResponse represents an error response from the OpenAI API.
type openAIErrorResponse struct {
	Error openAIErrorDetail `json:"error"`
}

// openAIErrorDetail contains error details from the OpenAI API.
type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// OpenAIClient implements Client using the OpenAI Chat Completions API.
type OpenAIClient struct {
	httpClient   *http.Client
	limiter      *rate.Limiter
	apiKey       string
	model        string
	baseURL      string
	temperature  float64
	maxTokens    int
	retryOptions []resilience.Option
	metrics      *observability.Metrics
}

// NewOpenAIClient creates a new OpenAI completion client.
//
// Calls are rate limited when cfg.RateLimitRPS is positive, and transient API
// failures are retried through the retry engine with the configured options.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:      newLimiter(cfg),
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      baseURL,
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		retryOptions: cfg.RetryOptions,
		metrics:      cfg.Metrics,
	}
}

// Complete sends a completion request to the OpenAI Chat Completions API and
// returns the first choice's message content. Transient failures (429, 5xx,
// network errors) are retried; auth and validation errors surface immediately.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	apiReq := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	started := time.Now()
	resp, err := resilience.DoValue(ctx, func() (*chatResponse, error) {
		if err := waitLimiter(ctx, c.limiter); err != nil {
			return nil, err
		}
		return c.sendRequest(ctx, apiReq)
	}, c.retryOptions...)

	var out *Response
	if err == nil {
		out, err = parseOpenAIResponse(resp)
	}
	recordCallMetrics(c.metrics, "openai", c.model, started, out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Provider returns the provider name.
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Model returns the model identifier being used.
func (c *OpenAIClient) Model() string {
	return c.model
}

// sendRequest sends a single request to the OpenAI Chat Completions API and
// returns the parsed response or an error.
func (c *OpenAIClient) sendRequest(ctx context.Context, apiReq chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, resilience.NewAPIError("openai", 0, "request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, resilience.NewAPIError("openai", 0, "failed to read response body", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseOpenAIAPIError(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("openai: failed to unmarshal response: %w", err)
	}

	return &resp, nil
}

// parseOpenAIResponse converts the Chat Completions response into a Response,
// taking the first choice's message content.
func parseOpenAIResponse(resp *chatResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contains no choices")
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("openai: response choice contains no content")
	}

	return &Response{
		Text:       choice.Message.Content,
		Model:      resp.Model,
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// parseOpenAIAPIError parses an OpenAI API error from the response status code and body.
func parseOpenAIAPIError(statusCode int, body []byte) *resilience.APIError {
	message := string(body)
	code := ""

	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Type
		if errResp.Error.Code != "" {
			code = errResp.Error.Code
		}
	}

	apiErr := resilience.NewAPIError("openai", statusCode, message, nil)
	apiErr.Code = code
	return apiErr
}

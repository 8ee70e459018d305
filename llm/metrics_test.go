package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pipeline/observability"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

// ---------------------------------------------------------------------------
// TestComplete_RecordsMetrics
// ---------------------------------------------------------------------------

func TestComplete_RecordsMetrics(t *testing.T) {
	m := observability.NewMetrics("test_llm_complete_success")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := messagesResponse{
			ID:         "msg_metrics",
			Type:       "message",
			Role:       "assistant",
			Content:    []contentBlock{{Type: "text", Text: "approve"}},
			Model:      "claude-3-sonnet-20240229",
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 5, OutputTokens: 2},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client := NewAnthropicClient(ClientConfig{
		APIKey:       "test-key",
		Model:        "claude-3-sonnet-20240229",
		BaseURL:      server.URL,
		Timeout:      5 * time.Second,
		RetryOptions: fastRetries,
		Metrics:      m,
	})

	resp, err := client.Complete(context.Background(), Request{Prompt: "review this"})
	require.NoError(t, err)
	assert.Equal(t, "approve", resp.Text)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("anthropic", "claude-3-sonnet-20240229")))
	assert.Equal(t, float64(5),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "input")))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "output")))

	// One duration series per provider/model, one call-duration outcome series.
	assert.Equal(t, 1, testutil.CollectAndCount(m.LLMRequestDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CallDuration))
}

// ---------------------------------------------------------------------------
// TestComplete_RecordsFailureMetrics
// ---------------------------------------------------------------------------

func TestComplete_RecordsFailureMetrics(t *testing.T) {
	m := observability.NewMetrics("test_llm_complete_failure")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(openAIErrorResponse{
			Error: openAIErrorDetail{Message: "invalid api key", Type: "invalid_request_error"},
		})
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{
		APIKey:       "bad-key",
		Model:        "gpt-4-turbo",
		BaseURL:      server.URL,
		Timeout:      5 * time.Second,
		RetryOptions: fastRetries,
		Metrics:      m,
	})

	_, err := client.Complete(context.Background(), Request{Prompt: "review this"})
	require.Error(t, err)

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("openai", "gpt-4-turbo")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.LLMRequestsFailed.WithLabelValues("openai", "gpt-4-turbo", "auth_error")))

	// No tokens were consumed by the failed call.
	assert.Equal(t, float64(0),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4-turbo", "input")))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4-turbo", "output")))
}

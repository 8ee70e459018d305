package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_pipeline_new")

	assert.NotNil(t, m.CheckpointsCreated)
	assert.NotNil(t, m.Transitions)
	assert.NotNil(t, m.InvalidTransitions)
	assert.NotNil(t, m.StagesCompleted)
	assert.NotNil(t, m.RetryAttempts)
	assert.NotNil(t, m.RetriesExhausted)
	assert.NotNil(t, m.CallDuration)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMRequestsFailed)
	assert.NotNil(t, m.LLMRequestDuration)
	assert.NotNil(t, m.LLMTokensUsed)
	assert.NotNil(t, m.EventsPublished)
	assert.NotNil(t, m.EventsFailed)
}

func TestCheckpointCounters(t *testing.T) {
	m := NewMetrics("test_pipeline_checkpoints")

	m.CheckpointsCreated.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CheckpointsCreated))

	m.Transitions.WithLabelValues("approved").Inc()
	m.Transitions.WithLabelValues("approved").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Transitions.WithLabelValues("approved")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Transitions.WithLabelValues("rejected")))

	m.InvalidTransitions.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvalidTransitions))

	m.StagesCompleted.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StagesCompleted))
}

func TestRetryCounters(t *testing.T) {
	m := NewMetrics("test_pipeline_retries")

	m.RetryAttempts.WithLabelValues("rate_limit").Inc()
	m.RetryAttempts.WithLabelValues("rate_limit").Inc()
	m.RetryAttempts.WithLabelValues("timeout").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RetryAttempts.WithLabelValues("rate_limit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetryAttempts.WithLabelValues("timeout")))

	m.RetriesExhausted.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetriesExhausted))
}

func TestCallDurationHistogram(t *testing.T) {
	m := NewMetrics("test_pipeline_call_duration")

	m.CallDuration.WithLabelValues("llm.complete", "success").Observe(0.42)
	m.CallDuration.WithLabelValues("llm.complete", "success").Observe(1.5)

	count, err := histogramSampleCount(m.CallDuration.WithLabelValues("llm.complete", "success").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestLLMCounters(t *testing.T) {
	m := NewMetrics("test_pipeline_llm")

	m.LLMRequestsTotal.WithLabelValues("anthropic", "claude-3-sonnet-20240229").Inc()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("anthropic", "claude-3-sonnet-20240229")))

	m.LLMRequestsFailed.WithLabelValues("openai", "gpt-4-turbo", "rate_limit").Inc()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.LLMRequestsFailed.WithLabelValues("openai", "gpt-4-turbo", "rate_limit")))

	m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "input").Add(100)
	m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "output").Add(50)
	assert.Equal(t, float64(100),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "input")))
	assert.Equal(t, float64(50),
		testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-sonnet-20240229", "output")))
}

func TestEventCounters(t *testing.T) {
	m := NewMetrics("test_pipeline_events")

	m.EventsPublished.WithLabelValues("checkpoint.approved").Inc()
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.EventsPublished.WithLabelValues("checkpoint.approved")))

	m.EventsFailed.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsFailed))
}

// histogramSampleCount extracts the sample count from a histogram.
func histogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var metric = &dto.Metric{}
	if err := m.Write(metric); err != nil {
		return 0, err
	}

	return metric.Histogram.GetSampleCount(), nil
}

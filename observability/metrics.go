package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the pipeline reliability layer.
// Metrics are organized by subsystem: checkpoints, retried calls, and LLM
// operations. All counters and histograms are registered via promauto for
// automatic registration with the default Prometheus registry.
type Metrics struct {
	// CheckpointsCreated counts the total number of checkpoints created.
	CheckpointsCreated prometheus.Counter

	// Transitions counts successful checkpoint transitions, labeled by target status.
	Transitions *prometheus.CounterVec

	// InvalidTransitions counts rejected transition attempts.
	InvalidTransitions prometheus.Counter

	// StagesCompleted counts stage-completion checks that reported a completed stage.
	StagesCompleted prometheus.Counter

	// RetryAttempts counts retry attempts, labeled by classified error kind.
	RetryAttempts *prometheus.CounterVec

	// RetriesExhausted counts calls that failed after exhausting all retries.
	RetriesExhausted prometheus.Counter

	// CallDuration observes the duration of wrapped external calls in seconds,
	// labeled by operation and outcome.
	CallDuration *prometheus.HistogramVec

	// LLMRequestsTotal counts LLM API requests, labeled by provider and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by provider, model, and error kind.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by provider and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by provider, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// EventsPublished counts checkpoint lifecycle events published, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts lifecycle events that could not be published.
	EventsFailed prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Checkpoints
		CheckpointsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_created_total",
			Help:      "Total number of checkpoints created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_transitions_total",
			Help:      "Total number of successful checkpoint transitions",
		}, []string{"to_status"}),
		InvalidTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_invalid_transitions_total",
			Help:      "Total number of rejected checkpoint transition attempts",
		}),
		StagesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stages_completed_total",
			Help:      "Total number of completed stage checks",
		}),

		// Retried calls
		RetryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts by classified error kind",
		}, []string{"error_kind"}),
		RetriesExhausted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Total number of calls that failed after exhausting all retries",
		}),
		CallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of wrapped external calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"provider", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM API requests",
		}, []string{"provider", "model", "error_kind"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM API request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens consumed by LLM operations",
		}, []string{"provider", "model", "token_type"}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of checkpoint lifecycle events published",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of lifecycle events that failed to publish",
		}),
	}
}

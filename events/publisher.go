package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/pipeline/observability"
)

// Publisher delivers checkpoint lifecycle events to a downstream transport.
type Publisher interface {
	// Publish delivers a single event. Implementations must be safe for
	// concurrent use.
	Publish(ctx context.Context, ev *Event) error
	// Close releases transport resources.
	Close() error
}

// NopPublisher discards all events. Useful for embedded and test setups that
// do not need event delivery.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

// KafkaConfig holds configuration for the Kafka publisher.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic to publish checkpoint events to.
	Topic string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
}

// KafkaPublisher publishes events to a Kafka topic, keyed by checkpoint ID so
// all events of one checkpoint land on the same partition in order.
type KafkaPublisher struct {
	writer  *kafka.Writer
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithLogger sets the structured logger for publish failures.
func WithLogger(logger zerolog.Logger) KafkaOption {
	return func(p *KafkaPublisher) { p.logger = logger }
}

// WithMetrics enables Prometheus instrumentation of event publishing.
func WithMetrics(metrics *observability.Metrics) KafkaOption {
	return func(p *KafkaPublisher) { p.metrics = metrics }
}

// NewKafkaPublisher creates a Kafka publisher for checkpoint events.
func NewKafkaPublisher(cfg KafkaConfig, opts ...KafkaOption) *KafkaPublisher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	p := &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    batchSize,
			BatchTimeout: batchTimeout,
			RequiredAcks: kafka.RequireAll,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "kafka_publisher").Logger()
	return p
}

// Publish serializes the event as JSON and writes it to the topic.
func (p *KafkaPublisher) Publish(ctx context.Context, ev *Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.CheckpointID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.EventsFailed.Inc()
		}
		p.logger.Error().Err(err).
			Str("event_id", ev.ID).
			Str("event_type", ev.Type).
			Str("checkpoint_id", ev.CheckpointID).
			Msg("failed to publish event")
		return fmt.Errorf("write event %s: %w", ev.ID, err)
	}

	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

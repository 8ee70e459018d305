package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pipeline/observability"
)

// Default retry parameters.
const (
	// DefaultMaxRetries is the default number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the default base backoff delay.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay is the default backoff cap.
	DefaultMaxDelay = 30 * time.Second
	// DefaultJitter is the default jitter fraction.
	DefaultJitter = 0.25
)

// Options controls a single retried call. Options are ephemeral: constructed
// per call and discarded when the call completes.
type Options struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the backoff delay for the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Jitter is the fraction by which backoff delays are randomized.
	Jitter float64
	// RetryIf overrides the default retryability predicate entirely.
	RetryIf func(error) bool
	// OnRetry is invoked before each retry sleep with the error, the
	// 1-indexed retry number, and the computed delay.
	OnRetry func(err error, attempt int, delay time.Duration)

	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// Option configures a retried call.
type Option func(*Options)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithBaseDelay sets the base backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(o *Options) { o.BaseDelay = d }
}

// WithMaxDelay sets the backoff cap.
func WithMaxDelay(d time.Duration) Option {
	return func(o *Options) { o.MaxDelay = d }
}

// WithJitter sets the jitter fraction.
func WithJitter(jitter float64) Option {
	return func(o *Options) { o.Jitter = jitter }
}

// WithRetryIf replaces the default retryability predicate.
func WithRetryIf(predicate func(error) bool) Option {
	return func(o *Options) { o.RetryIf = predicate }
}

// WithOnRetry registers a callback invoked before each retry sleep.
func WithOnRetry(fn func(err error, attempt int, delay time.Duration)) Option {
	return func(o *Options) { o.OnRetry = fn }
}

// WithSleep replaces the sleep primitive. Tests use this to run retry loops
// without real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Options) { o.sleep = sleep }
}

// WithLogger sets the structured logger for retry attempt logging.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithMetrics enables Prometheus instrumentation of retry attempts.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(o *Options) { o.metrics = metrics }
}

// newOptions builds Options from defaults plus the given option functions.
func newOptions(opts []Option) Options {
	o := Options{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
		sleep:      Sleep,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Do executes op with bounded, classified retry. A non-retryable error, or
// the error of the final allowed attempt, is propagated to the caller
// unmodified; no dedicated exhaustion error wraps it. Context cancellation
// aborts a pending backoff sleep immediately.
func Do(ctx context.Context, op func() error, opts ...Option) error {
	_, err := DoValue(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, opts...)
	return err
}

// DoValue executes op with bounded, classified retry and returns its result.
// See Do for the retry contract.
func DoValue[T any](ctx context.Context, op func() (T, error), opts ...Option) (T, error) {
	o := newOptions(opts)

	retryable := o.RetryIf
	if retryable == nil {
		retryable = IsRetryable
	}

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op()
		if err == nil {
			return result, nil
		}

		if attempt >= o.MaxRetries || !retryable(err) {
			if o.metrics != nil && attempt >= o.MaxRetries && retryable(err) {
				o.metrics.RetriesExhausted.Inc()
			}
			return zero, err
		}

		delay := Backoff(attempt, o.BaseDelay, o.MaxDelay, o.Jitter)
		kind := Classify(err)

		o.logger.Warn().
			Err(err).
			Str("error_kind", string(kind)).
			Int("attempt", attempt+1).
			Int("max_retries", o.MaxRetries).
			Dur("delay", delay).
			Msg("retrying after transient error")

		if o.metrics != nil {
			o.metrics.RetryAttempts.WithLabelValues(string(kind)).Inc()
		}
		if o.OnRetry != nil {
			o.OnRetry(err, attempt+1, delay)
		}

		if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// Package chaos provides fault injection tests for the checkpoint manager and
// the retry engine.
//
// These tests verify behavior under contention and partial failure: racing
// reviewers, flaky external providers, and event publishers that go down
// mid-run. Everything runs in process against the in-memory store.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pipeline/checkpoint"
	"github.com/helixir/pipeline/events"
	"github.com/helixir/pipeline/resilience"
)

// fastRetries makes retry loops run without real backoff sleeps.
var fastRetries = []resilience.Option{
	resilience.WithSleep(func(ctx context.Context, d time.Duration) error {
		return ctx.Err()
	}),
}

// TestChaos_RacingReviewers verifies that when an approval and a rejection
// race on the same awaiting_review checkpoint, exactly one verdict wins and
// exactly one transition record is written.
func TestChaos_RacingReviewers(t *testing.T) {
	ctx := context.Background()
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore())

	_, err := mgr.Create(ctx, "contested", "contested review", "review", nil)
	require.NoError(t, err)
	_, err = mgr.Start(ctx, "contested")
	require.NoError(t, err)
	_, err = mgr.SubmitForReview(ctx, "contested")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = mgr.Approve(ctx, "contested", "alice", "ship it")
	}()
	go func() {
		defer wg.Done()
		_, results[1] = mgr.Reject(ctx, "contested", "bob", "hold on")
	}()
	wg.Wait()

	var won int
	for _, err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, checkpoint.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, won)

	cp, err := mgr.Get(ctx, "contested")
	require.NoError(t, err)
	assert.Contains(t, []checkpoint.Status{
		checkpoint.StatusApproved,
		checkpoint.StatusRejected,
	}, cp.Status)

	history, err := mgr.History(ctx, "contested")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

// TestChaos_FlakyProviderUnderLoad runs many concurrent retried calls against
// a provider that fails a fixed number of times per caller. Every call must
// eventually succeed without cross-talk between the retry loops.
func TestChaos_FlakyProviderUnderLoad(t *testing.T) {
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var calls atomic.Int32
			_, errs[i] = resilience.DoValue(ctx, func() (int, error) {
				if calls.Add(1) <= 2 {
					return 0, resilience.NewAPIError("flaky", http.StatusServiceUnavailable, "overloaded", nil)
				}
				return i, nil
			}, fastRetries...)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
}

// failingPublisher fails every publish after a configurable number of
// successes, simulating a broker outage mid-run.
type failingPublisher struct {
	mu        sync.Mutex
	succeeded int
	allow     int
}

func (p *failingPublisher) Publish(_ context.Context, _ *events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.succeeded >= p.allow {
		return errors.New("broker unavailable")
	}
	p.succeeded++
	return nil
}

func (p *failingPublisher) Close() error { return nil }

// TestChaos_PublisherOutageDoesNotBlockTransitions verifies that event
// delivery failures never fail or roll back committed transitions.
func TestChaos_PublisherOutageDoesNotBlockTransitions(t *testing.T) {
	ctx := context.Background()
	pub := &failingPublisher{allow: 1}
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore(),
		checkpoint.WithListener(events.NewRecorder(pub, zerolog.Nop())),
	)

	_, err := mgr.Create(ctx, "outage", "broker outage subject", "extraction", nil)
	require.NoError(t, err)

	// The broker dies after the created event; the state machine must not care.
	_, err = mgr.Start(ctx, "outage")
	require.NoError(t, err)
	_, err = mgr.SubmitForReview(ctx, "outage")
	require.NoError(t, err)
	_, err = mgr.Approve(ctx, "outage", "alice", "")
	require.NoError(t, err)

	cp, err := mgr.Get(ctx, "outage")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusApproved, cp.Status)

	history, err := mgr.History(ctx, "outage")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

// TestChaos_ManyCheckpointsFullLifecycle drives a batch of checkpoints through
// the complete lifecycle concurrently and checks stage completion at the end.
func TestChaos_ManyCheckpointsFullLifecycle(t *testing.T) {
	ctx := context.Background()
	mgr := checkpoint.NewManager(checkpoint.NewMemoryStore())

	const n = 20
	for i := 0; i < n; i++ {
		_, err := mgr.Create(ctx, fmt.Sprintf("bulk-%02d", i), "bulk subject", "bulk", nil)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("bulk-%02d", i)
			if _, err := mgr.Start(ctx, id); err != nil {
				errs[i] = err
				return
			}
			if _, err := mgr.SubmitForReview(ctx, id); err != nil {
				errs[i] = err
				return
			}
			if i%5 == 0 {
				_, errs[i] = mgr.Reject(ctx, id, "bob", "spot check failed")
				if errs[i] != nil {
					return
				}
				if _, err := mgr.Start(ctx, id); err != nil {
					errs[i] = err
					return
				}
				if _, err := mgr.SubmitForReview(ctx, id); err != nil {
					errs[i] = err
					return
				}
			}
			_, errs[i] = mgr.Approve(ctx, id, "alice", "")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "checkpoint %d", i)
	}

	complete, err := mgr.IsStageComplete(ctx, "bulk")
	require.NoError(t, err)
	assert.True(t, complete)
}

// TestChaos_ContextCancellationStopsRetries verifies that cancelling the
// context mid-backoff aborts the retry loop promptly instead of burning
// through the remaining attempts.
func TestChaos_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := resilience.DoValue(ctx, func() (int, error) {
			calls.Add(1)
			return 0, resilience.NewAPIError("slow", http.StatusServiceUnavailable, "overloaded", nil)
		},
			resilience.WithMaxRetries(100),
			resilience.WithBaseDelay(50*time.Millisecond),
			resilience.WithMaxDelay(50*time.Millisecond),
			resilience.WithJitter(0),
		)
		done <- err
	}()

	// Let at least one attempt land, then pull the plug.
	time.Sleep(75 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop after cancellation")
	}

	assert.Less(t, calls.Load(), int32(10))
}

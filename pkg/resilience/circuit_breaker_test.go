package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	states []int
	trips  int
}

func (r *recordingObserver) SetCircuitBreakerState(_ string, state int) {
	r.states = append(r.states, state)
}

func (r *recordingObserver) RecordCircuitBreakerTrip(_ string) {
	r.trips++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("mongodb")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	obs := &recordingObserver{}
	cb := NewCircuitBreaker(cfg, quietLogger(), obs)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), func(context.Context) (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, 1, obs.trips)

	called := false
	_, err := cb.Execute(context.Background(), func(context.Context) (any, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_IsSuccessfulExcludesErrors(t *testing.T) {
	notFound := errors.New("not found")
	cfg := DefaultCircuitBreakerConfig("mongodb")
	cfg.FailureThreshold = 1
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, notFound) }
	cb := NewCircuitBreaker(cfg, quietLogger(), nil)

	_, err := cb.Execute(context.Background(), func(context.Context) (any, error) { return nil, notFound })
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestRetry(t *testing.T) {
	cfg := &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	attempts := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	err = Retry(context.Background(), cfg, func(context.Context) error { return errors.New("never") })
	assert.ErrorContains(t, err, "max retries (3) exceeded")
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 10*time.Millisecond, 100*time.Millisecond)
	transient := Transient(errors.New("503"))

	require.False(t, p.ShouldRetry(nil, 0))
	require.True(t, p.ShouldRetry(transient, 0))
	require.True(t, p.ShouldRetry(fmt.Errorf("fetch: %w", transient), 2))
	require.False(t, p.ShouldRetry(transient, 3), "budget exhausted")
	require.False(t, p.ShouldRetry(ErrNotFound, 0))
	require.False(t, p.ShouldRetry(&FatalRunError{Err: errors.New("parse")}, 0))
	require.False(t, p.ShouldRetry(Transient(context.Canceled), 0))
}

func TestExponentialRetryPolicyBackoffIsCapped(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, 10*time.Millisecond, 40*time.Millisecond)
	for attempt := 0; attempt < 8; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
	require.GreaterOrEqual(t, p.Backoff(0), 5*time.Millisecond)
}

func TestExponentialRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(0, 0, 0)
	require.Equal(t, 3, p.MaxAttempts())
	require.LessOrEqual(t, p.Backoff(10), 5*time.Second)
}

func TestRetryAfterHint(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("list: %w", &TransientFetchError{Err: errors.New("429"), RetryAfter: 2 * time.Second})
	require.Equal(t, 2*time.Second, RetryAfter(err))
	require.Zero(t, RetryAfter(errors.New("plain")))
}

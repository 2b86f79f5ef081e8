package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowPermitsBurstThenDebounces(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 2, Debounce: time.Hour})

	require.True(t, l.Allow("task-1"))
	// Still inside the debounce window set by the first Allow.
	require.False(t, l.Allow("task-1"))
}

func TestAllowIsPerKey(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 2, Debounce: time.Hour})

	require.True(t, l.Allow("task-1"))
	require.True(t, l.Allow("task-2"))
}

func TestAllowReleasesAfterDebounceWindow(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 5, Debounce: 20 * time.Millisecond})

	require.True(t, l.Allow("task-1"))
	require.False(t, l.Allow("task-1"))

	time.Sleep(40 * time.Millisecond)
	require.True(t, l.Allow("task-1"))
}

func TestAllowExhaustsTokenBucketAcrossDebounceWindows(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.001, Burst: 1, Debounce: time.Millisecond})

	require.True(t, l.Allow("task-1"))
	time.Sleep(5 * time.Millisecond)
	// Debounce window has passed, but the bucket has no tokens left
	// and refills far too slowly to have one yet.
	require.False(t, l.Allow("task-1"))
}

func TestResetClearsKeyState(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 1, Debounce: time.Hour})

	require.True(t, l.Allow("task-1"))
	require.False(t, l.Allow("task-1"))

	l.Reset("task-1")
	require.True(t, l.Allow("task-1"))
}

func TestDefaultConfigUsedWhenZero(t *testing.T) {
	l := New(Config{})
	require.Equal(t, DefaultConfig().RequestsPerSecond, l.cfg.RequestsPerSecond)
	require.Equal(t, DefaultConfig().Burst, l.cfg.Burst)
}

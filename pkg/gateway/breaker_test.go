package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faaslocal/platform/pkg/types"
)

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("echo", BreakerConfig{MaxFailures: 3, ResetAfter: time.Hour})

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Allow())
		b.Report(false)
	}

	require.Equal(t, types.BreakerOpen, b.State())
	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerHalfOpenAllowsExactlyOneProbe(t *testing.T) {
	b := NewBreaker("echo", BreakerConfig{MaxFailures: 1, ResetAfter: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Report(false)
	require.Equal(t, types.BreakerOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow())
	require.Equal(t, types.BreakerHalfOpen, b.State())

	require.ErrorIs(t, b.Allow(), ErrBreakerOpen)
}

func TestBreakerClosesAfterSuccessfulProbe(t *testing.T) {
	b := NewBreaker("echo", BreakerConfig{MaxFailures: 1, ResetAfter: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Report(false)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Report(true)

	require.Equal(t, types.BreakerClosed, b.State())
	require.NoError(t, b.Allow())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewBreaker("echo", BreakerConfig{MaxFailures: 1, ResetAfter: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Report(false)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Report(false)

	require.Equal(t, types.BreakerOpen, b.State())
}

package reconciler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingReaper struct {
	calls atomic.Int32
}

func (c *countingReaper) Reap(ctx context.Context) {
	c.calls.Add(1)
}

func TestReconcilerTicksReaper(t *testing.T) {
	reaper := &countingReaper{}
	r := New(reaper, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool {
		return reaper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestReconcilerStopIsIdempotent(t *testing.T) {
	reaper := &countingReaper{}
	r := New(reaper, 10*time.Millisecond)
	r.Start()
	r.Stop()
	require.NotPanics(t, func() { r.Stop() })
}

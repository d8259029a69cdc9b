package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunLimiter_SlotAccounting(t *testing.T) {
	l := NewRunLimiter(2, time.Second)
	ctx := context.Background()

	require.Equal(t, RunLimiterStatus{Active: 0, Available: 2, MaxConcurrent: 2}, l.Status())

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.Equal(t, RunLimiterStatus{Active: 2, Available: 0, MaxConcurrent: 2}, l.Status())

	l.Release()
	require.Equal(t, 1, l.Status().Active)
	l.Release()
	require.Equal(t, 0, l.Status().Active)
}

func TestRunLimiter_FullLimiterTimesOut(t *testing.T) {
	l := NewRunLimiter(1, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	defer l.Release()

	start := time.Now()
	require.ErrorIs(t, l.Acquire(ctx), ErrTooManyUploads)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestRunLimiter_WaiterGetsReleasedSlot(t *testing.T) {
	l := NewRunLimiter(1, time.Second)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	l.Release()

	select {
	case err := <-done:
		require.NoError(t, err)
		l.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released slot")
	}
}

func TestRunLimiter_CancelledContext(t *testing.T) {
	l := NewRunLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestRunLimiter_Defaults(t *testing.T) {
	l := NewRunLimiter(0, -1)
	require.Equal(t, DefaultMaxConcurrentRuns, l.Status().MaxConcurrent)
	require.Equal(t, DefaultMaxWaitTime, l.maxWait)
}

func TestRunLimiter_WaitForDrain(t *testing.T) {
	l := NewRunLimiter(3, time.Second)
	ctx := context.Background()

	require.NoError(t, l.WaitForDrain(ctx), "idle limiter drains immediately")

	var wg sync.WaitGroup
	for range 3 {
		require.NoError(t, l.Acquire(ctx))
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(20 * time.Millisecond)
			l.Release()
		}()
	}

	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, l.WaitForDrain(drainCtx))
	require.Equal(t, 0, l.Status().Active)
	wg.Wait()
}

func TestRunLimiter_WaitForDrainDeadline(t *testing.T) {
	l := NewRunLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}

func TestRunLimiter_ReleaseWithoutAcquirePanics(t *testing.T) {
	require.Panics(t, func() { NewRunLimiter(1, time.Second).Release() })
}

func TestRunLimiter_WaitForDrainCountsQueuedRuns(t *testing.T) {
	l := NewRunLimiter(1, time.Second)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		if l.Acquire(ctx) == nil {
			close(acquired)
		}
	}()
	time.Sleep(20 * time.Millisecond)

	drained := make(chan error, 1)
	go func() { drained <- l.WaitForDrain(ctx) }()

	// The slot passes straight to the queued run, so the limiter never idles.
	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued run never acquired the slot")
	}
	select {
	case err := <-drained:
		t.Fatalf("WaitForDrain returned %v while a run still holds a slot", err)
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForDrain did not return after the last release")
	}
}

func TestRunLimiter_TimedOutWaiterLeavesLimiterIdle(t *testing.T) {
	l := NewRunLimiter(1, 20*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	require.ErrorIs(t, l.Acquire(ctx), ErrTooManyUploads)
	l.Release()

	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, l.WaitForDrain(drainCtx))
}

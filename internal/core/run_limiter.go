package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no ingestion slot frees up in time.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

const (
	DefaultMaxConcurrentRuns = 4
	DefaultMaxWaitTime       = 30 * time.Second
)

// RunLimiter bounds the number of ingestion runs in flight. A run holds one
// slot from staging until its temp files are gone.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu       sync.Mutex
	active   int           // runs holding a slot
	inFlight int           // active plus runs still waiting in Acquire
	idle     chan struct{} // closed while inFlight == 0
}

// NewRunLimiter allows at most maxConcurrent simultaneous runs, each waiting
// up to maxWait for a slot. Non-positive arguments fall back to the defaults.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire takes a slot; the caller must Release it exactly once.
// A done ctx returns ctx.Err() and an expired wait returns ErrTooManyUploads.
// The run counts as in flight from the moment Acquire is entered.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	l.enter()

	select {
	case l.slots <- struct{}{}:
		l.markActive()
		return nil
	default:
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.markActive()
		return nil
	case <-ctx.Done():
		l.leave()
		return ctx.Err()
	case <-timer.C:
		l.leave()
		return ErrTooManyUploads
	}
}

func (l *RunLimiter) enter() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight == 0 {
		l.idle = make(chan struct{})
	}
	l.inFlight++
}

func (l *RunLimiter) leave() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
	if l.inFlight == 0 {
		close(l.idle)
	}
}

func (l *RunLimiter) markActive() {
	l.mu.Lock()
	l.active++
	l.mu.Unlock()
}

// Release returns a slot taken by Acquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	if l.active == 0 {
		l.mu.Unlock()
		panic("core: RunLimiter.Release without Acquire")
	}
	l.active--
	l.mu.Unlock()

	<-l.slots
	l.leave()
}

// WaitForDrain blocks until no run holds or waits for a slot, or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunLimiterStatus is a point-in-time view of slot usage.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	return RunLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}

// ABOUTME: Process-wide rolling-window rate budget for remote calls
// ABOUTME: Blocks until a slot frees up, enforces a minimum spacing, and gives up after a bounded wait
package remote

import (
	"context"
	"sync"
	"time"
)

// RateBudget tracks request timestamps inside a rolling window.
// It is safe for concurrent use; one budget is shared per process.
type RateBudget struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	minDelay time.Duration
	maxWait  time.Duration
	stamps   []time.Time
	last     time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewRateBudget creates a budget allowing max requests per window.
func NewRateBudget(window time.Duration, max int, minDelay, maxWait time.Duration) *RateBudget {
	return &RateBudget{
		window:   window,
		max:      max,
		minDelay: minDelay,
		maxWait:  maxWait,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// WithClock replaces the time source and sleeper, for tests.
func (b *RateBudget) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *RateBudget {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	b.sleep = sleep
	return b
}

// Acquire reserves a slot for one request. It blocks while the window is full
// or the minimum spacing has not elapsed, and returns a *RateLimitError once
// the total wait would exceed the configured maximum.
func (b *RateBudget) Acquire(ctx context.Context) error {
	start := b.clock()
	deadline := start.Add(b.maxWait)

	for {
		b.mu.Lock()
		now := b.now()
		b.prune(now)

		wait := b.waitFor(now)
		if wait <= 0 {
			b.stamps = append(b.stamps, now)
			b.last = now
			b.mu.Unlock()
			return nil
		}
		sleep := b.sleep
		b.mu.Unlock()

		if now.Add(wait).After(deadline) {
			return &RateLimitError{Wait: wait, MaxWait: b.maxWait}
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow returns the number of requests counted in the current window.
func (b *RateBudget) InWindow() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.now())
	return len(b.stamps)
}

func (b *RateBudget) clock() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now()
}

// prune drops stamps that have left the window. Caller holds mu.
func (b *RateBudget) prune(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.stamps) && !b.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.stamps = append(b.stamps[:0], b.stamps[i:]...)
	}
}

// waitFor returns how long the caller must wait before a slot is free. Caller holds mu.
func (b *RateBudget) waitFor(now time.Time) time.Duration {
	var wait time.Duration

	if b.max > 0 && len(b.stamps) >= b.max {
		wait = b.stamps[0].Add(b.window).Sub(now)
	}

	if b.minDelay > 0 && !b.last.IsZero() {
		if spacing := b.last.Add(b.minDelay).Sub(now); spacing > wait {
			wait = spacing
		}
	}

	return wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

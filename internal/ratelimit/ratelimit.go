// Package ratelimit bounds the rate of outbound embedding API calls to a
// fixed number of requests per rolling 60-second window. Unlike a token
// bucket, the sliding window admits the full budget in a burst and then makes
// callers wait for the oldest request to age out; callers are always delayed,
// never rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// defaultLimit is the requests-per-minute budget when the caller passes a
// non-positive limit.
const defaultLimit = 60

// window is the rolling interval over which the limit applies.
const window = time.Minute

// SlidingWindow is a delay-only rate limiter over a rolling one-minute
// window. It is safe for concurrent use; ordering among concurrent waiters
// follows wake-up order and is not strictly FIFO.
type SlidingWindow struct {
	// mu protects history.
	mu sync.Mutex
	// limit is the maximum number of acquisitions per window.
	limit int
	// history holds the timestamps of acquisitions within the window,
	// oldest first. Pruned on every Acquire.
	history []time.Time

	// now and sleep are indirected so tests can drive virtual time.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow constructs a limiter admitting limit acquisitions per
// rolling minute.
func NewSlidingWindow(limit int) *SlidingWindow {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &SlidingWindow{
		limit: limit,
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Acquire blocks until one more request may be issued, then records it.
// It returns an error only when ctx is cancelled while waiting.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.history) < l.limit {
			l.history = append(l.history, now)
			l.mu.Unlock()
			return nil
		}

		// Wait for the oldest request to leave the window, then re-check:
		// other callers may have claimed the freed slot first.
		wait := l.history[0].Add(window).Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset clears the request history. Intended for tests that reuse a limiter
// across scenarios.
func (l *SlidingWindow) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = l.history[:0]
}

// Pending returns the number of acquisitions currently inside the window.
func (l *SlidingWindow) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.history)
}

// prune drops history entries older than the window. Callers must hold mu.
func (l *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(l.history) && !l.history[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.history = append(l.history[:0], l.history[i:]...)
	}
}

// sleepContext sleeps for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

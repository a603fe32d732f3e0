package ratelimit

import (
	"context"
	"testing"
	"time"
)

// fakeClock drives a SlidingWindow with virtual time: sleep advances the
// clock instead of blocking.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) install(l *SlidingWindow) {
	l.now = func() time.Time { return c.t }
	l.sleep = func(_ context.Context, d time.Duration) error {
		c.t = c.t.Add(d)
		return nil
	}
}

func Test_Acquire_UnderLimitIsImmediate(t *testing.T) {
	t.Parallel()
	l := NewSlidingWindow(3)
	clk := &fakeClock{t: time.Unix(1000, 0)}
	clk.install(l)

	start := clk.t
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	if !clk.t.Equal(start) {
		t.Errorf("clock advanced by %v for under-limit acquires", clk.t.Sub(start))
	}
	if got := l.Pending(); got != 3 {
		t.Errorf("Pending = %d, want 3", got)
	}
}

func Test_Acquire_DelaysUntilOldestExpires(t *testing.T) {
	t.Parallel()
	l := NewSlidingWindow(2)
	clk := &fakeClock{t: time.Unix(1000, 0)}
	clk.install(l)

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(10 * time.Second)
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	// Third acquire must wait until the first timestamp leaves the window:
	// first was at t=0, so the slot frees at t=60s.
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	elapsed := clk.t.Sub(time.Unix(1000, 0))
	if elapsed < 60*time.Second {
		t.Errorf("third acquire completed at +%v, want >= 60s", elapsed)
	}
}

func Test_Acquire_NeverExceedsBudgetInWindow(t *testing.T) {
	t.Parallel()
	const limit = 5
	l := NewSlidingWindow(limit)
	clk := &fakeClock{t: time.Unix(0, 0)}
	clk.install(l)

	// Record every acquisition completion time, firing 20 in a row.
	var completions []time.Time
	for i := 0; i < 20; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
		completions = append(completions, clk.t)
	}

	// No trailing 60s window may contain more than limit completions.
	for i := range completions {
		count := 0
		for j := range completions {
			d := completions[i].Sub(completions[j])
			if d >= 0 && d < time.Minute {
				count++
			}
		}
		if count > limit {
			t.Fatalf("window ending at %v holds %d completions, budget is %d", completions[i], count, limit)
		}
	}
}

func Test_Acquire_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()
	l := NewSlidingWindow(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Error("Acquire with cancelled context: want error, got nil")
	}
}

func Test_Reset(t *testing.T) {
	t.Parallel()
	l := NewSlidingWindow(2)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.Reset()
	if got := l.Pending(); got != 0 {
		t.Errorf("Pending after Reset = %d, want 0", got)
	}
}

func Test_Acquire_RealSleepIsBounded(t *testing.T) {
	t.Parallel()
	// Sanity check the production sleep path with a sub-window wait by
	// seeding history just inside the cutoff.
	l := NewSlidingWindow(1)
	l.mu.Lock()
	l.history = append(l.history, time.Now().Add(-window+20*time.Millisecond))
	l.mu.Unlock()

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Acquire blocked %v, want well under the full window", elapsed)
	}
}

package llm

import (
	"context"
	"time"
)

// RateLimiter admits at most Limit calls in any sliding Window. When full,
// Wait blocks until the oldest admitted call leaves the window. It is meant
// to be owned by one goroutine and does no locking.
type RateLimiter struct {
	Limit  int
	Window time.Duration
	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	calls []time.Time
}

// NewRateLimiter returns a limiter allowing perMinute calls per 60 seconds.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{Limit: perMinute, Window: time.Minute}
}

// Wait blocks until a call may proceed and records it.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.Limit <= 0 {
		return nil
	}
	for {
		now := r.now()
		r.evict(now)
		if len(r.calls) < r.Limit {
			r.calls = append(r.calls, now)
			return nil
		}
		wait := r.window() - now.Sub(r.calls[0])
		if wait <= 0 {
			continue
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// InWindow reports how many admitted calls are still inside the window.
func (r *RateLimiter) InWindow() int {
	r.evict(r.now())
	return len(r.calls)
}

func (r *RateLimiter) evict(now time.Time) {
	w := r.window()
	i := 0
	for i < len(r.calls) && now.Sub(r.calls[i]) >= w {
		i++
	}
	r.calls = r.calls[i:]
}

func (r *RateLimiter) window() time.Duration {
	if r.Window <= 0 {
		return time.Minute
	}
	return r.Window
}

func (r *RateLimiter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

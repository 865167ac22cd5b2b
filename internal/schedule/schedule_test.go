package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery_RejectsTinyInterval(t *testing.T) {
	if err := Every(context.Background(), time.Millisecond, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEvery_RunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int32
	err := Every(ctx, time.Hour, func(context.Context) error {
		atomic.AddInt32(&n, 1)
		cancel()
		return errors.New("logged, not returned")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected one immediate run, got %d", n)
	}
}

func TestEvery_TicksAndSkipsOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for cron ticks")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3500*time.Millisecond)
	defer cancel()
	var running, overlaps, runs int32
	_ = Every(ctx, time.Second, func(context.Context) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		defer atomic.AddInt32(&running, -1)
		atomic.AddInt32(&runs, 1)
		time.Sleep(1500 * time.Millisecond)
		return nil
	})
	if overlaps != 0 {
		t.Fatalf("runs overlapped %d times", overlaps)
	}
	if runs < 2 {
		t.Fatalf("expected at least two runs, got %d", runs)
	}
}

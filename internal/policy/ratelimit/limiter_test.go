package ratelimit

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	var delays atomic.Int32
	// 10 RPS = 1 token every 100ms, burst 1.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
		OnDelay:      func(string, time.Duration) { delays.Add(1) },
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://data.commoncrawl.org/a"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://data.commoncrawl.org/b"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
	if delays.Load() != 1 {
		t.Errorf("expected one delay observation, got %d", delays.Load())
	}
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.example/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.example/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host b blocked by host a")
	}
}

func TestLimiter_UnlimitedAndCanceled(t *testing.T) {
	t.Parallel()

	unlimited := New(Config{})
	for i := 0; i < 100; i++ {
		if err := unlimited.Wait(context.Background(), "https://x.example"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	strict := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	if err := strict.Wait(context.Background(), "https://y.example"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := strict.Wait(ctx, "https://y.example"); err == nil {
		t.Fatal("expected canceled wait to fail")
	}
}

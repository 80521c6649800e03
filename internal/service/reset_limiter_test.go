package service

import (
	"context"
	"testing"
	"time"
)

func TestMemoryResetLimiterBoundary(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewMemoryResetLimiter(3, time.Hour, clock)

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), "dev@codescribe.ai")
		if err != nil {
			t.Fatalf("allow %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d within limit must be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(context.Background(), "dev@codescribe.ai")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("4th request within the window must be rejected")
	}

	clock.Advance(time.Hour)
	allowed, err = limiter.Allow(context.Background(), "dev@codescribe.ai")
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("request after the window elapsed must be allowed again")
	}
}

func TestMemoryResetLimiterKeysAreIndependent(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewMemoryResetLimiter(3, time.Hour, clock)

	for i := 0; i < 4; i++ {
		_, _ = limiter.Allow(context.Background(), "a@codescribe.ai")
	}

	allowed, err := limiter.Allow(context.Background(), "b@codescribe.ai")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !allowed {
		t.Fatal("one identity hitting the limit must not affect another")
	}
}

func TestMemoryResetLimiterEvictsIdleEntries(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewMemoryResetLimiter(3, time.Hour, clock)

	_, _ = limiter.Allow(context.Background(), "a@codescribe.ai")
	clock.Advance(3 * time.Hour)
	_, _ = limiter.Allow(context.Background(), "b@codescribe.ai")

	limiter.mutex.Lock()
	_, stillThere := limiter.limiters["a@codescribe.ai"]
	limiter.mutex.Unlock()
	if stillThere {
		t.Fatal("idle entries past twice the window must be evicted")
	}
}

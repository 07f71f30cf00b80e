package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireAllowsBurst(t *testing.T) {
	t.Parallel()
	limiter := New("test", 1, 2)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Acquire(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := limiter.Acquire(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("burst acquires should return immediately")
	}
}

func TestAcquireDebitsCost(t *testing.T) {
	t.Parallel()
	limiter := New("test", 100, 3)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.Acquire(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Bucket drained: the next token arrives after ~10ms at 100/s.
	if err := limiter.Acquire(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("acquire after draining the bucket should have waited for refill")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()
	limiter := New("test", 0.001, 1)
	ctx := context.Background()
	_ = limiter.Acquire(ctx, 1)

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := limiter.Acquire(timeoutCtx, 1); err == nil {
		t.Fatal("expected context deadline error")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("acquire should stop after context cancellation")
	}
}

func TestAcquireCapsCostToBurst(t *testing.T) {
	t.Parallel()
	limiter := New("test", 1000, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := limiter.Acquire(ctx, 10); err != nil {
		t.Fatalf("over-burst cost should be capped, got %v", err)
	}
}

func TestRegistrySharesLimiters(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil)

	a := reg.For("dexscreener")
	b := reg.For("dexscreener")
	if a != b {
		t.Fatal("registry must return the same limiter per provider")
	}
	if a.Name() != "dexscreener" {
		t.Fatalf("unexpected limiter name %s", a.Name())
	}

	perSec, burst := reg.For("unknown-provider").Rate()
	if perSec != 1 || burst != 1 {
		t.Fatalf("unknown provider should get conservative bucket, got %f/%d", perSec, burst)
	}
}

func TestRegistryOverrides(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(map[string]Setting{"coingecko": {PerSec: 10, Burst: 20}})

	perSec, burst := reg.For("coingecko").Rate()
	if perSec != 10 || burst != 20 {
		t.Fatalf("override not applied: %f/%d", perSec, burst)
	}
}

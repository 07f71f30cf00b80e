package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type permanentErr struct{ msg string }

func (e permanentErr) Error() string   { return e.msg }
func (e permanentErr) Permanent() bool { return true }

func newTestPolicy(maxAttempts int, base time.Duration, jitter float64) (*Policy, *[]time.Duration) {
	p := NewPolicy(maxAttempts, base, jitter)
	slept := &[]time.Duration{}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p, slept
}

func TestDelaySequenceWithoutJitter(t *testing.T) {
	t.Parallel()
	p := NewPolicy(3, time.Second, 0.20)
	p.rand = func() float64 { return 0 }

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("delay %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestDelayJitterBounded(t *testing.T) {
	t.Parallel()
	p := NewPolicy(3, time.Second, 0.20)
	p.rand = func() float64 { return 1 }

	// Full jitter inflates each nominal delay by exactly 20%.
	if got := p.Delay(1); got != 1200*time.Millisecond {
		t.Errorf("delay 1 = %v, want 1.2s", got)
	}
	if got := p.Delay(3); got != 4800*time.Millisecond {
		t.Errorf("delay 3 = %v, want 4.8s", got)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)
	p, slept := newTestPolicy(3, time.Second, 0)

	calls := 0
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence: %v", *slept)
	}
	if b.Snapshot().Failures != 0 {
		t.Fatal("successful operation must not charge the breaker")
	}
}

func TestDoExhaustionChargesBreakerOnce(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)
	p, _ := newTestPolicy(3, time.Second, 0)

	calls := 0
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d failed", calls)
	})
	if err == nil {
		t.Fatal("expected the last failure to surface")
	}
	if calls != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d", calls)
	}
	if got := b.Snapshot().Failures; got != 1 {
		t.Fatalf("breaker must be charged once per logical operation, got %d", got)
	}
}

func TestDoPermanentErrorSkipsRetries(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)
	p, slept := newTestPolicy(3, time.Second, 0)

	calls := 0
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		return permanentErr{msg: "schema mismatch"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", calls)
	}
	if len(*slept) != 0 {
		t.Fatalf("no backoff expected, slept %v", *slept)
	}
	if got := b.Snapshot().Failures; got != 1 {
		t.Fatalf("permanent failure still counts once, got %d", got)
	}
}

func TestDoOpenBreakerSkipsOperation(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(1, time.Minute)
	p, _ := newTestPolicy(3, time.Second, 0)

	b.RecordFailure("down")

	calls := 0
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatal("open breaker must not invoke the operation")
	}
}

func TestDoContextCancelDuringBackoff(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(5, time.Minute)
	p := NewPolicy(3, time.Second, 0)
	p.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	calls := 0
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", calls)
	}
	if b.Snapshot().Failures != 0 {
		t.Fatal("cancellation must not charge the breaker")
	}
}

func TestDoContextCancelReleasesHalfOpenTrial(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(1, time.Minute)
	p := NewPolicy(3, time.Second, 0)
	p.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	b.RecordFailure("down")
	clock.Advance(time.Minute)

	// Trial admitted, then the caller walks away during backoff.
	err := Do(context.Background(), b, p, func(ctx context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Much later, a healthy call must get through: the abandoned trial may
	// not wedge the breaker in half-open forever.
	clock.Advance(24 * time.Hour)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	calls := 0
	err = Do(context.Background(), b, p, func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("healthy call rejected after abandoned trial: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the healthy operation to run once, got %d", calls)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after the successful trial, got %s", b.State())
	}
}

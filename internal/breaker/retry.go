package breaker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is the exponential-backoff retry schedule: retry n is delayed by
// BaseDelay x 2^(n-1), inflated by a uniform random jitter in
// [0, JitterFraction x delay]. Sleeping is injected so the schedule is
// testable without real time.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	JitterFraction float64

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewPolicy builds a policy with the real clock. MaxAttempts counts retries
// after the first attempt; zero disables retrying.
func NewPolicy(maxAttempts int, baseDelay time.Duration, jitterFraction float64) *Policy {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if jitterFraction < 0 {
		jitterFraction = 0
	}
	return &Policy{
		MaxAttempts:    maxAttempts,
		BaseDelay:      baseDelay,
		JitterFraction: jitterFraction,
		sleep:          sleepCtx,
		rand:           rand.Float64,
	}
}

// Delay returns the jittered backoff before retry attempt n (1-based).
func (p *Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	nominal := p.BaseDelay << uint(n-1)
	jitter := time.Duration(p.JitterFraction * p.rand() * float64(nominal))
	return nominal + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// permanent is implemented by errors that retrying cannot fix (for example a
// provider schema mismatch); Do stops retrying on them immediately.
type permanent interface {
	Permanent() bool
}

func retryable(err error) bool {
	var p permanent
	if errors.As(err, &p) {
		return !p.Permanent()
	}
	return true
}

// Do runs op under the breaker with the retry policy. The breaker gate is
// checked once up front; a breaker failure is recorded once per logical
// operation after the final attempt, never per retry. A context cancellation
// during backoff surfaces the context error without charging the breaker;
// if the admission was a half-open trial, the trial is abandoned and the
// circuit re-opens so a later call can probe again.
func Do(ctx context.Context, br *Breaker, p *Policy, op func(context.Context) error) error {
	if err := br.Allow(); err != nil {
		return err
	}

	var last error
	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
				br.AbandonTrial(err.Error())
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			br.AbandonTrial(err.Error())
			return err
		}

		err := op(ctx)
		if err == nil {
			br.RecordSuccess()
			return nil
		}
		last = err
		if !retryable(err) {
			break
		}
	}

	br.RecordFailure(last.Error())
	return last
}

package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"mintwatch/internal/ml/inference"

	"go.opentelemetry.io/otel/trace"
)

func TestInferenceJobRunsAtLeastOnce(t *testing.T) {
	var calls int32
	scorer := &winProbScorerStub{calls: &calls}
	job := NewInferenceJob(trace.NewNoopTracerProvider().Tracer("test"), scorer, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	eventually(t, func() bool { return atomic.LoadInt32(&calls) > 0 })
	cancel()
	<-done
}

func TestNewInferenceJobDefaultInterval(t *testing.T) {
	t.Parallel()

	job := NewInferenceJob(trace.NewNoopTracerProvider().Tracer("test"), &winProbScorerStub{calls: new(int32)}, 0)
	if job.pollInterval != time.Hour {
		t.Fatalf("expected 1h default interval, got %v", job.pollInterval)
	}
}

type winProbScorerStub struct {
	calls *int32
}

func (s *winProbScorerStub) ScoreOpen(ctx context.Context, now time.Time) (inference.RunResult, error) {
	atomic.AddInt32(s.calls, 1)
	return inference.RunResult{Scored: 1, Resolved: 1}, nil
}

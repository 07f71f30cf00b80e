package job

import (
	"context"
	"log"
	"time"

	"mintwatch/internal/ml/inference"

	"go.opentelemetry.io/otel/trace"
)

type WinProbScorer interface {
	ScoreOpen(ctx context.Context, now time.Time) (inference.RunResult, error)
}

// InferenceJob periodically scores open positions with the active win
// probability models and resolves predictions whose signal has landed.
type InferenceJob struct {
	tracer       trace.Tracer
	service      WinProbScorer
	pollInterval time.Duration
}

func NewInferenceJob(tracer trace.Tracer, service WinProbScorer, pollInterval time.Duration) *InferenceJob {
	if pollInterval <= 0 {
		pollInterval = time.Hour
	}
	return &InferenceJob{tracer: tracer, service: service, pollInterval: pollInterval}
}

func (j *InferenceJob) Start(ctx context.Context) {
	if j.service == nil {
		log.Println("Win probability job disabled: no service")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *InferenceJob) runOnce(ctx context.Context) {
	_, span := j.tracer.Start(ctx, "winprob-job.run-once")
	defer span.End()

	result, err := j.service.ScoreOpen(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("win probability scoring error: %v", err)
		return
	}
	if result.Scored > 0 || result.Resolved > 0 {
		log.Printf("win probability cycle complete scored=%d skipped=%d resolved=%d",
			result.Scored, result.Skipped, result.Resolved)
	}
}

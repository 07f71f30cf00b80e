package job

import (
	"context"
	"testing"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/training"

	"go.opentelemetry.io/otel/trace"
)

func TestSchedulerRegistersAvailableEntries(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	full := NewScheduler(tracer, &stubSignalSource{}, &stubReputationStore{}, &stubTrainer{}, &stubPruner{}, &stubPruner{}, &stubPruner{}, SchedulerConfig{})
	if err := full.register(context.Background()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := len(full.cron.Entries()); got != 3 {
		t.Fatalf("expected 3 cron entries, got %d", got)
	}

	bare := NewScheduler(tracer, &stubSignalSource{}, &stubReputationStore{}, nil, nil, nil, nil, SchedulerConfig{})
	if err := bare.register(context.Background()); err != nil {
		t.Fatalf("register without optional deps: %v", err)
	}
	if got := len(bare.cron.Entries()); got != 1 {
		t.Fatalf("expected only the reputation entry, got %d", got)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	s := NewScheduler(tracer, &stubSignalSource{}, &stubReputationStore{}, nil, nil, nil, nil, SchedulerConfig{
		ReputationSpec: "not a cron spec",
	})
	if err := s.register(context.Background()); err == nil {
		t.Fatal("expected an error for a bad cron spec")
	}
}

func TestRunReputationUpsertsEverySource(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	signals := &stubSignalSource{
		signals: map[string][]domain.Signal{
			"tg:alpha": {
				{Source: "tg:alpha", Outcome: domain.OutcomeWinner, ROI: 3.0, HoursToATH: 2, CreatedAt: now},
				{Source: "tg:alpha", Outcome: domain.OutcomeLoser, ROI: 0.8, CreatedAt: now},
			},
			"rss:news.example": {
				{Source: "rss:news.example", Outcome: domain.OutcomeLoser, ROI: 0.5, CreatedAt: now},
			},
		},
	}
	store := &stubReputationStore{}
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	s := NewScheduler(tracer, signals, store, nil, nil, nil, nil, SchedulerConfig{})

	s.runReputation(context.Background())

	if len(store.records) != 2 {
		t.Fatalf("expected 2 reputation records, got %d", len(store.records))
	}
	bySource := map[string]domain.ReputationRecord{}
	for _, rec := range store.records {
		bySource[rec.Source] = rec
	}
	alpha, ok := bySource["tg:alpha"]
	if !ok || alpha.TotalSignals != 2 {
		t.Fatalf("unexpected tg:alpha record: %+v", alpha)
	}
	news := bySource["rss:news.example"]
	if alpha.Composite <= news.Composite {
		t.Fatalf("winner-heavy source should outrank loser-only source: %.2f vs %.2f", alpha.Composite, news.Composite)
	}
}

func TestRunRetentionUsesRetainWindow(t *testing.T) {
	t.Parallel()

	positions := &stubPruner{}
	signalRows := &stubPruner{}
	predictions := &stubPruner{}
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	s := NewScheduler(tracer, nil, nil, nil, positions, signalRows, predictions, SchedulerConfig{RetainDays: 30})

	s.runRetention(context.Background())

	want := time.Now().UTC().AddDate(0, 0, -30)
	for name, p := range map[string]*stubPruner{"positions": positions, "signals": signalRows, "predictions": predictions} {
		if p.calls != 1 {
			t.Fatalf("%s pruner called %d times, want 1", name, p.calls)
		}
		if diff := p.cutoff.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Fatalf("%s cutoff %v not near %v", name, p.cutoff, want)
		}
	}
}

func TestRunTrainingSurvivesTrainerError(t *testing.T) {
	t.Parallel()

	tracer := trace.NewNoopTracerProvider().Tracer("test")
	trainer := &stubTrainer{err: context.DeadlineExceeded}
	s := NewScheduler(tracer, nil, nil, trainer, nil, nil, nil, SchedulerConfig{})

	s.runTraining(context.Background())
	if trainer.calls != 1 {
		t.Fatalf("expected 1 training call, got %d", trainer.calls)
	}
}

type stubSignalSource struct {
	signals map[string][]domain.Signal
}

func (s *stubSignalSource) Sources() []string {
	out := make([]string, 0, len(s.signals))
	for source := range s.signals {
		out = append(out, source)
	}
	return out
}

func (s *stubSignalSource) Signals(source string, limit int) []domain.Signal {
	return s.signals[source]
}

type stubReputationStore struct {
	records []domain.ReputationRecord
	err     error
}

func (s *stubReputationStore) UpsertRecords(ctx context.Context, records []domain.ReputationRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

type stubTrainer struct {
	calls int
	err   error
}

func (s *stubTrainer) TrainAll(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []training.ModelTrainResult{{ModelKey: "winprob-logreg", Version: 1, AUC: 0.9, Promoted: true}}, nil
}

type stubPruner struct {
	calls  int
	cutoff time.Time
}

func (s *stubPruner) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	return 2, nil
}

func (s *stubPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	return 2, nil
}

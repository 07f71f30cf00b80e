package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/training"
	"mintwatch/internal/outcome"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
)

type SignalSource interface {
	Sources() []string
	Signals(source string, limit int) []domain.Signal
}

type ReputationStore interface {
	UpsertRecords(ctx context.Context, records []domain.ReputationRecord) error
}

type ModelTrainer interface {
	TrainAll(ctx context.Context, now time.Time) ([]training.ModelTrainResult, error)
}

type PositionPruner interface {
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SignalPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PredictionPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SchedulerConfig struct {
	ReputationSpec string // default "@every 1h"
	RetentionSpec  string // default "30 2 * * *"
	TrainHourUTC   int    // default 2
	RetainDays     int    // default 180
	Weights        outcome.Weights
}

// Scheduler owns the calendar-driven maintenance work: hourly reputation
// recompute, daily model training and daily retention pruning. Entries whose
// dependencies are missing are skipped at registration, so a cache-only
// deployment runs with an empty schedule.
type Scheduler struct {
	tracer      trace.Tracer
	cron        *cron.Cron
	signals     SignalSource
	reputation  ReputationStore
	trainer     ModelTrainer
	positions   PositionPruner
	signalRows  SignalPruner
	predictions PredictionPruner
	cfg         SchedulerConfig
}

func NewScheduler(
	tracer trace.Tracer,
	signals SignalSource,
	reputation ReputationStore,
	trainer ModelTrainer,
	positions PositionPruner,
	signalRows SignalPruner,
	predictions PredictionPruner,
	cfg SchedulerConfig,
) *Scheduler {
	if cfg.ReputationSpec == "" {
		cfg.ReputationSpec = "@every 1h"
	}
	if cfg.RetentionSpec == "" {
		cfg.RetentionSpec = "30 2 * * *"
	}
	if cfg.TrainHourUTC < 0 || cfg.TrainHourUTC > 23 {
		cfg.TrainHourUTC = 2
	}
	if cfg.RetainDays <= 0 {
		cfg.RetainDays = 180
	}
	if cfg.Weights.WinRate+cfg.Weights.MeanROI+cfg.Weights.Sharpe+cfg.Weights.Speed <= 0 {
		cfg.Weights = outcome.DefaultWeights
	}
	return &Scheduler{
		tracer:      tracer,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		signals:     signals,
		reputation:  reputation,
		trainer:     trainer,
		positions:   positions,
		signalRows:  signalRows,
		predictions: predictions,
		cfg:         cfg,
	}
}

// Start registers the entries and runs the scheduler. Blocks until ctx is
// cancelled, then waits for any running entry to finish.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.register(ctx); err != nil {
		log.Printf("cron scheduler not started: %v", err)
		<-ctx.Done()
		return
	}
	s.cron.Start()
	log.Println("Cron scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Println("Cron scheduler stopped")
}

func (s *Scheduler) register(ctx context.Context) error {
	if s.signals != nil && s.reputation != nil {
		if _, err := s.cron.AddFunc(s.cfg.ReputationSpec, func() { s.runReputation(ctx) }); err != nil {
			return fmt.Errorf("register reputation recompute: %w", err)
		}
	} else {
		log.Println("reputation recompute disabled: no signal source or store")
	}

	if s.trainer != nil {
		spec := fmt.Sprintf("0 %d * * *", s.cfg.TrainHourUTC)
		if _, err := s.cron.AddFunc(spec, func() { s.runTraining(ctx) }); err != nil {
			return fmt.Errorf("register model training: %w", err)
		}
	}

	if s.positions != nil || s.signalRows != nil || s.predictions != nil {
		if _, err := s.cron.AddFunc(s.cfg.RetentionSpec, func() { s.runRetention(ctx) }); err != nil {
			return fmt.Errorf("register retention: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) runReputation(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "scheduler.reputation-recompute")
	defer span.End()

	now := time.Now().UTC()
	sources := s.signals.Sources()
	if len(sources) == 0 {
		return
	}
	records := make([]domain.ReputationRecord, 0, len(sources))
	for _, source := range sources {
		sigs := s.signals.Signals(source, 0)
		records = append(records, outcome.ComputeReputation(source, sigs, s.cfg.Weights, now))
	}
	if err := s.reputation.UpsertRecords(ctx, records); err != nil {
		log.Printf("reputation recompute store error: %v", err)
		return
	}
	log.Printf("reputation recompute complete for %d sources", len(records))
}

func (s *Scheduler) runTraining(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "scheduler.model-training")
	defer span.End()

	results, err := s.trainer.TrainAll(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("model training error: %v", err)
		return
	}
	for _, r := range results {
		log.Printf("model training result model=%s version=%d auc=%.4f promoted=%v",
			r.ModelKey, r.Version, r.AUC, r.Promoted)
	}
}

// runRetention prunes resolved rows older than the retain window. Signals
// age out together with their positions; from then on reputation covers the
// retained window.
func (s *Scheduler) runRetention(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "scheduler.retention")
	defer span.End()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.RetainDays)
	if s.positions != nil {
		if n, err := s.positions.DeleteResolvedBefore(ctx, cutoff); err != nil {
			log.Printf("retention positions error: %v", err)
		} else if n > 0 {
			log.Printf("retention pruned %d resolved positions", n)
		}
	}
	if s.signalRows != nil {
		if n, err := s.signalRows.DeleteOlderThan(ctx, cutoff); err != nil {
			log.Printf("retention signals error: %v", err)
		} else if n > 0 {
			log.Printf("retention pruned %d signals", n)
		}
	}
	if s.predictions != nil {
		if n, err := s.predictions.DeleteOlderThan(ctx, cutoff); err != nil {
			log.Printf("retention predictions error: %v", err)
		} else if n > 0 {
			log.Printf("retention pruned %d resolved predictions", n)
		}
	}
}

// Package inference scores open positions with the active win probability
// models and grades past predictions once their signals land. Scores are
// advisory: nothing here feeds back into tracking, resolution, or
// reputation.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"
	"mintwatch/internal/ml/ensemble"
	"mintwatch/internal/ml/features"
	"mintwatch/internal/ml/models/logreg"
	"mintwatch/internal/ml/models/xgboost"
	"mintwatch/internal/outcome"

	"go.opentelemetry.io/otel/trace"
)

// PositionFeed supplies the open positions to score. The tracker implements
// it.
type PositionFeed interface {
	Positions(status domain.PositionStatus, limit int) []domain.TrackedPosition
}

// SignalFeed supplies per-source signal history for the reputation prior.
type SignalFeed interface {
	Signals(source string, limit int) []domain.Signal
}

type CandleSource interface {
	Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error)
}

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, modelKey string) (*domain.MLModelVersion, error)
}

type PredictionStore interface {
	UpsertPrediction(ctx context.Context, p domain.WinPrediction) (*domain.WinPrediction, error)
	ResolveOutcomes(ctx context.Context) (int64, error)
}

type Config struct {
	// MinPositionAge keeps brand-new positions out of scoring until at
	// least one full candle exists.
	MinPositionAge time.Duration
	PriorWeights   outcome.Weights
}

type Service struct {
	tracer      trace.Tracer
	engine      *features.Engine
	positions   PositionFeed
	signals     SignalFeed
	candles     CandleSource
	registry    ModelRegistry
	predictions PredictionStore
	blender     *ensemble.Blender
	cfg         Config
}

type RunResult struct {
	Scored   int
	Skipped  int
	Resolved int64
}

func NewService(
	tracer trace.Tracer,
	engine *features.Engine,
	positions PositionFeed,
	signals SignalFeed,
	candles CandleSource,
	registry ModelRegistry,
	predictions PredictionStore,
	cfg Config,
) *Service {
	if engine == nil {
		engine = features.NewEngine(0)
	}
	if cfg.MinPositionAge <= 0 {
		cfg.MinPositionAge = time.Hour
	}
	if cfg.PriorWeights.WinRate+cfg.PriorWeights.MeanROI+cfg.PriorWeights.Sharpe+cfg.PriorWeights.Speed == 0 {
		cfg.PriorWeights = outcome.DefaultWeights
	}
	return &Service{
		tracer:      tracer,
		engine:      engine,
		positions:   positions,
		signals:     signals,
		candles:     candles,
		registry:    registry,
		predictions: predictions,
		blender:     ensemble.NewBlender(),
		cfg:         cfg,
	}
}

// ScoreOpen runs one inference pass: score every open position old enough to
// have candles, persist per-model and ensemble predictions, then grade any
// predictions whose signals have since landed. With no active models it
// still grades.
func (s *Service) ScoreOpen(ctx context.Context, now time.Time) (RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "ml-inference.score-open")
	defer span.End()

	if s.positions == nil || s.registry == nil || s.predictions == nil || s.candles == nil {
		return RunResult{}, fmt.Errorf("ml inference service is not fully initialized")
	}

	logVersion, logPredict, err := s.loadLogReg(ctx)
	if err != nil {
		return RunResult{}, err
	}
	xgbVersion, xgbPredict, err := s.loadXGBoost(ctx)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{}
	if logPredict != nil || xgbPredict != nil {
		window := time.Duration(s.engine.WindowHours()) * time.Hour
		priors := make(map[string]float64)

		for _, pos := range s.positions.Positions(domain.PositionOpen, 0) {
			if now.Sub(pos.FirstSeen) < s.cfg.MinPositionAge {
				result.Skipped++
				continue
			}
			candles, err := s.candles.Candles(ctx, pos.Chain, pos.Address, pos.FirstSeen, pos.FirstSeen.Add(window))
			if err != nil {
				result.Skipped++
				continue
			}
			vec, ok := s.engine.Vector(pos.StartPrice, pos.FirstSeen, candles)
			if !ok {
				result.Skipped++
				continue
			}

			comp := ensemble.Components{SourcePrior: s.sourcePrior(priors, pos.Source, now)}
			if logPredict != nil {
				comp.LogRegProb = common.Clamp01(logPredict(vec))
				comp.HasLogReg = true
				if err := s.persist(ctx, pos, common.ModelKeyLogReg, logVersion, comp.LogRegProb, vec, now, nil); err != nil {
					return result, err
				}
				result.Scored++
			}
			if xgbPredict != nil {
				comp.XGBoostProb = common.Clamp01(xgbPredict(vec))
				comp.HasXGBoost = true
				if err := s.persist(ctx, pos, common.ModelKeyXGBoost, xgbVersion, comp.XGBoostProb, vec, now, nil); err != nil {
					return result, err
				}
				result.Scored++
			}

			blended := s.blender.WinProb(comp)
			version := max(logVersion, xgbVersion)
			if version <= 0 {
				version = 1
			}
			extra := map[string]any{
				"source_prior": roundFloat(comp.SourcePrior),
				"label":        ensemble.Label(blended),
			}
			if err := s.persist(ctx, pos, common.ModelKeyEnsemble, version, blended, vec, now, extra); err != nil {
				return result, err
			}
			result.Scored++
		}
	}

	resolved, err := s.predictions.ResolveOutcomes(ctx)
	if err != nil {
		return result, err
	}
	result.Resolved = resolved
	return result, nil
}

func (s *Service) persist(
	ctx context.Context,
	pos domain.TrackedPosition,
	modelKey string,
	version int,
	prob float64,
	vec []float64,
	now time.Time,
	extra map[string]any,
) error {
	featureMap := features.Map(vec)
	for name, v := range featureMap {
		featureMap[name] = roundFloat(v)
	}
	payload := map[string]any{
		"model_key":     modelKey,
		"model_version": version,
		"win_prob":      roundFloat(prob),
		"confidence":    roundFloat(common.Confidence(prob)),
		"features":      featureMap,
	}
	for k, v := range extra {
		payload[k] = v
	}
	details, err := json.Marshal(payload)
	if err != nil {
		details = []byte("{}")
	}

	_, err = s.predictions.UpsertPrediction(ctx, domain.WinPrediction{
		Chain:        pos.Chain,
		Address:      pos.Address,
		ModelKey:     modelKey,
		ModelVersion: version,
		WinProb:      prob,
		Confidence:   common.Confidence(prob),
		DetailsJSON:  string(details),
		ScoredAt:     now.UTC(),
	})
	return err
}

// sourcePrior maps a source's reputation composite onto [0, 1], memoized per
// run. Unknown sources start at a coin flip.
func (s *Service) sourcePrior(cache map[string]float64, source string, now time.Time) float64 {
	if v, ok := cache[source]; ok {
		return v
	}
	prior := 0.5
	if s.signals != nil {
		if sigs := s.signals.Signals(source, 0); len(sigs) > 0 {
			rec := outcome.ComputeReputation(source, sigs, s.cfg.PriorWeights, now)
			prior = common.Clamp01(rec.Composite / 100)
		}
	}
	cache[source] = prior
	return prior
}

func (s *Service) loadLogReg(ctx context.Context) (int, func([]float64) float64, error) {
	active, err := s.registry.GetActiveModel(ctx, common.ModelKeyLogReg)
	if err != nil || active == nil {
		return 0, nil, err
	}
	if active.FeatureSpecVersion != common.FeatureSpecVersion {
		return 0, nil, nil
	}
	model, err := logreg.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return 0, nil, err
	}
	return active.Version, model.PredictProb, nil
}

func (s *Service) loadXGBoost(ctx context.Context) (int, func([]float64) float64, error) {
	active, err := s.registry.GetActiveModel(ctx, common.ModelKeyXGBoost)
	if err != nil || active == nil {
		return 0, nil, err
	}
	if active.FeatureSpecVersion != common.FeatureSpecVersion {
		return 0, nil, nil
	}
	model, err := xgboost.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return 0, nil, err
	}
	return active.Version, model.PredictProb, nil
}

func roundFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10000) / 10000
}

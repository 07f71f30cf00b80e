// Package training fits win probability models on resolved signals. Each
// signal contributes one sample: the early-window feature vector of its
// position and a binary label from its outcome. New versions are persisted
// inactive and promoted only when they beat the active model.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"
	"mintwatch/internal/ml/features"
	"mintwatch/internal/ml/models/logreg"
	"mintwatch/internal/ml/models/xgboost"

	"go.opentelemetry.io/otel/trace"
)

// SignalFeed supplies resolved signals. The tracker's in-memory view
// implements it.
type SignalFeed interface {
	Signals(source string, limit int) []domain.Signal
}

// CandleSource supplies the early-window candles behind each signal. The
// history coordinator implements it; resolved windows come from its
// immutable cache.
type CandleSource interface {
	Candles(ctx context.Context, chain domain.Chain, address string, from, to time.Time) ([]domain.Candle, error)
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.MLModelVersion) (*domain.MLModelVersion, error)
	GetActiveModel(ctx context.Context, modelKey string) (*domain.MLModelVersion, error)
	ActivateModel(ctx context.Context, modelKey string, version int) error
}

type Config struct {
	TrainWindowDays int
	MinTrainSamples int
	MinPromoteTest  int
}

type Service struct {
	tracer   trace.Tracer
	engine   *features.Engine
	signals  SignalFeed
	candles  CandleSource
	registry ModelRegistry
	cfg      Config
}

type ModelTrainResult struct {
	ModelKey     string
	Version      int
	SampleCount  int
	TestCount    int
	AUC          float64
	Promoted     bool
	PromoteError error
}

func NewService(tracer trace.Tracer, engine *features.Engine, signals SignalFeed, candles CandleSource, registry ModelRegistry, cfg Config) *Service {
	if engine == nil {
		engine = features.NewEngine(0)
	}
	if cfg.TrainWindowDays <= 0 {
		cfg.TrainWindowDays = 90
	}
	if cfg.MinTrainSamples <= 0 {
		cfg.MinTrainSamples = 200
	}
	if cfg.MinPromoteTest <= 0 {
		cfg.MinPromoteTest = 50
	}
	return &Service{tracer: tracer, engine: engine, signals: signals, candles: candles, registry: registry, cfg: cfg}
}

// TrainAll fits both model families on the signals resolved inside the
// training window and persists a new version of each. Versions start
// inactive; shouldPromote decides activation per key.
func (s *Service) TrainAll(ctx context.Context, now time.Time) ([]ModelTrainResult, error) {
	ctx, span := s.tracer.Start(ctx, "ml-training.train-all")
	defer span.End()

	from := now.UTC().AddDate(0, 0, -s.cfg.TrainWindowDays)
	samples, labels := s.buildDataset(ctx, from, now.UTC())
	if len(samples) < s.cfg.MinTrainSamples {
		return nil, fmt.Errorf("not enough resolved signals: got %d need >= %d", len(samples), s.cfg.MinTrainSamples)
	}

	trainX, trainY, testX, testY := chronologicalSplit(samples, labels)
	if len(trainX) == 0 || len(testX) == 0 {
		return nil, errors.New("dataset split produced empty partitions")
	}

	results := make([]ModelTrainResult, 0, 2)

	lrOpts := logreg.DefaultTrainOptions()
	lrModel, err := logreg.Train(trainX, trainY, common.FeatureNames, lrOpts)
	if err != nil {
		return nil, fmt.Errorf("train logreg: %w", err)
	}
	lrBlob, err := lrModel.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal logreg model: %w", err)
	}
	lrMetrics := computeMetrics(testY, lrModel.PredictBatch(testX))
	lrResult, err := s.persistAndMaybePromote(ctx, common.ModelKeyLogReg, now.UTC(), from, lrBlob, common.ArtifactFormatLogReg, map[string]any{
		"learning_rate": lrOpts.LearningRate,
		"epochs":        lrOpts.Epochs,
		"l2":            lrOpts.L2,
	}, lrMetrics, len(samples), len(testY))
	if err != nil {
		return nil, err
	}
	results = append(results, lrResult)

	xgbOpts := xgboost.DefaultTrainOptions()
	xgbModel, err := xgboost.Train(trainX, trainY, common.FeatureNames, xgbOpts)
	if err != nil {
		return nil, fmt.Errorf("train xgboost: %w", err)
	}
	xgbBlob, err := xgbModel.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal xgboost model: %w", err)
	}
	xgbMetrics := computeMetrics(testY, xgbModel.PredictBatch(testX))
	xgbResult, err := s.persistAndMaybePromote(ctx, common.ModelKeyXGBoost, now.UTC(), from, xgbBlob, common.ArtifactFormatXGBoost, map[string]any{
		"rounds":        xgbOpts.Rounds,
		"learning_rate": xgbOpts.LearningRate,
		"max_depth":     xgbOpts.MaxDepth,
	}, xgbMetrics, len(samples), len(testY))
	if err != nil {
		return nil, err
	}
	results = append(results, xgbResult)

	return results, nil
}

// buildDataset vectorizes every resolved signal in [from, to], oldest first
// so the split stays chronological. Signals whose early window cannot be
// vectorized are skipped rather than imputed.
func (s *Service) buildDataset(ctx context.Context, from, to time.Time) ([][]float64, []float64) {
	sigs := s.signals.Signals("", 0)
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].FirstSeen.Before(sigs[j].FirstSeen) })

	window := time.Duration(s.engine.WindowHours()) * time.Hour
	x := make([][]float64, 0, len(sigs))
	y := make([]float64, 0, len(sigs))
	for i := range sigs {
		sig := sigs[i]
		if sig.CreatedAt.Before(from) || sig.CreatedAt.After(to) {
			continue
		}
		candles, err := s.candles.Candles(ctx, sig.Chain, sig.Address, sig.FirstSeen, sig.FirstSeen.Add(window))
		if err != nil {
			continue
		}
		vec, ok := s.engine.Vector(sig.StartPrice, sig.FirstSeen, candles)
		if !ok {
			continue
		}
		x = append(x, vec)
		y = append(y, common.TargetLabel(sig.Outcome))
	}
	return x, y
}

func (s *Service) persistAndMaybePromote(
	ctx context.Context,
	modelKey string,
	now time.Time,
	trainedFrom time.Time,
	artifact []byte,
	artifactFormat string,
	hyperparams map[string]any,
	metrics map[string]float64,
	sampleCount int,
	testCount int,
) (ModelTrainResult, error) {
	version, err := s.registry.NextVersion(ctx, modelKey)
	if err != nil {
		return ModelTrainResult{}, err
	}
	hyperJSON, _ := json.Marshal(hyperparams)
	metricJSON, _ := json.Marshal(metrics)

	inserted, err := s.registry.InsertModelVersion(ctx, domain.MLModelVersion{
		ModelKey:           modelKey,
		Version:            version,
		FeatureSpecVersion: common.FeatureSpecVersion,
		TrainedFrom:        trainedFrom,
		TrainedTo:          now,
		HyperparamsJSON:    string(hyperJSON),
		MetricsJSON:        string(metricJSON),
		ArtifactFormat:     artifactFormat,
		ArtifactBlob:       artifact,
		IsActive:           false,
	})
	if err != nil {
		return ModelTrainResult{}, err
	}

	result := ModelTrainResult{
		ModelKey:    modelKey,
		Version:     inserted.Version,
		SampleCount: sampleCount,
		TestCount:   testCount,
		AUC:         metrics["auc"],
	}

	promote, promoteErr := s.shouldPromote(ctx, modelKey, metrics["auc"], testCount, inserted.Version)
	if promoteErr != nil {
		result.PromoteError = promoteErr
		return result, nil
	}
	if promote {
		if err := s.registry.ActivateModel(ctx, modelKey, inserted.Version); err != nil {
			result.PromoteError = err
			return result, nil
		}
		result.Promoted = true
	}
	return result, nil
}

// shouldPromote keeps the active model unless the challenger clearly beats
// it on a test set big enough to mean something.
func (s *Service) shouldPromote(ctx context.Context, modelKey string, newAUC float64, testCount int, newVersion int) (bool, error) {
	active, err := s.registry.GetActiveModel(ctx, modelKey)
	if err != nil {
		return false, err
	}
	if active == nil {
		return true, nil
	}
	if active.Version == newVersion {
		return active.IsActive, nil
	}
	if testCount < s.cfg.MinPromoteTest {
		return false, nil
	}
	activeAUC, ok := metricValue(active.MetricsJSON, "auc")
	if !ok {
		return true, nil
	}
	return newAUC >= activeAUC+0.01, nil
}

// chronologicalSplit cuts the dataset 80/20 by time. Shuffling would leak
// future price action into training.
func chronologicalSplit(samples [][]float64, labels []float64) ([][]float64, []float64, [][]float64, []float64) {
	n := len(samples)
	if n < 2 {
		return nil, nil, nil, nil
	}
	cut := int(float64(n) * 0.80)
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return samples[:cut], labels[:cut], samples[cut:], labels[cut:]
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return 0, false
	}
	v, ok := m[key]
	return v, ok
}

func computeMetrics(labels []float64, probs []float64) map[string]float64 {
	n := len(labels)
	if n == 0 || len(probs) != n {
		return map[string]float64{"auc": 0.5, "accuracy": 0, "precision": 0, "recall": 0, "f1": 0, "brier": 0, "n_test": 0}
	}
	tp, fp, tn, fn := 0.0, 0.0, 0.0, 0.0
	brier := 0.0
	for i := 0; i < n; i++ {
		y := labels[i]
		p := common.Clamp01(probs[i])
		pred := 0.0
		if p >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && y == 1:
			tp++
		case pred == 1 && y == 0:
			fp++
		case pred == 0 && y == 0:
			tn++
		case pred == 0 && y == 1:
			fn++
		}
		d := p - y
		brier += d * d
	}

	accuracy := (tp + tn) / float64(n)
	precision := 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	recall := 0.0
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return map[string]float64{
		"auc":       computeAUC(labels, probs),
		"accuracy":  accuracy,
		"precision": precision,
		"recall":    recall,
		"f1":        f1,
		"brier":     brier / float64(n),
		"n_test":    float64(n),
	}
}

// computeAUC is the rank-based Mann-Whitney estimator with tie handling.
// Degenerate single-class test sets score 0.5.
func computeAUC(labels []float64, probs []float64) float64 {
	type pair struct {
		p float64
		y float64
	}
	pairs := make([]pair, len(labels))
	pos, neg := 0.0, 0.0
	for i := range labels {
		pairs[i] = pair{p: common.Clamp01(probs[i]), y: labels[i]}
		if labels[i] >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].p < pairs[j].p })

	sumRankPos := 0.0
	rank := 1.0
	for i := 0; i < len(pairs); {
		j := i + 1
		for j < len(pairs) && math.Abs(pairs[j].p-pairs[i].p) < 1e-12 {
			j++
		}
		avgRank := (rank + float64(j)) / 2
		for k := i; k < j; k++ {
			if pairs[k].y >= 0.5 {
				sumRankPos += avgRank
			}
		}
		rank = float64(j + 1)
		i = j
	}
	auc := (sumRankPos - (pos*(pos+1))/2) / (pos * neg)
	if math.IsNaN(auc) || math.IsInf(auc, 0) {
		return 0.5
	}
	return auc
}

// Package logreg is a small dependency-free logistic regression used as the
// baseline win probability model. Inputs are z-score normalized with moments
// captured at training time, so artifacts are self-contained.
package logreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{LearningRate: 0.05, Epochs: 600, L2: 0.0001}
}

// Artifact is the persisted form of a trained model. The normalization
// moments travel with the weights; a model scored without them would be
// meaningless.
type Artifact struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	L2           float64   `json:"l2"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
}

type Model struct {
	artifact Artifact
}

// Train fits weights with full-batch gradient descent and L2 regularization.
// Labels must be 0 or 1.
func Train(samples [][]float64, labels []float64, featureNames []string, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 || len(samples) != len(labels) {
		return nil, errors.New("invalid training dataset")
	}
	dims := len(samples[0])
	if dims == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions().Epochs
	}
	if opts.L2 < 0 {
		opts.L2 = DefaultTrainOptions().L2
	}

	means, stds := columnMoments(samples, dims)
	weights := make([]float64, dims)
	bias := 0.0
	n := float64(len(samples))

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		grads := make([]float64, dims)
		gradBias := 0.0
		for i := range samples {
			z := bias
			for j := 0; j < dims; j++ {
				z += weights[j] * (samples[i][j] - means[j]) / stds[j]
			}
			residual := sigmoid(z) - labels[i]
			for j := 0; j < dims; j++ {
				grads[j] += residual * (samples[i][j] - means[j]) / stds[j]
			}
			gradBias += residual
		}
		for j := 0; j < dims; j++ {
			weights[j] -= opts.LearningRate * (grads[j]/n + opts.L2*weights[j])
		}
		bias -= opts.LearningRate * (gradBias / n)
	}

	if len(featureNames) != dims {
		featureNames = placeholderNames(dims)
	}
	return &Model{artifact: Artifact{
		FeatureNames: featureNames,
		Weights:      weights,
		Bias:         bias,
		Means:        means,
		Stds:         stds,
		L2:           opts.L2,
		LearningRate: opts.LearningRate,
		Epochs:       opts.Epochs,
	}}, nil
}

// PredictProb returns the probability of the positive class. A sample with
// the wrong dimensionality scores as a coin flip rather than panicking.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.artifact.Weights) {
		return 0.5
	}
	z := m.artifact.Bias
	for j := range sample {
		z += m.artifact.Weights[j] * (sample[j] - m.artifact.Means[j]) / m.artifact.Stds[j]
	}
	return sigmoid(z)
}

func (m *Model) PredictBatch(samples [][]float64) []float64 {
	probs := make([]float64, len(samples))
	for i := range samples {
		probs[i] = m.PredictProb(samples[i])
	}
	return probs
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if len(a.Weights) == 0 || len(a.Weights) != len(a.Means) || len(a.Weights) != len(a.Stds) {
		return nil, errors.New("artifact weights and moments disagree")
	}
	for _, s := range a.Stds {
		if s == 0 {
			return nil, errors.New("artifact has a zero std")
		}
	}
	return &Model{artifact: a}, nil
}

// columnMoments computes per-feature mean and std over the training set.
// Constant columns get std 1 so normalization never divides by zero.
func columnMoments(samples [][]float64, dims int) ([]float64, []float64) {
	means := make([]float64, dims)
	stds := make([]float64, dims)
	n := float64(len(samples))
	for j := 0; j < dims; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= n
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

func placeholderNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("f%d", i)
	}
	return out
}

func sigmoid(z float64) float64 {
	if z > 35 {
		return 1
	}
	if z < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}

package scoring

import (
	"context"
	"math"
	"sort"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Default logistic model coefficients. These mirror the production model's
// sign conventions: higher leverage and delinquency push risk up, a stronger
// credit score pulls it down.
const (
	defaultBias = -3.0
)

// defaultWeights returns the coefficient set for the builtin model.
func defaultWeights() map[string]float64 {
	return map[string]float64{
		"ltv":               2.0,
		"delinquency_count": 0.6,
		"credit_score_norm": -2.5,
		"unemployment_rate": 0.08,
	}
}

// LogisticOption applies a configuration option to the LogisticModel.
type LogisticOption func(*LogisticModel)

// WithWeights sets the feature coefficients.
func WithWeights(weights map[string]float64) LogisticOption {
	return func(m *LogisticModel) {
		if len(weights) > 0 {
			m.weights = make(map[string]float64, len(weights))
			for k, v := range weights {
				m.weights[k] = v
			}
		}
	}
}

// WithBias sets the intercept term.
func WithBias(bias float64) LogisticOption {
	return func(m *LogisticModel) {
		m.bias = bias
	}
}

// LogisticModel implements Model with a deterministic logistic regression.
// Identical feature vectors always produce identical predictions; there is no
// randomness anywhere in the evaluation.
type LogisticModel struct {
	weights map[string]float64
	bias    float64
}

// NewLogisticModel creates a logistic model with the builtin coefficients.
func NewLogisticModel(opts ...LogisticOption) *LogisticModel {
	m := &LogisticModel{
		weights: defaultWeights(),
		bias:    defaultBias,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Predict computes the logistic of the weighted feature sum. Features without
// a coefficient contribute nothing. Iteration over the vector is done in
// sorted key order so floating point accumulation is reproducible.
func (m *LogisticModel) Predict(ctx context.Context, fv model.FeatureVector) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	names := make([]string, 0, len(fv.Features))
	for name := range fv.Features {
		names = append(names, name)
	}
	sort.Strings(names)

	z := m.bias
	for _, name := range names {
		if w, ok := m.weights[name]; ok {
			z += w * fv.Features[name]
		}
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Package scoring evaluates a pluggable risk model over feature vectors and
// assigns risk segments from a configured threshold ladder.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Default threshold ladder. Exact boundary values fall into the upper bucket.
const (
	DefaultLowThreshold  = 0.05
	DefaultHighThreshold = 0.20
)

// Model is the opaque scoring capability. Any implementation works: a local
// model, a remote serving call, or a stub for testing.
type Model interface {
	// Predict returns a probability in [0,1] for the feature vector.
	Predict(ctx context.Context, fv model.FeatureVector) (float64, error)
}

// Clock abstracts wall-clock time for testability.
type Clock func() time.Time

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThresholds sets the segment ladder. Ignored unless 0 < low < high.
func WithThresholds(t model.Thresholds) Option {
	return func(s *Scorer) {
		if t.Low > 0 && t.High > t.Low {
			s.thresholds = t
		}
	}
}

// WithClock sets the clock used to stamp results.
func WithClock(clock Clock) Option {
	return func(s *Scorer) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Scorer turns feature vectors into score results. The model is injected and
// treated as a black box; the thresholds in effect are exposed so the
// orchestrator can record them into lineage alongside the model version.
type Scorer struct {
	model      Model
	thresholds model.Thresholds
	clock      Clock
}

// New creates a Scorer around a model capability.
func New(m Model, opts ...Option) *Scorer {
	s := &Scorer{
		model:      m,
		thresholds: model.Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold},
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Thresholds returns the ladder in effect.
func (s *Scorer) Thresholds() model.Thresholds {
	return s.thresholds
}

// Score evaluates the model for one feature vector. A model failure or an
// out-of-range prediction surfaces as ErrModelUnavailable; retry policy is the
// caller's concern, never applied silently here.
func (s *Scorer) Score(ctx context.Context, fv model.FeatureVector, modelVersion string) (model.ScoreResult, error) {
	p, err := s.model.Predict(ctx, fv)
	if err != nil {
		return model.ScoreResult{}, fmt.Errorf("predict for record %s: %v: %w", fv.RecordID, err, ErrModelUnavailable)
	}
	if p < 0 || p > 1 {
		return model.ScoreResult{}, fmt.Errorf("prediction %v outside [0,1] for record %s: %w", p, fv.RecordID, ErrModelUnavailable)
	}

	return model.ScoreResult{
		RecordID:     fv.RecordID,
		FeatureSet:   fv.FeatureSet,
		ModelVersion: modelVersion,
		Score:        p,
		Segment:      s.thresholds.Segment(p),
		ComputedAt:   s.clock(),
	}, nil
}

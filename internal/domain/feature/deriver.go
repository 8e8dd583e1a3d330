// Package feature computes derived risk features from validated records plus
// joined reference data. Every feature set version pins its formulas and join
// bindings; changing a formula means minting a new version, never editing an
// existing one, so historical vectors stay reproducible.
package feature

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cadencefin/riskpipe/internal/adapters/refdata"
	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Feature set versions shipped with the service.
const (
	SetV1 = "fs-1" // 24 month delinquency window
	SetV2 = "fs-2" // 36 month window, adds balance_to_income
)

const creditScoreCeiling = 850

// refBinding joins one reference metric into the feature vector under a
// feature name. Non-optional bindings exclude the record when the join has no
// value at or before the as-of time; they are never zero-filled.
type refBinding struct {
	metric   string
	feature  string
	optional bool
}

// Set is one immutable feature set version.
type Set struct {
	Version  string
	Window   time.Duration // trailing window for event aggregates
	bindings []refBinding
	base     func(rec model.TypedRecord, asOf time.Time, window time.Duration) (map[string]float64, error)
}

// builtinSets returns the feature set versions known to this build.
func builtinSets() map[string]Set {
	return map[string]Set{
		SetV1: {
			Version: SetV1,
			Window:  24 * 30 * 24 * time.Hour,
			bindings: []refBinding{
				{metric: "unemployment_rate", feature: "unemployment_rate"},
				{metric: "house_price_index", feature: "house_price_index", optional: true},
			},
			base: baseFeaturesV1,
		},
		SetV2: {
			Version: SetV2,
			Window:  36 * 30 * 24 * time.Hour,
			bindings: []refBinding{
				{metric: "unemployment_rate", feature: "unemployment_rate"},
				{metric: "house_price_index", feature: "house_price_index", optional: true},
			},
			base: baseFeaturesV2,
		},
	}
}

// Option applies a configuration option to the Deriver.
type Option func(*Deriver)

// WithConcurrency bounds the number of records derived in parallel.
func WithConcurrency(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithSet registers an additional feature set version.
func WithSet(s Set) Option {
	return func(d *Deriver) {
		if s.Version != "" && s.base != nil {
			d.sets[s.Version] = s
		}
	}
}

// Deriver computes feature vectors for validated records.
type Deriver struct {
	concurrency int
	sets        map[string]Set
}

// New creates a Deriver knowing the builtin feature set versions.
func New(opts ...Option) *Deriver {
	d := &Deriver{
		concurrency: runtime.NumCPU(),
		sets:        builtinSets(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Derive computes one FeatureVector per record under the given feature set
// version, joining against the snapshot with as-of semantics. Records whose
// non-optional reference join has no value at or before asOf, or whose
// formulas cannot be evaluated, are excluded and reported rather than
// zero-filled. The snapshot is read-only for the duration of the call.
func (d *Deriver) Derive(
	ctx context.Context,
	records []model.TypedRecord,
	asOf time.Time,
	snap refdata.Snapshot,
	version string,
) ([]model.FeatureVector, []model.Exclusion, error) {
	set, ok := d.sets[version]
	if !ok {
		return nil, nil, fmt.Errorf("feature set %q: %w", version, ErrUnknownFeatureSet)
	}

	type outcome struct {
		vector   model.FeatureVector
		excluded *model.Exclusion
	}
	outcomes := make([]outcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, excl := d.deriveOne(gctx, records[i], asOf, snap, set)
			outcomes[i] = outcome{vector: vec, excluded: excl}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("derive batch: %w", err)
	}

	var vectors []model.FeatureVector
	var exclusions []model.Exclusion
	for _, out := range outcomes {
		if out.excluded != nil {
			exclusions = append(exclusions, *out.excluded)
			continue
		}
		vectors = append(vectors, out.vector)
	}
	return vectors, exclusions, nil
}

// deriveOne evaluates the set's formulas for a single record.
func (d *Deriver) deriveOne(
	ctx context.Context,
	rec model.TypedRecord,
	asOf time.Time,
	snap refdata.Snapshot,
	set Set,
) (model.FeatureVector, *model.Exclusion) {
	features, err := set.base(rec, asOf, set.Window)
	if err != nil {
		return model.FeatureVector{}, &model.Exclusion{RecordID: rec.ID, Reason: err}
	}

	geography, _ := rec.Str("geography")
	ref, found, err := snap.AsOf(ctx, geography, asOf)
	if err != nil {
		return model.FeatureVector{}, &model.Exclusion{
			RecordID: rec.ID,
			Reason:   fmt.Errorf("reference lookup for %q: %w", geography, err),
		}
	}

	for _, b := range set.bindings {
		if !found {
			if b.optional {
				continue
			}
			return model.FeatureVector{}, &model.Exclusion{
				RecordID: rec.ID,
				Reason:   fmt.Errorf("no reference entry for %q at or before %s: %w", geography, asOf.Format(time.RFC3339), ErrMissingReferenceData),
			}
		}
		v, ok := ref.Metrics[b.metric]
		if !ok {
			if b.optional {
				continue
			}
			return model.FeatureVector{}, &model.Exclusion{
				RecordID: rec.ID,
				Reason:   fmt.Errorf("reference metric %q absent for %q: %w", b.metric, geography, ErrMissingReferenceData),
			}
		}
		features[b.feature] = v
	}

	return model.FeatureVector{
		RecordID:   rec.ID,
		AsOf:       asOf,
		FeatureSet: set.Version,
		Features:   features,
	}, nil
}

// baseFeaturesV1 holds the fs-1 formulas. Fixed; do not edit in place.
func baseFeaturesV1(rec model.TypedRecord, asOf time.Time, window time.Duration) (map[string]float64, error) {
	features := make(map[string]float64)

	ltv, err := loanToValue(rec)
	if err != nil {
		return nil, err
	}
	features["ltv"] = ltv

	if cs, ok := rec.Num("credit_score"); ok {
		features["credit_score_norm"] = cs / creditScoreCeiling
	}

	features["delinquency_count"] = float64(trailingEventCount(rec, "delinquency_dates", asOf, window))
	return features, nil
}

// baseFeaturesV2 holds the fs-2 formulas: fs-1 plus balance_to_income.
// Fixed; do not edit in place.
func baseFeaturesV2(rec model.TypedRecord, asOf time.Time, window time.Duration) (map[string]float64, error) {
	features, err := baseFeaturesV1(rec, asOf, window)
	if err != nil {
		return nil, err
	}
	balance, okB := rec.Num("principal_balance")
	income, okI := rec.Num("annual_income")
	if okB && okI && income > 0 {
		features["balance_to_income"] = balance / income
	}
	return features, nil
}

// loanToValue prefers the reported ltv field and falls back to the ratio of
// balance over valuation.
func loanToValue(rec model.TypedRecord) (float64, error) {
	if ltv, ok := rec.Num("ltv"); ok {
		return ltv, nil
	}
	balance, okB := rec.Num("principal_balance")
	valuation, okV := rec.Num("property_valuation")
	if !okB || !okV || valuation == 0 {
		return 0, fmt.Errorf("ltv for record %s: %w", rec.ID, ErrUnderivableFeature)
	}
	return balance / valuation, nil
}

// trailingEventCount counts event dates within the window ending at asOf.
// Events dated after asOf are never counted, regardless of window size.
func trailingEventCount(rec model.TypedRecord, field string, asOf time.Time, window time.Duration) int {
	dates, ok := rec.Dates(field)
	if !ok {
		return 0
	}
	cutoff := asOf.Add(-window)
	count := 0
	for _, d := range dates {
		if d.After(asOf) || d.Before(cutoff) {
			continue
		}
		count++
	}
	return count
}

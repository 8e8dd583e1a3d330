package model

import "time"

// FeatureVector holds the derived features for one record at one as-of time.
// It is never mutated after creation; recomputation mints a new vector.
type FeatureVector struct {
	RecordID   string
	AsOf       time.Time
	FeatureSet string // feature set version that produced this vector
	Features   map[string]float64
}

// Segment is an ordered risk bucket assigned from a continuous score.
type Segment string

// Risk segments from least to most risky.
const (
	SegmentLow    Segment = "low"
	SegmentMedium Segment = "medium"
	SegmentHigh   Segment = "high"
)

// ScoreResult is the scored outcome for one record.
type ScoreResult struct {
	RecordID     string
	FeatureSet   string
	ModelVersion string
	Score        float64 // probability in [0,1]
	Segment      Segment
	ComputedAt   time.Time
}

// Exclusion reports a valid record that could not be carried through a stage,
// e.g. a missing reference join. Excluded records are reported, never zero-filled.
type Exclusion struct {
	RecordID string
	Reason   error
}

// Thresholds is the segment ladder in effect for a scoring run. A score below
// Low maps to the low segment, below High to medium, anything else to high.
// A score exactly equal to a boundary falls into the upper bucket.
type Thresholds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Segment assigns the risk segment for a score under this ladder.
func (t Thresholds) Segment(score float64) Segment {
	switch {
	case score < t.Low:
		return SegmentLow
	case score < t.High:
		return SegmentMedium
	default:
		return SegmentHigh
	}
}

// LineageEntry links one batch to the exact versions and counts that produced
// its results. It is the unit of reproducibility and audit, append-only.
type LineageEntry struct {
	BatchID         string
	SchemaVersion   uint64
	FeatureSet      string
	ModelVersion    string
	Thresholds      Thresholds
	ValidCount      int
	InvalidCount    int
	ScoredCount     int
	MissingRefCount int
	CommittedAt     time.Time
}

// Package app wires the pipeline stages into a batch orchestrator and the
// service that feeds it from the batch queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cadencefin/riskpipe/internal/adapters/lineage"
	"github.com/cadencefin/riskpipe/internal/adapters/refdata"
	"github.com/cadencefin/riskpipe/internal/domain/feature"
	"github.com/cadencefin/riskpipe/internal/domain/model"
	"github.com/cadencefin/riskpipe/internal/domain/schema"
	"github.com/cadencefin/riskpipe/internal/domain/scoring"
	"github.com/cadencefin/riskpipe/internal/domain/validate"
	"github.com/cadencefin/riskpipe/pkg/logger"
	"github.com/cadencefin/riskpipe/pkg/metrics"
)

// State is the orchestration state of a batch.
type State string

// Batch states. Failed is terminal and reachable from any non-terminal state;
// Committed is terminal and final.
const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateDeriving   State = "deriving"
	StateScoring    State = "scoring"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

// Fatal error kinds reported for failed batches.
const (
	KindUnknownVersion   = "unknown_version"
	KindModelUnavailable = "model_unavailable"
	KindStorageWrite     = "storage_write"
	KindCancelled        = "cancelled"
	KindInternal         = "internal"
)

// Default orchestration tuning.
const (
	defaultRetryBudget  = 3
	defaultRetryBackoff = 100 * time.Millisecond
	defaultCallTimeout  = 5 * time.Second
)

// Report is the user-visible outcome of one batch run.
type Report struct {
	BatchID    string `json:"batch_id"`
	State      State  `json:"state"`
	FatalKind  string `json:"fatal_kind,omitempty"`
	Total      int    `json:"total"`
	Valid      int    `json:"valid"`
	Invalid    int    `json:"invalid"`
	Scored     int    `json:"scored"`
	MissingRef int    `json:"missing_reference"`
	Excluded   int    `json:"excluded"`
}

// RejectionSink receives invalid records plus their violations for manual
// review. The shipped sink logs them; production deployments plug in a real
// collaborator.
type RejectionSink interface {
	Reject(ctx context.Context, batchID string, rejections []model.Rejection)
}

// LogRejectionSink logs every rejection.
type LogRejectionSink struct {
	logger logger.Logger
}

// NewLogRejectionSink creates a sink that logs rejections.
func NewLogRejectionSink() *LogRejectionSink {
	return &LogRejectionSink{logger: logger.Get().Named("rejection-sink")}
}

// Reject logs each rejected record with its violations.
func (s *LogRejectionSink) Reject(ctx context.Context, batchID string, rejections []model.Rejection) {
	for _, r := range rejections {
		s.logger.Warn(ctx, "record rejected",
			logger.String("batchID", batchID),
			logger.String("recordID", r.Record.ID),
			logger.Any("violations", r.Violations),
		)
	}
}

// OrchestratorOption applies a configuration option to the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRetryBudget bounds retries of retryable model failures.
func WithOrchestratorRetryBudget(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retryBudget = n
		}
	}
}

// WithRetryBackoff sets the base backoff between scoring retries.
func WithOrchestratorRetryBackoff(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryBackoff = d
		}
	}
}

// WithCallTimeout bounds individual registry and model calls.
func WithCallTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithAuditTrail sets the transition consumer.
func WithAuditTrail(a AuditTrail) OrchestratorOption {
	return func(o *Orchestrator) {
		if a != nil {
			o.audit = a
		}
	}
}

// WithRejectionSink sets the rejection sink.
func WithRejectionSink(s RejectionSink) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithFeatureSet pins the feature set version used for derivation.
func WithOrchestratorFeatureSet(version string) OrchestratorOption {
	return func(o *Orchestrator) {
		if version != "" {
			o.featureSet = version
		}
	}
}

// WithModelVersion pins the model version recorded into lineage.
func WithOrchestratorModelVersion(version string) OrchestratorOption {
	return func(o *Orchestrator) {
		if version != "" {
			o.modelVersion = version
		}
	}
}

// WithOrchestratorLogger sets a custom logger.
func WithOrchestratorLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// Orchestrator sequences the pipeline stages for one batch at a time. Within
// a batch the stages run in strict order; parallelism lives inside the
// validator and deriver, which fan out per record over read-only shared data.
type Orchestrator struct {
	registry  *schema.Registry
	validator *validate.Validator
	deriver   *feature.Deriver
	scorer    *scoring.Scorer
	store     lineage.Store
	sink      RejectionSink
	audit     AuditTrail

	featureSet   string
	modelVersion string
	retryBudget  int
	retryBackoff time.Duration
	callTimeout  time.Duration

	logger logger.Logger
}

// NewOrchestrator creates an orchestrator over the given stages.
func NewOrchestrator(
	registry *schema.Registry,
	validator *validate.Validator,
	deriver *feature.Deriver,
	scorer *scoring.Scorer,
	store lineage.Store,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		registry:     registry,
		validator:    validator,
		deriver:      deriver,
		scorer:       scorer,
		store:        store,
		audit:        NewMemoryAuditTrail(),
		featureSet:   feature.SetV1,
		modelVersion: "model-1",
		retryBudget:  defaultRetryBudget,
		retryBackoff: defaultRetryBackoff,
		callTimeout:  defaultCallTimeout,
		logger:       logger.Get().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = NewLogRejectionSink()
	}
	return o
}

// Audit returns the transition consumer in use.
func (o *Orchestrator) Audit() AuditTrail {
	return o.audit
}

// Process runs one batch through the full pipeline against a snapshot that
// stays fixed for the whole run. It returns the batch report; for Failed
// batches the originating error is returned as well. No lineage is ever
// visible for a Failed batch.
func (o *Orchestrator) Process(ctx context.Context, b model.Batch, snap refdata.Snapshot) (Report, error) {
	report := Report{BatchID: b.ID, State: StateReceived, Total: len(b.Records)}
	metrics.RecordBatchReceived()

	state := o.transition(ctx, &report, StateReceived, StateValidating, "")

	// Resolve the declared schema version; unresolvable versions abort the batch.
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	sv, err := o.registry.Resolve(callCtx, b.SchemaVersion)
	cancel()
	if err != nil {
		return o.fail(ctx, &report, state, kindOf(err), err)
	}

	vstart := time.Now()
	vr, err := o.validator.Validate(ctx, b.Records, sv)
	if err != nil {
		return o.fail(ctx, &report, state, kindOf(err), err)
	}
	metrics.RecordStageLatency("validate", float64(time.Since(vstart).Milliseconds()))

	report.Valid = len(vr.Valid)
	report.Invalid = len(vr.Invalid)
	metrics.RecordRecordsValidated(report.Valid, report.Invalid)
	for _, rej := range vr.Invalid {
		for _, v := range rej.Violations {
			metrics.RecordViolation(string(v.Rule))
		}
	}
	if len(vr.Invalid) > 0 {
		o.sink.Reject(ctx, b.ID, vr.Invalid)
	}

	// Partial-batch tolerance: always proceed with the valid subset.
	state = o.transition(ctx, &report, state, StateDeriving, "")

	dstart := time.Now()
	vectors, exclusions, err := o.deriver.Derive(ctx, vr.Valid, b.AsOf, snap, o.featureSet)
	if err != nil {
		return o.fail(ctx, &report, state, kindOf(err), err)
	}
	metrics.RecordDerivationLatency(float64(time.Since(dstart).Milliseconds()))
	metrics.RecordFeatureVectors(len(vectors))

	report.Excluded = len(exclusions)
	for _, ex := range exclusions {
		if errors.Is(ex.Reason, feature.ErrMissingReferenceData) {
			report.MissingRef++
			metrics.RecordReferenceExclusion()
		}
		o.logger.Warn(ctx, "record excluded from scoring",
			logger.String("batchID", b.ID),
			logger.String("recordID", ex.RecordID),
			logger.Error(ex.Reason),
		)
	}

	state = o.transition(ctx, &report, state, StateScoring, "")

	results := make([]model.ScoreResult, 0, len(vectors))
	for _, fv := range vectors {
		res, err := o.scoreWithRetry(ctx, fv)
		if err != nil {
			return o.fail(ctx, &report, state, kindOf(err), err)
		}
		metrics.RecordSegment(string(res.Segment))
		results = append(results, res)
	}
	report.Scored = len(results)

	entry := model.LineageEntry{
		BatchID:         b.ID,
		SchemaVersion:   sv.Version,
		FeatureSet:      o.featureSet,
		ModelVersion:    o.modelVersion,
		Thresholds:      o.scorer.Thresholds(),
		ValidCount:      report.Valid,
		InvalidCount:    report.Invalid,
		ScoredCount:     report.Scored,
		MissingRefCount: report.MissingRef,
	}

	cstart := time.Now()
	if _, err := o.store.Record(ctx, entry, results); err != nil {
		metrics.RecordLineageCommitError()
		return o.fail(ctx, &report, state, kindOf(err), err)
	}
	metrics.RecordCommitLatency(float64(time.Since(cstart).Milliseconds()))
	metrics.RecordLineageCommit()

	o.transition(ctx, &report, state, StateCommitted, "")
	report.State = StateCommitted
	metrics.RecordBatchCommitted()

	o.logger.Info(ctx, "batch committed",
		logger.String("batchID", b.ID),
		logger.Int("total", report.Total),
		logger.Int("valid", report.Valid),
		logger.Int("invalid", report.Invalid),
		logger.Int("scored", report.Scored),
		logger.Int("missingRef", report.MissingRef),
	)
	return report, nil
}

// scoreWithRetry applies the bounded retry policy to retryable scoring
// failures. Non-retryable errors surface immediately.
func (o *Orchestrator) scoreWithRetry(ctx context.Context, fv model.FeatureVector) (model.ScoreResult, error) {
	var lastErr error
	for attempt := 0; attempt <= o.retryBudget; attempt++ {
		if attempt > 0 {
			metrics.RecordScoringRetry()
			backoff := time.Duration(attempt) * o.retryBackoff
			select {
			case <-ctx.Done():
				return model.ScoreResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		start := time.Now()
		res, err := o.scorer.Score(callCtx, fv, o.modelVersion)
		metrics.RecordScoringLatency(float64(time.Since(start).Milliseconds()))
		cancel()

		if err == nil {
			return res, nil
		}
		metrics.RecordScoringError()
		if !errors.Is(err, scoring.ErrModelUnavailable) {
			return model.ScoreResult{}, err
		}
		lastErr = err
	}
	return model.ScoreResult{}, fmt.Errorf("retry budget exhausted: %w", lastErr)
}

// transition emits one ordered state change to the audit trail.
func (o *Orchestrator) transition(ctx context.Context, report *Report, from, to State, kind string) State {
	t := Transition{
		BatchID: report.BatchID,
		From:    from,
		To:      to,
		At:      time.Now(),
		Kind:    kind,
	}
	o.audit.Observe(ctx, t)
	report.State = to
	return to
}

// fail marks the batch Failed with the originating error kind. Nothing has
// been committed at this point, so readers never see partial lineage.
func (o *Orchestrator) fail(ctx context.Context, report *Report, from State, kind string, err error) (Report, error) {
	o.transition(ctx, report, from, StateFailed, kind)
	report.State = StateFailed
	report.FatalKind = kind
	metrics.RecordBatchFailed(kind)
	o.logger.Error(ctx, "batch failed",
		logger.String("batchID", report.BatchID),
		logger.String("kind", kind),
		logger.Error(err),
	)
	return *report, err
}

// kindOf maps an error to its reported fatal kind.
func kindOf(err error) string {
	switch {
	case errors.Is(err, schema.ErrUnknownVersion), errors.Is(err, feature.ErrUnknownFeatureSet):
		return KindUnknownVersion
	case errors.Is(err, scoring.ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, lineage.ErrStorageWrite), errors.Is(err, lineage.ErrDuplicateBatch):
		return KindStorageWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindInternal
	}
}

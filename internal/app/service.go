package app

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cadencefin/riskpipe/internal/adapters/lineage"
	batchqueue "github.com/cadencefin/riskpipe/internal/adapters/mq/queue"
	workerpool "github.com/cadencefin/riskpipe/internal/adapters/mq/worker"
	"github.com/cadencefin/riskpipe/internal/adapters/refdata"
	"github.com/cadencefin/riskpipe/internal/domain/dedupe"
	"github.com/cadencefin/riskpipe/internal/domain/feature"
	"github.com/cadencefin/riskpipe/internal/domain/model"
	"github.com/cadencefin/riskpipe/internal/domain/schema"
	"github.com/cadencefin/riskpipe/internal/domain/scoring"
	"github.com/cadencefin/riskpipe/internal/domain/validate"
	"github.com/cadencefin/riskpipe/pkg/logger"
	"github.com/cadencefin/riskpipe/pkg/metrics"
)

// Service wires the pipeline components behind the HTTP API: the submission
// guard, batch queue, worker pool, orchestrator and stores.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry     *schema.Registry
	validator    *validate.Validator
	deriver      *feature.Deriver
	scorer       *scoring.Scorer
	store        lineage.Store
	orchestrator *Orchestrator
	guard        dedupe.Guard
	queue        batchqueue.Queue
	pool         *workerpool.Pool
	snapshot     refdata.Snapshot
	audit        AuditTrail

	// Batch outcome registry; Failed batches have no lineage, so their
	// reports live here.
	reports map[string]Report

	// Configuration
	workerCount  int
	queueSize    int
	guardSize    int
	mdl          scoring.Model
	thresholds   model.Thresholds
	featureSet   string
	modelVersion string
	retryBudget  int
	retryBackoff time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of batch workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the batch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithGuardSize sets the size of the submission dedupe cache.
func WithGuardSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.guardSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSnapshot sets the reference-data snapshot used for derivation.
func WithSnapshot(snap refdata.Snapshot) Option {
	return func(s *Service) {
		if snap != nil {
			s.snapshot = snap
		}
	}
}

// WithStore sets the lineage store implementation.
func WithStore(store lineage.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithModel sets the scoring model capability.
func WithModel(m scoring.Model) Option {
	return func(s *Service) {
		if m != nil {
			s.mdl = m
		}
	}
}

// WithThresholds sets the risk segment ladder.
func WithThresholds(t model.Thresholds) Option {
	return func(s *Service) {
		if t.Low > 0 && t.High > t.Low {
			s.thresholds = t
		}
	}
}

// WithFeatureSet pins the feature set version.
func WithFeatureSet(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.featureSet = version
		}
	}
}

// WithModelVersion pins the model version recorded into lineage.
func WithModelVersion(version string) Option {
	return func(s *Service) {
		if version != "" {
			s.modelVersion = version
		}
	}
}

// WithRetryBudget bounds retries of retryable scoring failures.
func WithRetryBudget(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retryBudget = n
		}
	}
}

// WithRetryBackoff sets the base backoff between scoring retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryBackoff = d
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    1024,
		guardSize:    100_000,
		thresholds:   model.Thresholds{Low: scoring.DefaultLowThreshold, High: scoring.DefaultHighThreshold},
		featureSet:   feature.SetV1,
		modelVersion: "model-1",
		retryBudget:  3,
		retryBackoff: 100 * time.Millisecond,
		reports:      make(map[string]Report),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components. A baseline loan schema
// is published when the registry is empty so the service is usable out of the
// box.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting risk pipeline service...")

	s.registry = schema.NewRegistry()
	if _, err := s.registry.Publish(ctx, schema.DefaultLoanFields(), schema.DefaultDateOrders()); err != nil {
		return err
	}

	s.validator = validate.New()
	s.deriver = feature.New()
	if s.mdl == nil {
		s.mdl = scoring.NewLogisticModel()
	}
	s.scorer = scoring.New(s.mdl, scoring.WithThresholds(s.thresholds))
	if s.store == nil {
		s.store = lineage.NewMemoryStore()
	}
	if s.snapshot == nil {
		s.snapshot = refdata.NewMemorySnapshot(nil)
	}
	s.guard = dedupe.NewMemoryGuard(dedupe.WithMaxSize(s.guardSize))
	s.audit = NewMemoryAuditTrail()

	s.orchestrator = NewOrchestrator(
		s.registry, s.validator, s.deriver, s.scorer, s.store,
		WithAuditTrail(s.audit),
		WithOrchestratorFeatureSet(s.featureSet),
		WithOrchestratorModelVersion(s.modelVersion),
		WithOrchestratorRetryBudget(s.retryBudget),
		WithOrchestratorRetryBackoff(s.retryBackoff),
	)

	s.queue = batchqueue.NewInMemoryQueue(batchqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "risk pipeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.String("featureSet", s.featureSet),
		logger.String("modelVersion", s.modelVersion),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping risk pipeline service...")

	if s.pool != nil {
		s.pool.Stop()
	}
	if q, ok := s.queue.(*batchqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	s.started = false
	s.logger.Info(ctx, "risk pipeline service stopped")
}

// Process implements the worker runner: it drives one batch through the
// orchestrator against the snapshot acquired for the whole run and records
// the outcome report.
func (s *Service) Process(ctx context.Context, b model.Batch) error {
	s.mu.RLock()
	orch := s.orchestrator
	snap := s.snapshot
	s.mu.RUnlock()

	report, err := orch.Process(ctx, b, snap)

	s.mu.Lock()
	s.reports[b.ID] = report
	s.mu.Unlock()

	return err
}

// Submit admits a batch for asynchronous processing. A repeated clientRef is
// acknowledged as a duplicate without minting a new batch. The returned
// accepted flag is false on queue backpressure.
func (s *Service) Submit(ctx context.Context, clientRef string, schemaVersion uint64, asOf time.Time, records []model.RawRecord) (batchID string, duplicate, accepted bool) {
	if clientRef != "" && s.guard.SeenAndRecord(ctx, clientRef) {
		return "", true, true
	}

	b := model.Batch{
		ID:            uuid.NewString(),
		ClientRef:     clientRef,
		SchemaVersion: schemaVersion,
		AsOf:          asOf,
		Records:       records,
		ReceivedAt:    time.Now(),
	}

	if ok := s.queue.Enqueue(ctx, b); !ok {
		if clientRef != "" {
			s.guard.Unrecord(ctx, clientRef)
		}
		return "", false, false
	}

	s.mu.Lock()
	s.reports[b.ID] = Report{BatchID: b.ID, State: StateReceived, Total: len(records)}
	s.mu.Unlock()

	metrics.UpdateQueueSize(s.queue.Len(ctx))
	return b.ID, false, true
}

// BatchReport returns the latest outcome report for a batch.
func (s *Service) BatchReport(ctx context.Context, batchID string) (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[batchID]
	return r, ok
}

// Lineage returns the committed lineage entry for a batch.
func (s *Service) Lineage(ctx context.Context, batchID string) (model.LineageEntry, error) {
	return s.store.Get(ctx, batchID)
}

// Results returns the committed score results for a batch.
func (s *Service) Results(ctx context.Context, batchID string) ([]model.ScoreResult, error) {
	return s.store.Results(ctx, batchID)
}

// ResultsByRecord returns every committed result for a record identifier.
func (s *Service) ResultsByRecord(ctx context.Context, recordID string) ([]model.ScoreResult, error) {
	return s.store.ResultsByRecord(ctx, recordID)
}

// Trail returns the ordered state transitions observed for a batch.
func (s *Service) Trail(ctx context.Context, batchID string) []Transition {
	return s.audit.Trail(ctx, batchID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"featureSet":   s.featureSet,
		"modelVersion": s.modelVersion,
		"batches":      len(s.reports),
	}

	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

// Size returns the current number of tracked submission references.
func (s *Service) Size() int64 {
	if s.guard == nil {
		return 0
	}
	return s.guard.Size()
}

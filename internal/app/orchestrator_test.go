package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cadencefin/riskpipe/internal/adapters/lineage"
	"github.com/cadencefin/riskpipe/internal/adapters/refdata"
	"github.com/cadencefin/riskpipe/internal/app"
	"github.com/cadencefin/riskpipe/internal/domain/feature"
	"github.com/cadencefin/riskpipe/internal/domain/model"
	"github.com/cadencefin/riskpipe/internal/domain/schema"
	"github.com/cadencefin/riskpipe/internal/domain/scoring"
	"github.com/cadencefin/riskpipe/internal/domain/validate"
	"github.com/cadencefin/riskpipe/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var testAsOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// flakyModel fails a configured number of predictions before delegating.
type flakyModel struct {
	mu        sync.Mutex
	failures  int
	delegated scoring.Model
}

func (m *flakyModel) Predict(ctx context.Context, fv model.FeatureVector) (float64, error) {
	m.mu.Lock()
	fail := m.failures > 0
	if fail {
		m.failures--
	}
	m.mu.Unlock()
	if fail {
		return 0, errors.New("model serving unavailable")
	}
	return m.delegated.Predict(ctx, fv)
}

// capturingSink retains rejections handed to it.
type capturingSink struct {
	mu         sync.Mutex
	rejections []model.Rejection
}

func (s *capturingSink) Reject(ctx context.Context, batchID string, rejections []model.Rejection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, rejections...)
}

type fixture struct {
	registry *schema.Registry
	store    *lineage.MemoryStore
	snap     refdata.Snapshot
	sink     *capturingSink
	orch     *app.Orchestrator
}

func newFixture(t *testing.T, m scoring.Model, storeOpts []lineage.MemoryOption, opts ...app.OrchestratorOption) *fixture {
	t.Helper()

	registry := schema.NewRegistry()
	if _, err := registry.Publish(context.Background(), schema.DefaultLoanFields(), schema.DefaultDateOrders()); err != nil {
		t.Fatalf("publish schema: %v", err)
	}

	if m == nil {
		m = scoring.NewLogisticModel()
	}
	store := lineage.NewMemoryStore(storeOpts...)
	snap := refdata.NewMemorySnapshot([]refdata.Value{
		{
			Geography: "US-CA",
			At:        testAsOf.AddDate(0, -1, 0),
			Metrics:   map[string]float64{"unemployment_rate": 5.2, "house_price_index": 310},
		},
	})
	sink := &capturingSink{}

	opts = append([]app.OrchestratorOption{
		app.WithRejectionSink(sink),
		app.WithOrchestratorRetryBackoff(time.Millisecond),
	}, opts...)

	orch := app.NewOrchestrator(
		registry,
		validate.New(),
		feature.New(),
		scoring.New(m),
		store,
		opts...,
	)
	return &fixture{registry: registry, store: store, snap: snap, sink: sink, orch: orch}
}

func rawLoan(id string, fields map[string]string) model.RawRecord {
	return model.RawRecord{
		ID:        id,
		Timestamp: testAsOf,
		Source:    "servicer-feed",
		Fields:    fields,
	}
}

func mixedBatch(id string) model.Batch {
	return model.Batch{
		ID:            id,
		ClientRef:     "ref-" + id,
		SchemaVersion: 1,
		AsOf:          testAsOf,
		Records: []model.RawRecord{
			// Missing the required principal_balance.
			rawLoan("L1", map[string]string{
				"geography":      "US-CA",
				"effective_date": "2019-03-01",
			}),
			// Termination precedes effective date.
			rawLoan("L2", map[string]string{
				"principal_balance": "200000",
				"geography":         "US-CA",
				"effective_date":    "2020-05-01",
				"termination_date":  "2019-01-01",
			}),
			// Fully valid.
			rawLoan("L3", map[string]string{
				"principal_balance":  "300000",
				"property_valuation": "400000",
				"credit_score":       "720",
				"geography":          "US-CA",
				"effective_date":     "2019-03-01",
			}),
		},
	}
}

func states(trail []app.Transition) []app.State {
	out := make([]app.State, len(trail))
	for i, tr := range trail {
		out[i] = tr.To
	}
	return out
}

func TestOrchestratorProcess(t *testing.T) {
	ctx := context.Background()

	Convey("Given an orchestrator over healthy stages", t, func() {
		f := newFixture(t, nil, nil)

		Convey("When a batch with two bad records and one good record runs", func() {
			report, err := f.orch.Process(ctx, mixedBatch("b1"), f.snap)

			Convey("Then the batch commits with the valid subset scored", func() {
				So(err, ShouldBeNil)
				So(report.State, ShouldEqual, app.StateCommitted)
				So(report.Total, ShouldEqual, 3)
				So(report.Valid, ShouldEqual, 1)
				So(report.Invalid, ShouldEqual, 2)
				So(report.Scored, ShouldEqual, 1)
				So(report.MissingRef, ShouldEqual, 0)
			})

			Convey("Then lineage records versions, thresholds and counts", func() {
				So(err, ShouldBeNil)

				entry, err := f.store.Get(ctx, "b1")
				So(err, ShouldBeNil)
				So(entry.SchemaVersion, ShouldEqual, 1)
				So(entry.FeatureSet, ShouldEqual, feature.SetV1)
				So(entry.Thresholds, ShouldResemble, model.Thresholds{
					Low:  scoring.DefaultLowThreshold,
					High: scoring.DefaultHighThreshold,
				})
				So(entry.ValidCount, ShouldEqual, 1)
				So(entry.InvalidCount, ShouldEqual, 2)
				So(entry.ScoredCount, ShouldEqual, 1)
			})

			Convey("Then exactly one result exists, for the valid record", func() {
				So(err, ShouldBeNil)

				results, err := f.store.Results(ctx, "b1")
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 1)
				So(results[0].RecordID, ShouldEqual, "L3")
				So(results[0].Score, ShouldBeBetweenOrEqual, 0, 1)
			})

			Convey("Then both rejections reached the sink", func() {
				So(err, ShouldBeNil)
				So(f.sink.rejections, ShouldHaveLength, 2)
			})

			Convey("Then the audit trail shows the full ordered path", func() {
				So(err, ShouldBeNil)
				trail := f.orch.Audit().Trail(ctx, "b1")
				So(states(trail), ShouldResemble, []app.State{
					app.StateValidating,
					app.StateDeriving,
					app.StateScoring,
					app.StateCommitted,
				})
			})
		})

		Convey("When the same batch content is processed twice under different IDs", func() {
			r1, err1 := f.orch.Process(ctx, mixedBatch("b1"), f.snap)
			r2, err2 := f.orch.Process(ctx, mixedBatch("b2"), f.snap)

			Convey("Then the scores are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(r1.Scored, ShouldEqual, r2.Scored)

				res1, err := f.store.Results(ctx, "b1")
				So(err, ShouldBeNil)
				res2, err := f.store.Results(ctx, "b2")
				So(err, ShouldBeNil)
				So(res1[0].Score, ShouldEqual, res2[0].Score)
				So(res1[0].Segment, ShouldEqual, res2[0].Segment)
			})
		})

		Convey("When every record in the batch is invalid", func() {
			b := mixedBatch("b1")
			b.Records = b.Records[:2]
			report, err := f.orch.Process(ctx, b, f.snap)

			Convey("Then the batch still commits with zero results", func() {
				So(err, ShouldBeNil)
				So(report.State, ShouldEqual, app.StateCommitted)
				So(report.Valid, ShouldEqual, 0)
				So(report.Invalid, ShouldEqual, 2)
				So(report.Scored, ShouldEqual, 0)

				results, err := f.store.Results(ctx, "b1")
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
			})
		})

		Convey("When the batch declares an unknown schema version", func() {
			b := mixedBatch("b1")
			b.SchemaVersion = 42
			report, err := f.orch.Process(ctx, b, f.snap)

			Convey("Then the batch fails with unknown_version and no lineage", func() {
				So(err, ShouldWrap, schema.ErrUnknownVersion)
				So(report.State, ShouldEqual, app.StateFailed)
				So(report.FatalKind, ShouldEqual, app.KindUnknownVersion)

				_, err := f.store.Get(ctx, "b1")
				So(err, ShouldWrap, lineage.ErrNotFound)
			})

			Convey("Then the trail ends in Failed carrying the kind", func() {
				trail := f.orch.Audit().Trail(ctx, "b1")
				So(trail, ShouldNotBeEmpty)
				last := trail[len(trail)-1]
				So(last.To, ShouldEqual, app.StateFailed)
				So(last.Kind, ShouldEqual, app.KindUnknownVersion)
			})
		})

		Convey("When reference data is missing for a record's geography", func() {
			b := mixedBatch("b1")
			b.Records[2].Fields["geography"] = "US-ZZ"
			report, err := f.orch.Process(ctx, b, f.snap)

			Convey("Then the record is excluded and counted, and the batch commits", func() {
				So(err, ShouldBeNil)
				So(report.State, ShouldEqual, app.StateCommitted)
				So(report.Valid, ShouldEqual, 1)
				So(report.Scored, ShouldEqual, 0)
				So(report.MissingRef, ShouldEqual, 1)
				So(report.Excluded, ShouldEqual, 1)

				entry, err := f.store.Get(ctx, "b1")
				So(err, ShouldBeNil)
				So(entry.MissingRefCount, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a model that fails twice before recovering", t, func() {
		m := &flakyModel{failures: 2, delegated: scoring.NewLogisticModel()}
		f := newFixture(t, m, nil, app.WithOrchestratorRetryBudget(3))

		Convey("When a batch with one valid record runs", func() {
			b := mixedBatch("b1")
			report, err := f.orch.Process(ctx, b, f.snap)

			Convey("Then retries absorb the transient failures and the batch commits", func() {
				So(err, ShouldBeNil)
				So(report.State, ShouldEqual, app.StateCommitted)
				So(report.Scored, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a model that never recovers", t, func() {
		m := &flakyModel{failures: 1 << 30, delegated: scoring.NewLogisticModel()}
		f := newFixture(t, m, nil, app.WithOrchestratorRetryBudget(2))

		Convey("When a batch with a valid record runs", func() {
			report, err := f.orch.Process(ctx, mixedBatch("b1"), f.snap)

			Convey("Then the batch fails as model_unavailable with no partial lineage", func() {
				So(err, ShouldWrap, scoring.ErrModelUnavailable)
				So(report.State, ShouldEqual, app.StateFailed)
				So(report.FatalKind, ShouldEqual, app.KindModelUnavailable)

				_, err := f.store.Get(ctx, "b1")
				So(err, ShouldWrap, lineage.ErrNotFound)
			})
		})
	})

	Convey("Given a store that fails mid-commit", t, func() {
		hook := lineage.WithCommitHook(func(ctx context.Context, batchID string) error {
			return errors.New("disk full")
		})
		f := newFixture(t, nil, []lineage.MemoryOption{hook})

		Convey("When a batch runs", func() {
			report, err := f.orch.Process(ctx, mixedBatch("b1"), f.snap)

			Convey("Then the batch fails as storage_write and nothing is visible", func() {
				So(err, ShouldWrap, lineage.ErrStorageWrite)
				So(report.State, ShouldEqual, app.StateFailed)
				So(report.FatalKind, ShouldEqual, app.KindStorageWrite)

				results, rerr := f.store.ResultsByRecord(ctx, "L3")
				So(rerr, ShouldBeNil)
				So(results, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a cancelled context", t, func() {
		f := newFixture(t, nil, nil)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("When a batch runs", func() {
			report, err := f.orch.Process(cancelled, mixedBatch("b1"), f.snap)

			Convey("Then the batch fails as cancelled", func() {
				So(err, ShouldNotBeNil)
				So(report.State, ShouldEqual, app.StateFailed)
				So(report.FatalKind, ShouldEqual, app.KindCancelled)
			})
		})
	})
}

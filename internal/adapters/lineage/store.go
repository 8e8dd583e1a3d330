// Package lineage persists batch lineage entries and score results. Writes
// are append-only and atomic per batch: either the full result set and the
// lineage entry commit together, or nothing does.
package lineage

import (
	"context"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Store provides the result boundary for downstream readers and the single
// atomic commit used by the orchestrator.
type Store interface {
	// Record commits the batch's lineage entry and all of its score results
	// in one atomic operation. The returned entry carries the commit
	// timestamp. Recording an already-committed batch id fails with
	// ErrDuplicateBatch; prior lineage is never overwritten.
	Record(ctx context.Context, entry model.LineageEntry, results []model.ScoreResult) (model.LineageEntry, error)

	// Get returns the lineage entry for a batch, or ErrNotFound.
	Get(ctx context.Context, batchID string) (model.LineageEntry, error)

	// Results returns the committed score results for a batch, or ErrNotFound
	// when the batch was never committed.
	Results(ctx context.Context, batchID string) ([]model.ScoreResult, error)

	// ResultsByRecord returns every committed result for a record identifier
	// across batches, most recent commit first.
	ResultsByRecord(ctx context.Context, recordID string) ([]model.ScoreResult, error)
}

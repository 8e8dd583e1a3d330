package lineage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// PostgresStore persists lineage entries and score results in PostgreSQL.
// Expected tables:
//
//	batch_lineage(batch_id PK, schema_version, feature_set, model_version,
//	              threshold_low, threshold_high, valid_count, invalid_count,
//	              scored_count, missing_ref_count, committed_at)
//	score_results(batch_id FK, record_id, feature_set, model_version,
//	              score, segment, computed_at)
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresStore instance.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock used to stamp commits.
func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresStore constructs a PostgreSQL-backed lineage store.
func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenPostgres opens a connection pool for dsn, verifies it and returns a
// store over it. The caller owns the store and must Close it.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %v: %w", err, ErrStorageWrite)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %v: %w", err, ErrStorageWrite)
	}
	return NewPostgresStore(db, opts...), nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Record commits entry and results in a single transaction. Any failure rolls
// the transaction back, so readers never observe a partially-recorded batch.
func (s *PostgresStore) Record(ctx context.Context, entry model.LineageEntry, results []model.ScoreResult) (model.LineageEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.LineageEntry{}, fmt.Errorf("begin commit: %v: %w", err, ErrStorageWrite)
	}
	defer func() { _ = tx.Rollback() }()

	entry.CommittedAt = s.clock()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_lineage (
			batch_id, schema_version, feature_set, model_version,
			threshold_low, threshold_high,
			valid_count, invalid_count, scored_count, missing_ref_count,
			committed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.BatchID, entry.SchemaVersion, entry.FeatureSet, entry.ModelVersion,
		entry.Thresholds.Low, entry.Thresholds.High,
		entry.ValidCount, entry.InvalidCount, entry.ScoredCount, entry.MissingRefCount,
		entry.CommittedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.LineageEntry{}, fmt.Errorf("batch %s: %w", entry.BatchID, ErrDuplicateBatch)
		}
		return model.LineageEntry{}, fmt.Errorf("insert lineage for batch %s: %v: %w", entry.BatchID, err, ErrStorageWrite)
	}

	for _, r := range results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO score_results (
				batch_id, record_id, feature_set, model_version, score, segment, computed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			entry.BatchID, r.RecordID, r.FeatureSet, r.ModelVersion, r.Score, string(r.Segment), r.ComputedAt,
		)
		if err != nil {
			return model.LineageEntry{}, fmt.Errorf("insert result %s for batch %s: %v: %w", r.RecordID, entry.BatchID, err, ErrStorageWrite)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.LineageEntry{}, fmt.Errorf("commit batch %s: %v: %w", entry.BatchID, err, ErrStorageWrite)
	}
	return entry, nil
}

// Get returns the lineage entry for a batch.
func (s *PostgresStore) Get(ctx context.Context, batchID string) (model.LineageEntry, error) {
	var entry model.LineageEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT batch_id, schema_version, feature_set, model_version,
		       threshold_low, threshold_high,
		       valid_count, invalid_count, scored_count, missing_ref_count,
		       committed_at
		FROM batch_lineage WHERE batch_id = $1
	`, batchID).Scan(
		&entry.BatchID, &entry.SchemaVersion, &entry.FeatureSet, &entry.ModelVersion,
		&entry.Thresholds.Low, &entry.Thresholds.High,
		&entry.ValidCount, &entry.InvalidCount, &entry.ScoredCount, &entry.MissingRefCount,
		&entry.CommittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LineageEntry{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}
		return model.LineageEntry{}, fmt.Errorf("get lineage for batch %s: %w", batchID, err)
	}
	return entry, nil
}

// Results returns the committed results for a batch.
func (s *PostgresStore) Results(ctx context.Context, batchID string) ([]model.ScoreResult, error) {
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, feature_set, model_version, score, segment, computed_at
		FROM score_results WHERE batch_id = $1
		ORDER BY record_id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query results for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// ResultsByRecord returns every committed result for a record identifier,
// most recent commit first.
func (s *PostgresStore) ResultsByRecord(ctx context.Context, recordID string) ([]model.ScoreResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.record_id, r.feature_set, r.model_version, r.score, r.segment, r.computed_at
		FROM score_results r
		JOIN batch_lineage l ON l.batch_id = r.batch_id
		WHERE r.record_id = $1
		ORDER BY l.committed_at DESC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query results for record %s: %w", recordID, err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]model.ScoreResult, error) {
	var out []model.ScoreResult
	for rows.Next() {
		var r model.ScoreResult
		var segment string
		if err := rows.Scan(&r.RecordID, &r.FeatureSet, &r.ModelVersion, &r.Score, &segment, &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.Segment = model.Segment(segment)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return out, nil
}

package lineage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cadencefin/riskpipe/internal/domain/model"
)

// Clock abstracts wall-clock time for testability.
type Clock func() time.Time

// CommitHook runs after staging and before publishing a commit. A non-nil
// error aborts the commit leaving nothing visible. Tests use it to simulate
// storage failures mid-commit.
type CommitHook func(ctx context.Context, batchID string) error

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used to stamp commits.
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCommitHook installs a pre-publish hook.
func WithCommitHook(hook CommitHook) MemoryOption {
	return func(s *MemoryStore) {
		s.hook = hook
	}
}

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.LineageEntry
	results map[string][]model.ScoreResult // batchID -> results
	clock   Clock
	hook    CommitHook
}

// NewMemoryStore creates an empty in-memory lineage store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]model.LineageEntry),
		results: make(map[string][]model.ScoreResult),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record commits entry and results atomically under one lock acquisition.
// Staging happens before anything becomes visible, so a failure at any point
// leaves zero results readable for the batch.
func (s *MemoryStore) Record(ctx context.Context, entry model.LineageEntry, results []model.ScoreResult) (model.LineageEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.LineageEntry{}, fmt.Errorf("record lineage: %v: %w", err, ErrStorageWrite)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.BatchID]; exists {
		return model.LineageEntry{}, fmt.Errorf("batch %s: %w", entry.BatchID, ErrDuplicateBatch)
	}

	// Stage copies before publishing.
	staged := make([]model.ScoreResult, len(results))
	copy(staged, results)
	entry.CommittedAt = s.clock()

	if s.hook != nil {
		if err := s.hook(ctx, entry.BatchID); err != nil {
			return model.LineageEntry{}, fmt.Errorf("commit batch %s: %v: %w", entry.BatchID, err, ErrStorageWrite)
		}
	}

	s.entries[entry.BatchID] = entry
	s.results[entry.BatchID] = staged
	return entry, nil
}

// Get returns the lineage entry for a batch.
func (s *MemoryStore) Get(ctx context.Context, batchID string) (model.LineageEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.LineageEntry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[batchID]
	if !ok {
		return model.LineageEntry{}, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return entry, nil
}

// Results returns the committed results for a batch.
func (s *MemoryStore) Results(ctx context.Context, batchID string) ([]model.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[batchID]; !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	out := make([]model.ScoreResult, len(s.results[batchID]))
	copy(out, s.results[batchID])
	return out, nil
}

// ResultsByRecord returns every committed result for a record identifier,
// most recent commit first.
func (s *MemoryStore) ResultsByRecord(ctx context.Context, recordID string) ([]model.ScoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		result    model.ScoreResult
		committed time.Time
	}
	var hits []hit
	for batchID, rs := range s.results {
		for _, r := range rs {
			if r.RecordID == recordID {
				hits = append(hits, hit{result: r, committed: s.entries[batchID].CommittedAt})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].committed.After(hits[j].committed) })

	out := make([]model.ScoreResult, len(hits))
	for i, h := range hits {
		out[i] = h.result
	}
	return out, nil
}

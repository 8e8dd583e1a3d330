// Package refdata provides read-only reference-data snapshots with as-of
// lookup semantics. A snapshot is acquired once at batch start and never
// changes while the batch is in flight.
package refdata

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Value is one reference observation for a geography at a point in time.
type Value struct {
	Geography string
	At        time.Time
	Metrics   map[string]float64 // metric name -> value, e.g. "unemployment_rate"
}

// Snapshot looks up reference data valid at or before a given time. Lookups
// never return a value dated after the requested time, which is what prevents
// lookahead leakage in derived features.
type Snapshot interface {
	// AsOf returns the nearest value for geography dated at or before t.
	// ok is false when no such value exists.
	AsOf(ctx context.Context, geography string, t time.Time) (Value, bool, error)

	// ID identifies the snapshot boundary for lineage purposes.
	ID() string
}

// Option applies a configuration option to the MemorySnapshot.
type Option func(*MemorySnapshot)

// WithID sets the snapshot identifier recorded in lineage.
func WithID(id string) Option {
	return func(s *MemorySnapshot) {
		if id != "" {
			s.id = id
		}
	}
}

// MemorySnapshot implements Snapshot over an in-memory value set. The value
// set is sorted once at construction and read-only afterwards.
type MemorySnapshot struct {
	id     string
	mu     sync.RWMutex
	series map[string][]Value // geography -> values sorted by At ascending
}

// NewMemorySnapshot builds a snapshot from a value set.
func NewMemorySnapshot(values []Value, opts ...Option) *MemorySnapshot {
	s := &MemorySnapshot{
		id:     "snapshot-" + time.Now().UTC().Format("20060102T150405Z"),
		series: make(map[string][]Value),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, v := range values {
		s.series[v.Geography] = append(s.series[v.Geography], v)
	}
	for geo := range s.series {
		vs := s.series[geo]
		sort.Slice(vs, func(i, j int) bool { return vs[i].At.Before(vs[j].At) })
		s.series[geo] = vs
	}
	return s
}

// AsOf returns the nearest value for geography dated at or before t.
func (s *MemorySnapshot) AsOf(ctx context.Context, geography string, t time.Time) (Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.series[geography]
	if len(vs) == 0 {
		return Value{}, false, nil
	}

	// First index strictly after t; the candidate is the one before it.
	idx := sort.Search(len(vs), func(i int) bool { return vs[i].At.After(t) })
	if idx == 0 {
		return Value{}, false, nil
	}
	return vs[idx-1], true, nil
}

// ID identifies the snapshot boundary.
func (s *MemorySnapshot) ID() string {
	return s.id
}

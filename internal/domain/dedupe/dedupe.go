// Package dedupe tracks client batch references so a resubmitted batch is
// acknowledged as a duplicate instead of being processed twice. Reprocessing
// on purpose always goes through a fresh reference, which mints a fresh
// BatchID downstream.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard records seen batch references for at-most-once admission.
type Guard interface {
	// SeenAndRecord atomically checks if ref was seen and records it if not.
	// Returns true if ref was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, ref string) bool

	// Unrecord removes a reference, allowing resubmission. Used when a batch
	// was admitted but could not be enqueued.
	Unrecord(ctx context.Context, ref string)

	Size() int64
}

// memoryGuard implements Guard with a map plus FIFO eviction ring.
// Bounded mode (maxSize > 0) evicts the oldest reference once full;
// unbounded mode (maxSize <= 0) keeps everything.
type memoryGuard struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // FIFO ring of references, bounded mode only
	head    int      // index of the oldest live entry in order
	maxSize int
	size    atomic.Int64
}

// NewMemoryGuard creates an in-memory guard with configuration options.
func NewMemoryGuard(opts ...Option) Guard {
	g := &memoryGuard{
		maxSize: 100_000,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.seen = make(map[string]struct{})
	return g
}

// SeenAndRecord atomically checks if ref was seen and records it if not.
func (g *memoryGuard) SeenAndRecord(ctx context.Context, ref string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[ref]; ok {
		return true
	}

	if g.maxSize > 0 && len(g.seen) >= g.maxSize {
		g.evictOldest()
	}

	g.seen[ref] = struct{}{}
	if g.maxSize > 0 {
		g.order = append(g.order, ref)
	}
	g.size.Add(1)
	return false
}

// Unrecord removes a reference, allowing resubmission.
func (g *memoryGuard) Unrecord(ctx context.Context, ref string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[ref]; !ok {
		return
	}
	delete(g.seen, ref)
	g.size.Add(-1)
	// The stale slot in order is skipped lazily during eviction.
}

// evictOldest drops the oldest still-live reference. Must hold g.mu.
func (g *memoryGuard) evictOldest() {
	for g.head < len(g.order) {
		ref := g.order[g.head]
		g.head++
		if _, ok := g.seen[ref]; ok {
			delete(g.seen, ref)
			g.size.Add(-1)
			break
		}
	}
	// Compact once the dead prefix dominates.
	if g.head > len(g.order)/2 {
		g.order = append([]string(nil), g.order[g.head:]...)
		g.head = 0
	}
}

// Size returns the current number of tracked references.
func (g *memoryGuard) Size() int64 {
	return g.size.Load()
}

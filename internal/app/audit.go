package app

import (
	"context"
	"sync"
	"time"
)

// Transition is one ordered state change of a batch. Transitions replace the
// storage-trigger audit logging of the original design: the orchestrator
// emits them explicitly and the trail consumes them synchronously, so the
// audit order is exactly the processing order.
type Transition struct {
	BatchID string    `json:"batch_id"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Kind    string    `json:"kind,omitempty"` // fatal error kind on transitions into Failed
}

// AuditTrail consumes ordered state transitions.
type AuditTrail interface {
	Observe(ctx context.Context, t Transition)
	Trail(ctx context.Context, batchID string) []Transition
}

// MemoryAuditTrail retains transitions per batch in arrival order.
type MemoryAuditTrail struct {
	mu     sync.RWMutex
	trails map[string][]Transition
}

// NewMemoryAuditTrail creates an empty audit trail.
func NewMemoryAuditTrail() *MemoryAuditTrail {
	return &MemoryAuditTrail{
		trails: make(map[string][]Transition),
	}
}

// Observe appends a transition to the batch's trail.
func (a *MemoryAuditTrail) Observe(ctx context.Context, t Transition) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trails[t.BatchID] = append(a.trails[t.BatchID], t)
}

// Trail returns the ordered transitions observed for a batch.
func (a *MemoryAuditTrail) Trail(ctx context.Context, batchID string) []Transition {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Transition, len(a.trails[batchID]))
	copy(out, a.trails[batchID])
	return out
}

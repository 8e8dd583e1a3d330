// Package dedupe tracks client batch references for at-most-once admission.
package dedupe

// Option applies a configuration option to the memory guard.
type Option func(*memoryGuard)

// WithMaxSize sets the maximum number of references to keep in memory.
// If maxSize > 0: bounded mode with FIFO eviction.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(g *memoryGuard) {
		g.maxSize = maxSize
	}
}

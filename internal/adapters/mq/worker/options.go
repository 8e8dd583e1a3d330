// Package worker runs the batch worker pool that drives the orchestrator.
package worker

import (
	"github.com/cadencefin/riskpipe/pkg/logger"
)

// Option applies a configuration option to the BatchWorker.
type Option func(*BatchWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *BatchWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *BatchWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

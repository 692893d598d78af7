// Package gather acquires historical market data and persists it to a bar
// store for later backtest runs.
package gather

import "context"

// Gatherer is a named, runnable data-acquisition job.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string

	// Run executes the gathering job. It respects context cancellation.
	Run(ctx context.Context) error
}

// Package strategy defines the Strategy contract the backtesting engine
// calls into, and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"context"
	"sort"

	"paperback/internal/domain"
)

// Strategy is the capability set every pluggable trading strategy must
// provide. The engine fully awaits each callback before advancing to the
// next bar; implementations never see overlapping invocations for one run.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Initialize performs one-time setup before the first bar is processed.
	// The engine calls it exactly once per run with the starting capital.
	Initialize(ctx context.Context, initialCapital float64) error

	// RequiredHistory returns how many preceding bars the strategy wants in
	// its lookback window. The window is shorter at the start of the series;
	// that is not an error.
	RequiredHistory() int

	// OnBar is the per-bar decision point. It may write scratch fields on
	// state and returns a single signal for the bar.
	OnBar(ctx context.Context, bctx *domain.StrategyContext, state *domain.StrategyState) (domain.Signal, error)

	// CalculatePositionSize returns the quantity to fill for a BUY signal
	// that did not specify one.
	CalculatePositionSize(signal domain.Signal, bctx *domain.StrategyContext) float64

	// OnOrderFilled notifies the strategy that its BUY executed.
	OnOrderFilled(ctx context.Context, order *domain.Order, state *domain.StrategyState) error

	// OnSessionEnd is called on the last bar of each calendar trading day.
	// Any CLOSE signal it returns is executed immediately against that bar.
	OnSessionEnd(ctx context.Context, state *domain.StrategyState) ([]domain.Signal, error)

	// Params returns the strategy's configuration, echoed into run results.
	Params() map[string]float64
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package builtins

import (
	"context"

	"paperback/internal/domain"
	"paperback/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BuyHold)(nil)

// BuyHold is a baseline strategy: it buys once on the first in-session bar
// and holds for the rest of the run.
type BuyHold struct{}

// NewBuyHold creates a BuyHold strategy.
func NewBuyHold() *BuyHold {
	return &BuyHold{}
}

// Name returns "buy-hold".
func (s *BuyHold) Name() string { return "buy-hold" }

// Initialize performs no setup.
func (s *BuyHold) Initialize(_ context.Context, _ float64) error { return nil }

// RequiredHistory returns 0; the strategy needs no lookback.
func (s *BuyHold) RequiredHistory() int { return 0 }

// Params returns no parameters.
func (s *BuyHold) Params() map[string]float64 { return map[string]float64{} }

// OnBar buys on the first bar it sees, then holds.
func (s *BuyHold) OnBar(_ context.Context, _ *domain.StrategyContext, state *domain.StrategyState) (domain.Signal, error) {
	if entered, _ := state.SessionData["entered"].(bool); entered {
		return domain.Signal{Type: domain.SignalHold, Reason: "holding"}, nil
	}
	return domain.Signal{Type: domain.SignalBuy, Reason: "initial entry"}, nil
}

// CalculatePositionSize spends up to 95% of available cash, capped by the
// advisory max position notional.
func (s *BuyHold) CalculatePositionSize(sig domain.Signal, bctx *domain.StrategyContext) float64 {
	price := sig.Price
	if price == 0 {
		price = bctx.Bar.Close
	}
	if price <= 0 {
		return 0
	}
	notional := bctx.Portfolio.Cash * 0.95
	if bctx.Risk.MaxPositionSize > 0 && notional > bctx.Risk.MaxPositionSize {
		notional = bctx.Risk.MaxPositionSize
	}
	return notional / price
}

// OnOrderFilled marks the entry as done so no further buys are emitted.
func (s *BuyHold) OnOrderFilled(_ context.Context, _ *domain.Order, state *domain.StrategyState) error {
	state.SessionData["entered"] = true
	return nil
}

// OnSessionEnd returns no signals; the position is held across sessions.
func (s *BuyHold) OnSessionEnd(_ context.Context, _ *domain.StrategyState) ([]domain.Signal, error) {
	return nil, nil
}

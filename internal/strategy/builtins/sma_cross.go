// Package builtins provides the strategy implementations that ship with
// paperback.
package builtins

import (
	"context"
	"fmt"

	"paperback/internal/domain"
	"paperback/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It buys
// when the short-period SMA crosses above the long-period SMA and closes the
// position when it crosses back below. Positions are carried across session
// boundaries.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates an SMACross strategy with the specified short and long
// moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Initialize validates the configured periods.
func (s *SMACross) Initialize(_ context.Context, _ float64) error {
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: need 0 < short < long, got short=%d long=%d", s.shortPeriod, s.longPeriod)
	}
	return nil
}

// RequiredHistory returns enough preceding bars to compute both the current
// and previous long SMA.
func (s *SMACross) RequiredHistory() int {
	return s.longPeriod + 1
}

// Params returns the configured periods.
func (s *SMACross) Params() map[string]float64 {
	return map[string]float64{
		"short": float64(s.shortPeriod),
		"long":  float64(s.longPeriod),
	}
}

// OnBar detects a crossover between the short and long SMA over the lookback
// window plus the current bar, and emits BUY/CLOSE accordingly.
func (s *SMACross) OnBar(_ context.Context, bctx *domain.StrategyContext, state *domain.StrategyState) (domain.Signal, error) {
	closes := make([]float64, 0, len(bctx.History)+1)
	for _, b := range bctx.History {
		closes = append(closes, b.Close)
	}
	closes = append(closes, bctx.Bar.Close)

	// Need one extra close to compare against the previous bar's SMAs.
	if len(closes) < s.longPeriod+1 {
		return domain.Signal{Type: domain.SignalHold, Reason: "warming up"}, nil
	}

	shortNow := sma(closes, s.shortPeriod)
	longNow := sma(closes, s.longPeriod)
	prev := closes[:len(closes)-1]
	shortPrev := sma(prev, s.shortPeriod)
	longPrev := sma(prev, s.longPeriod)

	state.Indicators["sma_short"] = shortNow
	state.Indicators["sma_long"] = longNow

	flat := len(bctx.Portfolio.Positions) == 0
	switch {
	case flat && shortPrev <= longPrev && shortNow > longNow:
		return domain.Signal{Type: domain.SignalBuy, Reason: "short SMA crossed above long SMA"}, nil
	case !flat && shortPrev >= longPrev && shortNow < longNow:
		return domain.Signal{Type: domain.SignalClose, Reason: "short SMA crossed below long SMA"}, nil
	}
	return domain.Signal{Type: domain.SignalHold, Reason: "no crossover"}, nil
}

// CalculatePositionSize spends up to 95% of available cash, capped by the
// advisory max position notional.
func (s *SMACross) CalculatePositionSize(sig domain.Signal, bctx *domain.StrategyContext) float64 {
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

// OnOrderFilled records the entry price for the strategy's own bookkeeping.
func (s *SMACross) OnOrderFilled(_ context.Context, order *domain.Order, state *domain.StrategyState) error {
	state.SessionData["last_entry_price"] = order.FilledAvgPrice
	return nil
}

// OnSessionEnd returns no signals; crossover positions are carried overnight.
func (s *SMACross) OnSessionEnd(_ context.Context, _ *domain.StrategyState) ([]domain.Signal, error) {
	return nil, nil
}

// sma is the arithmetic mean of the last period values.
func sma(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	var total float64
	for _, v := range values[len(values)-period:] {
		total += v
	}
	return total / float64(period)
}

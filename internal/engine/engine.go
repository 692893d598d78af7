// Package engine implements the event-driven backtesting engine. It replays
// an ordered historical bar series through a pluggable strategy, simulates
// order execution with slippage and commission, maintains exact portfolio
// accounting, and emits a trade ledger plus performance metrics.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"paperback/internal/analyzer"
	"paperback/internal/domain"
	"paperback/internal/hours"
	"paperback/internal/strategy"
)

// Advisory risk-limit conventions handed to strategies on every bar. The
// engine does not enforce these itself.
const (
	maxDailyLossFraction = 0.05 // of current portfolio value
	maxDrawdownFraction  = 0.20 // of initial capital
)

// Hooks are optional observation callbacks fired synchronously at the
// relevant points of a run. They have no effect on engine state.
type Hooks struct {
	// OnProgress fires after each bar with the number of bars completed and
	// the total bar count.
	OnProgress func(completed, total int)

	// OnTrade fires for every record appended to the trade ledger.
	OnTrade func(domain.TradeRecord)

	// OnSignal fires for every signal a strategy returns, before validation.
	OnSignal func(domain.Signal)
}

// Config describes one backtest run. It is immutable for the run's duration.
//
// Bars must be pre-sorted by strictly increasing timestamp; the engine
// performs no sorting, gap-filling, or monotonicity validation.
type Config struct {
	Symbol          string
	InitialCapital  float64
	Commission      float64 // flat fee per fill
	Slippage        float64 // fractional rate applied to execution price
	MaxPositionSize float64 // advisory max notional per position

	Hours              domain.MarketHours
	AllowExtendedHours bool

	// StartDate and EndDate are labels echoed into the result; they do not
	// filter the bar sequence.
	StartDate string
	EndDate   string

	// CloseAllOnSell preserves the engine's historical SELL semantics: a
	// SELL signal closes every open lot rather than targeting one. When
	// false, SELL signals are ignored with a warning, since no lot-targeting
	// policy is implemented.
	CloseAllOnSell bool

	// ValidateTrades makes bar-level execution errors abort the run. When
	// false the engine logs them and continues (best-effort mode for long
	// unattended sweeps).
	ValidateTrades bool

	Strategy strategy.Strategy
	Bars     []domain.Bar
	Hooks    Hooks
}

// Engine owns the mutable state of exactly one run: cash, open positions,
// the trade ledger, the equity curve, and the shared strategy state. It is
// single-threaded; parallel backtests must use independent Engine instances.
type Engine struct {
	log *slog.Logger

	cfg           Config
	cash          float64
	positions     []*domain.Position
	trades        []domain.TradeRecord
	equity        []domain.EquityPoint
	state         *domain.StrategyState
	highWaterMark float64
	maxDrawdown   float64
}

// New creates an Engine that reports diagnostics through the given logger.
// A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log.With("component", "engine")}
}

// MaxDrawdown returns the engine's running peak-to-trough drawdown fraction
// after a run. It must agree with the analyzer's independent recomputation
// from the equity curve.
func (e *Engine) MaxDrawdown() float64 { return e.maxDrawdown }

// Run executes the backtest described by cfg and returns the full result.
//
// Configuration errors (ErrNoStrategy, ErrNoBars, ErrInvalidCapital) are
// returned before any bar is processed. A cancelled context aborts cleanly at
// the next bar boundary and returns the partial result accumulated so far
// together with the context's error; the cash and position invariants hold
// on that partial result.
func (e *Engine) Run(ctx context.Context, cfg Config) (*domain.BacktestResult, error) {
	if cfg.Strategy == nil {
		return nil, ErrNoStrategy
	}
	if len(cfg.Bars) == 0 {
		return nil, ErrNoBars
	}
	if cfg.InitialCapital <= 0 {
		return nil, ErrInvalidCapital
	}

	e.cfg = cfg
	e.cash = cfg.InitialCapital
	e.positions = nil
	e.trades = nil
	e.equity = make([]domain.EquityPoint, 0, len(cfg.Bars))
	e.state = domain.NewStrategyState()
	e.highWaterMark = cfg.InitialCapital
	e.maxDrawdown = 0

	if err := cfg.Strategy.Initialize(ctx, cfg.InitialCapital); err != nil {
		return nil, fmt.Errorf("initializing strategy %q: %w", cfg.Strategy.Name(), err)
	}

	total := len(cfg.Bars)
	e.log.Info("starting backtest",
		"strategy", cfg.Strategy.Name(),
		"symbol", cfg.Symbol,
		"bars", total,
		"capital", cfg.InitialCapital,
	)

	for i, bar := range cfg.Bars {
		if err := ctx.Err(); err != nil {
			e.log.Warn("run cancelled", "bar", i, "of", total)
			return e.finalize(), err
		}

		if err := e.processBar(ctx, i, bar); err != nil {
			execErr := &ExecutionError{BarIndex: i, BarTime: bar.Timestamp, Err: err}
			if cfg.ValidateTrades {
				return nil, execErr
			}
			e.log.Error("bar processing failed, continuing", "bar", i, "err", err)
		}

		if cfg.Hooks.OnProgress != nil {
			cfg.Hooks.OnProgress(i+1, total)
		}
	}

	result := e.finalize()
	e.log.Info("backtest complete",
		"trades", result.Performance.TotalTrades,
		"totalPL", result.Performance.TotalPL,
		"maxDrawdown", result.Performance.MaxDrawdown,
	)
	return result, nil
}

// processBar runs one iteration of the event loop: build the strategy
// context, process pending orders, mark open positions, invoke the strategy
// (unless the bar is gated out of session), apply its signal, sample the
// equity curve, and handle the session-end boundary.
//
// Equity sampling and session-end handling are unconditional: a strategy
// error on the signal path must not drop the bar's equity point or leave a
// position carrying across a day boundary. The first error is returned after
// those steps complete.
func (e *Engine) processBar(ctx context.Context, i int, bar domain.Bar) error {
	bctx := e.buildContext(i, bar)

	e.processPendingOrders(bar)
	e.markPositions(bar)

	var barErr error
	if bctx.IsMarketOpen || e.cfg.AllowExtendedHours {
		barErr = e.runStrategy(ctx, bctx, bar)
	}

	e.sampleEquity(bar)

	if e.isSessionEnd(i) {
		sigs, err := e.cfg.Strategy.OnSessionEnd(ctx, e.state)
		if err != nil {
			if barErr == nil {
				barErr = fmt.Errorf("strategy OnSessionEnd: %w", err)
			}
		} else {
			for _, sig := range sigs {
				if sig.Type == domain.SignalClose {
					e.closeAll(bar, sig.Reason)
				}
			}
		}
	}
	return barErr
}

// runStrategy invokes OnBar and dispatches the resulting signal.
func (e *Engine) runStrategy(ctx context.Context, bctx *domain.StrategyContext, bar domain.Bar) error {
	sig, err := e.cfg.Strategy.OnBar(ctx, bctx, e.state)
	if err != nil {
		return fmt.Errorf("strategy OnBar: %w", err)
	}
	if e.cfg.Hooks.OnSignal != nil {
		e.cfg.Hooks.OnSignal(sig)
	}
	if err := validateSignal(sig); err != nil {
		e.log.Debug("dropping invalid signal", "err", err)
		return nil
	}
	return e.applySignal(ctx, bctx, bar, sig)
}

// processPendingOrders is a deliberately unimplemented extension point for
// future limit/stop-order matching. StrategyState.PendingOrders is declared
// but never populated, and no matching semantics are defined.
func (e *Engine) processPendingOrders(_ domain.Bar) {}

// buildContext assembles the per-bar view handed to the strategy.
func (e *Engine) buildContext(i int, bar domain.Bar) *domain.StrategyContext {
	start := i - e.cfg.Strategy.RequiredHistory()
	if start < 0 {
		start = 0
	}

	snapshot := domain.PortfolioSnapshot{
		Cash:       e.cash,
		Positions:  make([]domain.Position, 0, len(e.positions)),
		TotalValue: e.portfolioValue(bar.Close),
	}
	for _, p := range e.positions {
		snapshot.Positions = append(snapshot.Positions, *p)
	}

	return &domain.StrategyContext{
		Bar:          bar,
		History:      e.cfg.Bars[start:i],
		IsMarketOpen: hours.IsMarketHours(bar.Timestamp, e.cfg.Hours),
		IsPreMarket:  hours.IsPreMarketHours(bar.Timestamp, e.cfg.Hours),
		IsAfterHours: hours.IsAfterHours(bar.Timestamp, e.cfg.Hours),
		TimeToClose:  hours.TimeToMarketClose(bar.Timestamp, e.cfg.Hours),
		Portfolio:    snapshot,
		Risk: domain.RiskLimits{
			MaxPositionSize: e.cfg.MaxPositionSize,
			MaxDailyLoss:    snapshot.TotalValue * maxDailyLossFraction,
			MaxDrawdown:     e.cfg.InitialCapital * maxDrawdownFraction,
		},
	}
}

// markPositions marks every open position to the bar's close.
func (e *Engine) markPositions(bar domain.Bar) {
	for _, p := range e.positions {
		p.CurrentPrice = bar.Close
		p.UnrealizedPL = (bar.Close - p.EntryPrice) * p.Quantity
	}
}

// validateSignal rejects signals without a type or reason, and signals whose
// explicit price is not finite and positive.
func validateSignal(sig domain.Signal) error {
	switch sig.Type {
	case domain.SignalBuy, domain.SignalSell, domain.SignalClose, domain.SignalHold:
	default:
		return fmt.Errorf("unknown signal type %q", sig.Type)
	}
	if sig.Reason == "" {
		return fmt.Errorf("signal %s missing reason", sig.Type)
	}
	if sig.Price != 0 {
		if math.IsNaN(sig.Price) || math.IsInf(sig.Price, 0) || sig.Price <= 0 {
			return fmt.Errorf("signal %s has invalid price %v", sig.Type, sig.Price)
		}
	}
	return nil
}

// applySignal dispatches a validated signal.
func (e *Engine) applySignal(ctx context.Context, bctx *domain.StrategyContext, bar domain.Bar, sig domain.Signal) error {
	switch sig.Type {
	case domain.SignalBuy:
		return e.executeBuy(ctx, bctx, bar, sig)
	case domain.SignalSell:
		if !e.cfg.CloseAllOnSell {
			e.log.Warn("SELL signal ignored: lot-targeted sells not implemented and CloseAllOnSell disabled")
			return nil
		}
		e.closeAll(bar, sig.Reason)
	case domain.SignalClose:
		e.closeAll(bar, sig.Reason)
	case domain.SignalHold:
	}
	return nil
}

// executeBuy fills a BUY signal against the bar. Slippage moves the fill
// price up; commission is charged once on the entry leg. A fill whose total
// cost exceeds available cash is skipped with no ledger entry; the rejection
// is observable only by its absence from the trade ledger.
func (e *Engine) executeBuy(ctx context.Context, bctx *domain.StrategyContext, bar domain.Bar, sig domain.Signal) error {
	qty := sig.Quantity
	if qty <= 0 {
		qty = e.cfg.Strategy.CalculatePositionSize(sig, bctx)
	}
	if qty <= 0 {
		e.log.Debug("buy skipped: non-positive quantity", "qty", qty)
		return nil
	}

	price := sig.Price
	if price == 0 {
		price = bar.Close
	}
	execPrice := price * (1 + e.cfg.Slippage)
	totalCost := execPrice*qty + e.cfg.Commission

	if totalCost > e.cash {
		e.log.Warn("buy rejected: insufficient funds",
			"cost", totalCost, "cash", e.cash, "qty", qty)
		return nil
	}

	e.cash -= totalCost

	pos := &domain.Position{
		Symbol:       e.cfg.Symbol,
		Quantity:     qty,
		EntryPrice:   execPrice,
		EntryTime:    bar.Timestamp,
		CurrentPrice: bar.Close,
		UnrealizedPL: (bar.Close - execPrice) * qty,
		Side:         domain.PositionLong,
	}
	e.positions = append(e.positions, pos)
	e.state.CurrentPosition = pos

	e.appendTrade(domain.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     e.cfg.Symbol,
		Type:       domain.TradeBuy,
		Quantity:   qty,
		Price:      execPrice,
		Timestamp:  bar.Timestamp,
		Commission: e.cfg.Commission,
		Slippage:   (execPrice - price) * qty,
		Reason:     sig.Reason,
	})

	order := &domain.Order{
		ID:             uuid.NewString(),
		Symbol:         e.cfg.Symbol,
		Side:           domain.OrderSideBuy,
		Type:           domain.OrderTypeMarket,
		Status:         domain.OrderStatusFilled,
		Qty:            qty,
		FilledQty:      qty,
		FilledAvgPrice: execPrice,
		CreatedAt:      bar.Timestamp,
		FilledAt:       bar.Timestamp,
	}
	if err := e.cfg.Strategy.OnOrderFilled(ctx, order, e.state); err != nil {
		return fmt.Errorf("strategy OnOrderFilled: %w", err)
	}
	return nil
}

// closeAll closes every open lot against the bar's close. Slippage moves the
// fill price down; the realized pnl charges commission on both legs.
func (e *Engine) closeAll(bar domain.Bar, reason string) {
	for _, pos := range e.positions {
		execPrice := bar.Close * (1 - e.cfg.Slippage)
		proceeds := execPrice*pos.Quantity - e.cfg.Commission
		pnl := (execPrice-pos.EntryPrice)*pos.Quantity - e.cfg.Commission*2

		e.cash += proceeds

		e.appendTrade(domain.TradeRecord{
			ID:         uuid.NewString(),
			Symbol:     pos.Symbol,
			Type:       domain.TradeSell,
			Quantity:   pos.Quantity,
			Price:      execPrice,
			Timestamp:  bar.Timestamp,
			Commission: e.cfg.Commission,
			Slippage:   (bar.Close - execPrice) * pos.Quantity,
			Reason:     reason,
			PNL:        domain.Float64(pnl),
		})

		e.state.Performance.TotalTrades++
		if pnl > 0 {
			e.state.Performance.WinningTrades++
		}
	}
	e.positions = nil
	e.state.CurrentPosition = nil
}

// appendTrade appends to the ledger and fires the OnTrade hook.
func (e *Engine) appendTrade(tr domain.TradeRecord) {
	e.trades = append(e.trades, tr)
	if e.cfg.Hooks.OnTrade != nil {
		e.cfg.Hooks.OnTrade(tr)
	}
}

// sampleEquity appends an equity-curve point for the bar and updates the
// high-water mark and running drawdown. The high-water mark and max drawdown
// are non-decreasing across the run.
func (e *Engine) sampleEquity(bar domain.Bar) {
	total := e.portfolioValue(bar.Close)
	e.equity = append(e.equity, domain.EquityPoint{Timestamp: bar.Timestamp, Value: total})

	if total > e.highWaterMark {
		e.highWaterMark = total
	}
	var dd float64
	if e.highWaterMark > 0 {
		dd = (e.highWaterMark - total) / e.highWaterMark
	}
	e.state.Performance.CurrentDrawdown = dd
	if dd > e.maxDrawdown {
		e.maxDrawdown = dd
	}
	e.state.Performance.MaxDrawdown = e.maxDrawdown
}

// portfolioValue is cash plus the sum of open lots marked at the given price.
func (e *Engine) portfolioValue(price float64) float64 {
	total := e.cash
	for _, p := range e.positions {
		total += p.Quantity * price
	}
	return total
}

// isSessionEnd reports whether bar i ends a calendar trading day: it is the
// last bar overall, or the next bar falls on a different date.
func (e *Engine) isSessionEnd(i int) bool {
	if i == len(e.cfg.Bars)-1 {
		return true
	}
	cur := e.cfg.Bars[i].Timestamp
	next := e.cfg.Bars[i+1].Timestamp
	cy, cm, cd := cur.Date()
	ny, nm, nd := next.Date()
	return cy != ny || cm != nm || cd != nd
}

// finalize hands the accumulated ledger and equity curve to the analyzer.
func (e *Engine) finalize() *domain.BacktestResult {
	res := analyzer.GenerateResults(
		e.cfg.Strategy.Name(),
		e.cfg.Symbol,
		e.trades,
		e.equity,
		e.cfg.InitialCapital,
		e.cfg.StartDate,
		e.cfg.EndDate,
		e.cfg.Strategy.Params(),
	)
	res.CreatedAt = time.Now().UTC()
	return res
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"paperback/internal/domain"
	"paperback/internal/util"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

var testHours = domain.MarketHours{
	PreMarketStart: "04:00",
	MarketOpen:     "09:30",
	MarketClose:    "16:00",
	AfterHoursEnd:  "20:00",
}

// bar builds an in-session bar on the given day at hour:min with the given
// close.
func bar(day, hour, min int, close float64) domain.Bar {
	return domain.Bar{
		Symbol:    "TEST",
		Timestamp: time.Date(2024, 3, day, hour, min, 0, 0, time.UTC),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1000,
	}
}

// sessionBars builds one bar per hour starting at 10:00 on day 1.
func sessionBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, bar(1, 10+i, 0, c))
	}
	return bars
}

// scriptedStrategy returns a pre-programmed signal per OnBar call and records
// every callback it receives.
type scriptedStrategy struct {
	signals     []domain.Signal
	sessionEnd  []domain.Signal
	size        float64
	history     int
	onBarErrAt  int // call index that fails, -1 for never
	onBarCalls  int
	fills       []*domain.Order
	initialized float64
}

func newScripted(signals ...domain.Signal) *scriptedStrategy {
	return &scriptedStrategy{signals: signals, size: 1, onBarErrAt: -1}
}

func (s *scriptedStrategy) Name() string               { return "scripted" }
func (s *scriptedStrategy) RequiredHistory() int       { return s.history }
func (s *scriptedStrategy) Params() map[string]float64 { return map[string]float64{} }

func (s *scriptedStrategy) Initialize(_ context.Context, capital float64) error {
	s.initialized = capital
	return nil
}

func (s *scriptedStrategy) OnBar(_ context.Context, _ *domain.StrategyContext, _ *domain.StrategyState) (domain.Signal, error) {
	i := s.onBarCalls
	s.onBarCalls++
	if i == s.onBarErrAt {
		return domain.Signal{}, fmt.Errorf("scripted failure at bar call %d", i)
	}
	if i < len(s.signals) {
		return s.signals[i], nil
	}
	return domain.Signal{Type: domain.SignalHold, Reason: "script exhausted"}, nil
}

func (s *scriptedStrategy) CalculatePositionSize(_ domain.Signal, _ *domain.StrategyContext) float64 {
	return s.size
}

func (s *scriptedStrategy) OnOrderFilled(_ context.Context, order *domain.Order, _ *domain.StrategyState) error {
	s.fills = append(s.fills, order)
	return nil
}

func (s *scriptedStrategy) OnSessionEnd(_ context.Context, _ *domain.StrategyState) ([]domain.Signal, error) {
	return s.sessionEnd, nil
}

func buy(qty float64) domain.Signal {
	return domain.Signal{Type: domain.SignalBuy, Reason: "test buy", Quantity: qty}
}

func hold() domain.Signal {
	return domain.Signal{Type: domain.SignalHold, Reason: "test hold"}
}

func testConfig(strat *scriptedStrategy, bars []domain.Bar) Config {
	return Config{
		Symbol:         "TEST",
		InitialCapital: 10000,
		Hours:          testHours,
		CloseAllOnSell: true,
		Strategy:       strat,
		Bars:           bars,
	}
}

func newTestEngine() *Engine {
	return New(util.NewSilentLogger())
}

// ---------------------------------------------------------------------------
// Configuration errors
// ---------------------------------------------------------------------------

func TestRunConfigurationErrors(t *testing.T) {
	bars := sessionBars(100)
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "nil strategy",
			cfg:  Config{InitialCapital: 1000, Bars: bars},
			want: ErrNoStrategy,
		},
		{
			name: "empty bars",
			cfg:  Config{InitialCapital: 1000, Strategy: newScripted()},
			want: ErrNoBars,
		},
		{
			name: "zero capital",
			cfg:  Config{Strategy: newScripted(), Bars: bars},
			want: ErrInvalidCapital,
		},
		{
			name: "negative capital",
			cfg:  Config{InitialCapital: -5, Strategy: newScripted(), Bars: bars},
			want: ErrInvalidCapital,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestEngine().Run(context.Background(), tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run error = %v, want %v", err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Core execution semantics
// ---------------------------------------------------------------------------

func TestHoldOnlyRunLeavesCapitalUntouched(t *testing.T) {
	strat := newScripted() // script exhausted from the start: HOLD every bar
	e := newTestEngine()

	res, err := e.Run(context.Background(), testConfig(strat, sessionBars(100, 101, 99, 102)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 0 {
		t.Errorf("got %d trades, want 0", len(res.Trades))
	}
	if e.cash != 10000 {
		t.Errorf("final cash = %v, want 10000", e.cash)
	}
	if strat.initialized != 10000 {
		t.Errorf("Initialize got capital %v, want 10000", strat.initialized)
	}
	if len(res.EquityCurve) != 4 {
		t.Fatalf("equity curve has %d points, want 4", len(res.EquityCurve))
	}
	for i, p := range res.EquityCurve {
		if p.Value != 10000 {
			t.Errorf("equity[%d] = %v, want 10000", i, p.Value)
		}
	}
}

func TestBuyThenClosePNL(t *testing.T) {
	bars := sessionBars(100, 105)
	strat := newScripted(
		domain.Signal{Type: domain.SignalBuy, Reason: "entry", Quantity: 10, Price: bars[0].Close},
		domain.Signal{Type: domain.SignalClose, Reason: "exit"},
	)

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Commission = 1
	cfg.Slippage = 0

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}
	if res.Trades[0].Type != domain.TradeBuy || res.Trades[0].PNL != nil {
		t.Errorf("first trade should be a BUY without pnl, got %+v", res.Trades[0])
	}
	sell := res.Trades[1]
	if sell.Type != domain.TradeSell || sell.PNL == nil {
		t.Fatalf("second trade should be a SELL with pnl, got %+v", sell)
	}

	wantPNL := (bars[1].Close-bars[0].Close)*10 - 2 // both legs charged
	if math.Abs(*sell.PNL-wantPNL) > 1e-9 {
		t.Errorf("pnl = %v, want %v", *sell.PNL, wantPNL)
	}

	// Closed-book reconciliation: flat at run end, so the cash delta equals
	// the summed pnl of closing trades.
	if got := e.cash - cfg.InitialCapital; math.Abs(got-wantPNL) > 1e-9 {
		t.Errorf("cash delta = %v, want %v", got, wantPNL)
	}

	if len(strat.fills) != 1 {
		t.Fatalf("OnOrderFilled called %d times, want 1", len(strat.fills))
	}
	fill := strat.fills[0]
	if fill.Status != domain.OrderStatusFilled || fill.FilledQty != 10 {
		t.Errorf("unexpected fill order: %+v", fill)
	}
}

func TestSlippageAppliedToBothLegs(t *testing.T) {
	bars := sessionBars(100, 100)
	strat := newScripted(buy(10), domain.Signal{Type: domain.SignalClose, Reason: "exit"})

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Slippage = 0.01

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(res.Trades))
	}

	if got := res.Trades[0].Price; math.Abs(got-101) > 1e-9 {
		t.Errorf("buy fill price = %v, want 101", got)
	}
	if got := res.Trades[1].Price; math.Abs(got-99) > 1e-9 {
		t.Errorf("sell fill price = %v, want 99", got)
	}
	// Entry at 101, exit at 99, qty 10, no commission.
	if got := *res.Trades[1].PNL; math.Abs(got-(-20)) > 1e-9 {
		t.Errorf("pnl = %v, want -20", got)
	}
}

func TestInsufficientFundsRejectedSilently(t *testing.T) {
	bars := sessionBars(1000)
	strat := newScripted(buy(100)) // cost 100000 > capital

	e := newTestEngine()
	cfg := testConfig(strat, bars)

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("got %d trades, want 0: rejection must leave no ledger entry", len(res.Trades))
	}
	if e.cash != cfg.InitialCapital {
		t.Errorf("cash = %v, want unchanged %v", e.cash, cfg.InitialCapital)
	}
}

func TestSellClosesAllOpenLots(t *testing.T) {
	bars := sessionBars(100, 110, 120)
	strat := newScripted(
		buy(5),
		buy(5),
		domain.Signal{Type: domain.SignalSell, Reason: "exit all"},
	)

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var buys, sells int
	for _, tr := range res.Trades {
		switch tr.Type {
		case domain.TradeBuy:
			buys++
		case domain.TradeSell:
			sells++
			if tr.PNL == nil {
				t.Errorf("SELL record missing pnl: %+v", tr)
			}
			if tr.Reason != "exit all" {
				t.Errorf("SELL reason = %q, want %q", tr.Reason, "exit all")
			}
		}
	}
	if buys != 2 || sells != 2 {
		t.Errorf("got %d buys / %d sells, want 2 / 2", buys, sells)
	}
	if len(e.positions) != 0 {
		t.Errorf("%d positions still open after SELL", len(e.positions))
	}
}

func TestSellIgnoredWhenCloseAllDisabled(t *testing.T) {
	bars := sessionBars(100, 110)
	strat := newScripted(
		buy(5),
		domain.Signal{Type: domain.SignalSell, Reason: "exit"},
	)

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.CloseAllOnSell = false

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].Type != domain.TradeBuy {
		t.Fatalf("expected only the BUY in the ledger, got %+v", res.Trades)
	}
	if len(e.positions) != 1 {
		t.Errorf("%d positions open, want 1 (SELL must be a no-op)", len(e.positions))
	}
}

func TestBuyDefersToCalculatePositionSize(t *testing.T) {
	bars := sessionBars(50)
	strat := newScripted(domain.Signal{Type: domain.SignalBuy, Reason: "entry"}) // no quantity
	strat.size = 7

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(res.Trades))
	}
	if res.Trades[0].Quantity != 7 {
		t.Errorf("fill quantity = %v, want 7 from CalculatePositionSize", res.Trades[0].Quantity)
	}
}

// ---------------------------------------------------------------------------
// Session boundaries
// ---------------------------------------------------------------------------

func TestSessionEndForcesFlatAtDayBoundary(t *testing.T) {
	bars := []domain.Bar{
		bar(1, 10, 0, 100),
		bar(1, 11, 0, 104),
		bar(2, 10, 0, 108),
		bar(2, 11, 0, 112),
	}
	strat := newScripted(buy(2)) // buy on day 1, then hold
	strat.sessionEnd = []domain.Signal{{Type: domain.SignalClose, Reason: "end of session"}}

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want buy + forced close", len(res.Trades))
	}
	closeTrade := res.Trades[1]
	if !closeTrade.Timestamp.Equal(bars[1].Timestamp) {
		t.Errorf("forced close at %v, want day 1's final bar %v: position must not carry into day 2",
			closeTrade.Timestamp, bars[1].Timestamp)
	}
	if closeTrade.Reason != "end of session" {
		t.Errorf("close reason = %q, want %q", closeTrade.Reason, "end of session")
	}
	if len(e.positions) != 0 {
		t.Errorf("%d positions open at run end, want 0", len(e.positions))
	}
}

// ---------------------------------------------------------------------------
// Invariants
// ---------------------------------------------------------------------------

func TestCashNeverNegativeAndClosedBookReconciles(t *testing.T) {
	bars := sessionBars(100, 90, 95, 80, 85, 110)
	strat := newScripted(
		buy(20),
		hold(),
		domain.Signal{Type: domain.SignalClose, Reason: "exit 1"},
		buy(30),
		hold(),
		domain.Signal{Type: domain.SignalClose, Reason: "exit 2"},
	)

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Commission = 2.5
	cfg.Slippage = 0.002
	cfg.Hooks.OnProgress = func(_, _ int) {
		if e.cash < 0 {
			t.Fatalf("cash went negative: %v", e.cash)
		}
	}

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var sumPNL float64
	for _, tr := range res.Trades {
		if tr.PNL != nil {
			sumPNL += *tr.PNL
		}
	}
	if got := e.cash - cfg.InitialCapital; math.Abs(got-sumPNL) > 1e-9 {
		t.Errorf("closed-book reconciliation failed: cash delta %v != summed pnl %v", got, sumPNL)
	}
}

func TestMaxDrawdownMonotonic(t *testing.T) {
	bars := sessionBars(100, 80, 120, 60, 130, 50)
	strat := newScripted(buy(50))

	e := newTestEngine()
	cfg := testConfig(strat, bars)

	var samples []float64
	cfg.Hooks.OnProgress = func(_, _ int) {
		samples = append(samples, e.maxDrawdown)
	}

	if _, err := e.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			t.Fatalf("maxDrawdown decreased at bar %d: %v -> %v", i, samples[i-1], samples[i])
		}
	}
}

func TestDrawdownAgreesWhenEquityDipsBelowInitialCapital(t *testing.T) {
	// A commission-bearing buy on the first bar pulls equity under the
	// initial capital before any new peak exists. Both drawdown computations
	// must count that dip.
	bars := sessionBars(100, 100, 100)
	strat := newScripted(buy(10))

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Commission = 10

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if e.MaxDrawdown() == 0 {
		t.Fatal("dip below initial capital must register as drawdown")
	}
	if math.Abs(res.Performance.MaxDrawdown-e.MaxDrawdown()) > 1e-12 {
		t.Errorf("analyzer drawdown %v != engine drawdown %v",
			res.Performance.MaxDrawdown, e.MaxDrawdown())
	}
	// Equity after the fill: 10000 - (1000 + 10) + 10*100 = 9990.
	if want := 10.0 / 10000; math.Abs(e.MaxDrawdown()-want) > 1e-12 {
		t.Errorf("engine drawdown = %v, want %v", e.MaxDrawdown(), want)
	}
}

func TestEngineAndAnalyzerDrawdownAgree(t *testing.T) {
	bars := sessionBars(100, 85, 95, 70, 105, 90)
	strat := newScripted(buy(60))

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if math.Abs(res.Performance.MaxDrawdown-e.MaxDrawdown()) > 1e-12 {
		t.Errorf("analyzer drawdown %v != engine drawdown %v",
			res.Performance.MaxDrawdown, e.MaxDrawdown())
	}
	if e.MaxDrawdown() == 0 {
		t.Error("fixture should produce a nonzero drawdown")
	}
}

// ---------------------------------------------------------------------------
// Market-hours gating
// ---------------------------------------------------------------------------

func TestOutOfSessionBarsSkipStrategy(t *testing.T) {
	bars := []domain.Bar{
		bar(1, 8, 0, 100),  // pre-market
		bar(1, 10, 0, 101), // in session
		bar(1, 18, 0, 102), // after hours
	}
	strat := newScripted()

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if strat.onBarCalls != 1 {
		t.Errorf("OnBar called %d times, want 1 (only the in-session bar)", strat.onBarCalls)
	}
	// Out-of-session bars are still marked and sampled.
	if len(res.EquityCurve) != 3 {
		t.Errorf("equity curve has %d points, want 3", len(res.EquityCurve))
	}
}

func TestExtendedHoursAllowsAllBars(t *testing.T) {
	bars := []domain.Bar{
		bar(1, 8, 0, 100),
		bar(1, 10, 0, 101),
		bar(1, 18, 0, 102),
	}
	strat := newScripted()

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.AllowExtendedHours = true

	if _, err := e.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strat.onBarCalls != 3 {
		t.Errorf("OnBar called %d times, want 3", strat.onBarCalls)
	}
}

// ---------------------------------------------------------------------------
// Signal validation
// ---------------------------------------------------------------------------

func TestInvalidSignalsDroppedSilently(t *testing.T) {
	bars := sessionBars(100, 100, 100, 100)
	strat := newScripted(
		domain.Signal{Type: domain.SignalBuy},                                          // missing reason
		domain.Signal{Type: "SHORT", Reason: "nope"},                                   // unknown type
		domain.Signal{Type: domain.SignalBuy, Reason: "bad", Price: math.NaN()},        // NaN price
		domain.Signal{Type: domain.SignalBuy, Reason: "bad", Price: math.Inf(1)},       // Inf price
	)

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("invalid signals produced %d trades, want 0", len(res.Trades))
	}
}

func TestValidateSignal(t *testing.T) {
	tests := []struct {
		name    string
		sig     domain.Signal
		wantErr bool
	}{
		{"valid hold", domain.Signal{Type: domain.SignalHold, Reason: "r"}, false},
		{"valid buy with price", domain.Signal{Type: domain.SignalBuy, Reason: "r", Price: 10}, false},
		{"missing reason", domain.Signal{Type: domain.SignalBuy}, true},
		{"unknown type", domain.Signal{Type: "FOO", Reason: "r"}, true},
		{"negative price", domain.Signal{Type: domain.SignalBuy, Reason: "r", Price: -1}, true},
		{"nan price", domain.Signal{Type: domain.SignalBuy, Reason: "r", Price: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSignal(tt.sig)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSignal(%+v) error = %v, wantErr %v", tt.sig, err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Failure semantics and cancellation
// ---------------------------------------------------------------------------

func TestValidateTradesAbortsOnBarError(t *testing.T) {
	bars := sessionBars(100, 100, 100)
	strat := newScripted()
	strat.onBarErrAt = 1

	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.ValidateTrades = true

	_, err := e.Run(context.Background(), cfg)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run error = %v, want *ExecutionError", err)
	}
	if execErr.BarIndex != 1 {
		t.Errorf("ExecutionError.BarIndex = %d, want 1", execErr.BarIndex)
	}
}

func TestBestEffortModeContinuesPastBarError(t *testing.T) {
	bars := sessionBars(100, 100, 100)
	strat := newScripted()
	strat.onBarErrAt = 1

	e := newTestEngine()
	cfg := testConfig(strat, bars) // ValidateTrades false

	res, err := e.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strat.onBarCalls != 3 {
		t.Errorf("OnBar called %d times, want all 3 bars in best-effort mode", strat.onBarCalls)
	}
	if len(res.EquityCurve) != 3 {
		t.Errorf("equity curve has %d points, want 3", len(res.EquityCurve))
	}
}

func TestSessionEndRunsDespiteBarError(t *testing.T) {
	// OnBar fails on day 1's last bar in best-effort mode; the bar must still
	// contribute an equity point and the day-boundary close must still fire.
	bars := []domain.Bar{
		bar(1, 10, 0, 100),
		bar(1, 11, 0, 104),
		bar(2, 10, 0, 108),
	}
	strat := newScripted(buy(2))
	strat.onBarErrAt = 1
	strat.sessionEnd = []domain.Signal{{Type: domain.SignalClose, Reason: "end of session"}}

	e := newTestEngine()
	res, err := e.Run(context.Background(), testConfig(strat, bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.EquityCurve) != 3 {
		t.Errorf("equity curve has %d points, want one per bar", len(res.EquityCurve))
	}
	if len(res.Trades) != 2 {
		t.Fatalf("got %d trades, want buy + forced close", len(res.Trades))
	}
	if !res.Trades[1].Timestamp.Equal(bars[1].Timestamp) {
		t.Errorf("forced close at %v, want day 1's final bar %v",
			res.Trades[1].Timestamp, bars[1].Timestamp)
	}
}

func TestCancellationReturnsPartialResult(t *testing.T) {
	bars := sessionBars(100, 101, 102, 103, 104)
	strat := newScripted(buy(10))

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Hooks.OnProgress = func(completed, _ int) {
		if completed == 2 {
			cancel()
		}
	}

	res, err := e.Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("cancelled run must still return the partial result")
	}
	if len(res.EquityCurve) != 2 {
		t.Errorf("partial equity curve has %d points, want 2", len(res.EquityCurve))
	}
	if len(res.Trades) != 1 {
		t.Errorf("partial ledger has %d trades, want 1", len(res.Trades))
	}
}

// ---------------------------------------------------------------------------
// Observation hooks
// ---------------------------------------------------------------------------

func TestHooksFireSynchronously(t *testing.T) {
	bars := sessionBars(100, 105)
	strat := newScripted(buy(1), domain.Signal{Type: domain.SignalClose, Reason: "exit"})

	var progress, trades, signals int
	e := newTestEngine()
	cfg := testConfig(strat, bars)
	cfg.Hooks = Hooks{
		OnProgress: func(_, _ int) { progress++ },
		OnTrade:    func(_ domain.TradeRecord) { trades++ },
		OnSignal:   func(_ domain.Signal) { signals++ },
	}

	if _, err := e.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if progress != 2 {
		t.Errorf("OnProgress fired %d times, want 2", progress)
	}
	if trades != 2 {
		t.Errorf("OnTrade fired %d times, want 2", trades)
	}
	if signals != 2 {
		t.Errorf("OnSignal fired %d times, want 2", signals)
	}
}

// ---------------------------------------------------------------------------
// Strategy context construction
// ---------------------------------------------------------------------------

func TestStrategyContextContents(t *testing.T) {
	bars := sessionBars(100, 101, 102, 103)

	var got []*domain.StrategyContext
	strat := &contextRecorder{history: 2, got: &got}

	e := newTestEngine()
	cfg := Config{
		Symbol:          "TEST",
		InitialCapital:  10000,
		MaxPositionSize: 2500,
		Hours:           testHours,
		CloseAllOnSell:  true,
		Strategy:        strat,
		Bars:            bars,
	}
	if _, err := e.Run(context.Background(), cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("recorded %d contexts, want 4", len(got))
	}
	// Lookback window is shorter than RequiredHistory at the series start.
	if len(got[0].History) != 0 || len(got[1].History) != 1 || len(got[3].History) != 2 {
		t.Errorf("history lengths = %d,%d,%d,%d, want 0,1,2,2",
			len(got[0].History), len(got[1].History), len(got[2].History), len(got[3].History))
	}
	first := got[0]
	if !first.IsMarketOpen || first.IsPreMarket || first.IsAfterHours {
		t.Errorf("hours flags = open=%v pre=%v after=%v, want open only",
			first.IsMarketOpen, first.IsPreMarket, first.IsAfterHours)
	}
	if first.TimeToClose != 6*60 {
		t.Errorf("TimeToClose = %d, want %d", first.TimeToClose, 6*60)
	}
	if first.Risk.MaxPositionSize != 2500 {
		t.Errorf("Risk.MaxPositionSize = %v, want 2500", first.Risk.MaxPositionSize)
	}
	if math.Abs(first.Risk.MaxDailyLoss-500) > 1e-9 { // 5% of 10000
		t.Errorf("Risk.MaxDailyLoss = %v, want 500", first.Risk.MaxDailyLoss)
	}
	if math.Abs(first.Risk.MaxDrawdown-2000) > 1e-9 { // 20% of initial capital
		t.Errorf("Risk.MaxDrawdown = %v, want 2000", first.Risk.MaxDrawdown)
	}
}

// contextRecorder captures the StrategyContext of every OnBar call.
type contextRecorder struct {
	history int
	got     *[]*domain.StrategyContext
}

func (c *contextRecorder) Name() string               { return "recorder" }
func (c *contextRecorder) RequiredHistory() int       { return c.history }
func (c *contextRecorder) Params() map[string]float64 { return map[string]float64{} }

func (c *contextRecorder) Initialize(_ context.Context, _ float64) error { return nil }

func (c *contextRecorder) OnBar(_ context.Context, bctx *domain.StrategyContext, _ *domain.StrategyState) (domain.Signal, error) {
	*c.got = append(*c.got, bctx)
	return domain.Signal{Type: domain.SignalHold, Reason: "recording"}, nil
}

func (c *contextRecorder) CalculatePositionSize(_ domain.Signal, _ *domain.StrategyContext) float64 {
	return 0
}

func (c *contextRecorder) OnOrderFilled(_ context.Context, _ *domain.Order, _ *domain.StrategyState) error {
	return nil
}

func (c *contextRecorder) OnSessionEnd(_ context.Context, _ *domain.StrategyState) ([]domain.Signal, error) {
	return nil, nil
}

// Package domain defines the core data types shared across the paperback
// backtesting engine: bars, signals, orders, positions, trade records, and
// run results.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV sample for a fixed time interval. Bars are immutable
// once produced; feeding them to the engine in strictly increasing timestamp
// order is a caller-enforced precondition (no sorting is performed).
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// MarketHours holds the session boundaries as zero-padded "HH:MM" strings in
// the exchange's local session time. Bar timestamps are assumed to already be
// in that local time; no timezone conversion is performed.
type MarketHours struct {
	PreMarketStart string `yaml:"pre_market_start"`
	MarketOpen     string `yaml:"market_open"`
	MarketClose    string `yaml:"market_close"`
	AfterHoursEnd  string `yaml:"after_hours_end"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalType enumerates the actions a strategy may request.
type SignalType string

const (
	SignalBuy   SignalType = "BUY"
	SignalSell  SignalType = "SELL"
	SignalClose SignalType = "CLOSE"
	SignalHold  SignalType = "HOLD"
)

// Signal is a strategy's decision for one bar. Quantity and Price are
// optional: a zero Quantity defers sizing to the strategy's
// CalculatePositionSize, and a zero Price means "fill at the bar close".
type Signal struct {
	Type     SignalType
	Reason   string
	Quantity float64
	Price    float64
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order. The engine only ever fills
// market orders; limit/stop matching is an unimplemented extension point.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order describes a simulated order. The engine synthesizes an already-filled
// Order when notifying a strategy that its BUY executed.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	Qty            float64
	FilledQty      float64
	FilledAvgPrice float64
	CreatedAt      time.Time
	FilledAt       time.Time
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// PositionSide is the direction of an open position. The engine is long-only.
type PositionSide string

const PositionLong PositionSide = "long"

// Position is one open lot. Every BUY fill creates a new Position; the engine
// does not net multiple same-symbol lots. A Position is removed from the open
// list when it is closed.
type Position struct {
	Symbol       string
	Quantity     float64
	EntryPrice   float64
	EntryTime    time.Time
	CurrentPrice float64
	UnrealizedPL float64
	Side         PositionSide
}

// TradeType is the direction recorded on a ledger entry.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// TradeRecord is one immutable entry in the append-ordered trade ledger.
// PNL is set only on closing (SELL) trades; BUY records never carry it.
// Slippage is the total fill-price cost of slippage for the record, in
// currency units.
type TradeRecord struct {
	ID         string
	Symbol     string
	Type       TradeType
	Quantity   float64
	Price      float64
	Timestamp  time.Time
	Commission float64
	Slippage   float64
	Reason     string
	PNL        *float64
}

// EquityPoint is one sample of the portfolio value time series.
type EquityPoint struct {
	Timestamp time.Time
	Value     float64
}

// ---------------------------------------------------------------------------
// Strategy state and context
// ---------------------------------------------------------------------------

// PerformanceState is the running tally the engine maintains on the shared
// strategy state as trades close.
type PerformanceState struct {
	TotalTrades     int
	WinningTrades   int
	CurrentDrawdown float64
	MaxDrawdown     float64
}

// StrategyState lives for the whole run and is mutated by both the engine and
// the strategy. SessionData and Indicators are strategy scratch space;
// CurrentPosition is a back-reference to the most recently opened lot, not
// ownership. PendingOrders is reserved for future limit/stop support and is
// never populated by the current engine.
type StrategyState struct {
	PendingOrders   []Order
	SessionData     map[string]any
	Indicators      map[string]float64
	CurrentPosition *Position
	Performance     PerformanceState
}

// NewStrategyState returns a StrategyState with initialized scratch maps.
func NewStrategyState() *StrategyState {
	return &StrategyState{
		SessionData: make(map[string]any),
		Indicators:  make(map[string]float64),
	}
}

// PortfolioSnapshot is the read-only view of the portfolio handed to a
// strategy on each bar.
type PortfolioSnapshot struct {
	Cash       float64
	Positions  []Position
	TotalValue float64
}

// RiskLimits carries advisory limits for the strategy to read. The engine
// does not enforce MaxDailyLoss or MaxDrawdown itself.
type RiskLimits struct {
	MaxPositionSize float64 // max notional per position, from config
	MaxDailyLoss    float64 // 5% of current portfolio value
	MaxDrawdown     float64 // 20% of initial capital
}

// StrategyContext is everything a strategy may inspect when deciding on a
// bar: the bar itself, a lookback window of up to RequiredHistory preceding
// bars (shorter at the start of the series), market-hours flags, minutes to
// the next close, a portfolio snapshot, and advisory risk limits.
type StrategyContext struct {
	Bar          Bar
	History      []Bar
	IsMarketOpen bool
	IsPreMarket  bool
	IsAfterHours bool
	TimeToClose  int // minutes, floor-rounded, clamped to >= 0
	Portfolio    PortfolioSnapshot
	Risk         RiskLimits
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// PerformanceMetrics summarizes a completed run.
type PerformanceMetrics struct {
	TotalPL          float64
	TotalReturn      float64 // percent of initial capital
	AnnualizedReturn float64 // percent, 252-trading-day convention
	HitRate          float64 // percent of closing trades with positive pnl
	ProfitFactor     float64 // gross wins / |gross losses|; 0 when no losers
	MaxDrawdown      float64 // peak-to-trough fraction of the equity curve
	SharpeRatio      float64 // per-bar returns annualized by sqrt(252)
	TotalTrades      int     // closing trades
	WinningTrades    int
	LosingTrades     int
	AvgWin           float64
	AvgLoss          float64
	LargestWin       float64
	LargestLoss      float64
	TotalCommission  float64
	TotalSlippage    float64
}

// BacktestResult is the full output of one run: the ledger, the equity curve,
// summary metrics, and the echoed strategy parameters.
type BacktestResult struct {
	ID             string
	Strategy       string
	Symbol         string
	StartDate      string
	EndDate        string
	InitialCapital float64
	FinalValue     float64
	Trades         []TradeRecord
	EquityCurve    []EquityPoint
	Performance    PerformanceMetrics
	Params         map[string]float64
	CreatedAt      time.Time
}

// RunSummary is a condensed view of a persisted run, used for listings.
type RunSummary struct {
	ID          string
	Strategy    string
	Symbol      string
	TotalPL     float64
	TotalTrades int
	SharpeRatio float64
	MaxDrawdown float64
	CreatedAt   time.Time
}

// Float64 returns a pointer to v. Convenience for optional TradeRecord.PNL.
func Float64(v float64) *float64 { return &v }

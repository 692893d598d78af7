// Package store defines storage interfaces for bar data and backtest
// results, with Parquet, SQLite, and CSV implementations.
package store

import (
	"context"
	"time"

	"paperback/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in storage.
	ListSymbols(ctx context.Context) ([]string, error)
}

// ResultStore is the narrow persistence sink for completed backtest runs.
type ResultStore interface {
	// StoreResult persists a run's summary, metrics, and full trade ledger.
	StoreResult(ctx context.Context, res *domain.BacktestResult) error

	// ListRuns returns the most recent persisted runs, newest first, up to
	// limit.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"paperback/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

// SQLiteStore implements ResultStore backed by a SQLite database. Each
// persisted run stores its summary metrics plus the full trade ledger.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id              TEXT PRIMARY KEY,
	strategy        TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	start_date      TEXT,
	end_date        TEXT,
	initial_capital REAL NOT NULL,
	final_value     REAL NOT NULL,
	total_pl        REAL NOT NULL,
	hit_rate        REAL NOT NULL,
	profit_factor   REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	sharpe_ratio    REAL NOT NULL,
	total_trades    INTEGER NOT NULL,
	params_json     TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_records (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES backtest_runs(id),
	symbol     TEXT NOT NULL,
	type       TEXT NOT NULL,
	quantity   REAL NOT NULL,
	price      REAL NOT NULL,
	timestamp  TEXT NOT NULL,
	commission REAL NOT NULL,
	slippage   REAL NOT NULL,
	reason     TEXT,
	pnl        REAL
);

CREATE INDEX IF NOT EXISTS idx_trade_records_run ON trade_records(run_id);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StoreResult persists the run summary and its trade ledger in a single
// transaction.
func (s *SQLiteStore) StoreResult(ctx context.Context, res *domain.BacktestResult) error {
	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, strategy, symbol, start_date, end_date,
			initial_capital, final_value, total_pl, hit_rate,
			profit_factor, max_drawdown, sharpe_ratio, total_trades,
			params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Strategy, res.Symbol, res.StartDate, res.EndDate,
		res.InitialCapital, res.FinalValue, res.Performance.TotalPL, res.Performance.HitRate,
		res.Performance.ProfitFactor, res.Performance.MaxDrawdown, res.Performance.SharpeRatio,
		res.Performance.TotalTrades, string(paramsJSON), res.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", res.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trade_records (
			id, run_id, symbol, type, quantity, price, timestamp,
			commission, slippage, reason, pnl
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tr := range res.Trades {
		var pnl sql.NullFloat64
		if tr.PNL != nil {
			pnl = sql.NullFloat64{Float64: *tr.PNL, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			tr.ID, res.ID, tr.Symbol, string(tr.Type), tr.Quantity, tr.Price,
			tr.Timestamp.UTC().Format(time.RFC3339Nano),
			tr.Commission, tr.Slippage, tr.Reason, pnl,
		); err != nil {
			return fmt.Errorf("inserting trade %s: %w", tr.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent persisted runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, symbol, total_pl, total_trades,
		       sharpe_ratio, max_drawdown, created_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var r domain.RunSummary
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.TotalPL, &r.TotalTrades,
			&r.SharpeRatio, &r.MaxDrawdown, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

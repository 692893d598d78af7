// Command paperback-backtest runs one backtest described by a YAML config:
// it loads bars from the Parquet store (or a CSV fixture), replays them
// through the configured strategy, persists the result to SQLite, and prints
// a summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"paperback/internal/config"
	"paperback/internal/domain"
	"paperback/internal/engine"
	"paperback/internal/store"
	"paperback/internal/strategy/builtins"
	"paperback/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	csvPath := flag.String("csv", "", "load bars from a CSV file instead of the Parquet store")
	listRuns := flag.Int("list", 0, "list the N most recent persisted runs and exit")
	flag.Parse()

	if err := run(*configPath, *csvPath, *listRuns); err != nil {
		fmt.Fprintf(os.Stderr, "paperback-backtest: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, csvPath string, listRuns int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening result store: %w", err)
	}
	defer results.Close()

	if listRuns > 0 {
		return printRuns(ctx, results, listRuns)
	}

	bars, err := loadBars(ctx, cfg, csvPath)
	if err != nil {
		return err
	}
	logger.Info("loaded bars", "symbol", cfg.Backtest.Symbol, "count", len(bars))

	reg := builtins.NewRegistry(cfg.Backtest.Strategy.Params)
	strat, ok := reg.Get(cfg.Backtest.Strategy.Name)
	if !ok {
		return fmt.Errorf("unknown strategy %q (available: %v)", cfg.Backtest.Strategy.Name, reg.List())
	}

	eng := engine.New(logger)
	res, err := eng.Run(ctx, engine.Config{
		Symbol:             cfg.Backtest.Symbol,
		InitialCapital:     cfg.Backtest.InitialCapital,
		Commission:         cfg.Backtest.Commission,
		Slippage:           cfg.Backtest.Slippage,
		MaxPositionSize:    cfg.Backtest.MaxPositionSize,
		Hours:              cfg.Backtest.MarketHours,
		AllowExtendedHours: cfg.Backtest.AllowExtendedHours,
		StartDate:          cfg.Backtest.StartDate,
		EndDate:            cfg.Backtest.EndDate,
		CloseAllOnSell:     cfg.Backtest.CloseAllOnSell,
		ValidateTrades:     cfg.Backtest.ValidateTrades,
		Strategy:           strat,
		Bars:               bars,
	})
	if err != nil {
		return fmt.Errorf("running backtest: %w", err)
	}

	if err := results.StoreResult(ctx, res); err != nil {
		return fmt.Errorf("persisting result: %w", err)
	}

	printSummary(res)
	return nil
}

// loadBars reads the run's bar series from a CSV fixture or the Parquet
// store, bounded by the configured date range.
func loadBars(ctx context.Context, cfg *config.Config, csvPath string) ([]domain.Bar, error) {
	if csvPath != "" {
		bars, err := store.ReadBarsCSV(csvPath)
		if err != nil {
			return nil, fmt.Errorf("loading bars from %s: %w", csvPath, err)
		}
		return bars, nil
	}

	start := time.Unix(0, 0).UTC()
	end := time.Now().UTC()
	if cfg.Backtest.StartDate != "" {
		t, err := time.Parse("2006-01-02", cfg.Backtest.StartDate)
		if err != nil {
			return nil, fmt.Errorf("parsing start date: %w", err)
		}
		start = t
	}
	if cfg.Backtest.EndDate != "" {
		t, err := time.Parse("2006-01-02", cfg.Backtest.EndDate)
		if err != nil {
			return nil, fmt.Errorf("parsing end date: %w", err)
		}
		end = t.AddDate(0, 0, 1) // inclusive end date
	}

	parquet := store.NewParquetStore(cfg.Storage.DataDir)
	bars, err := parquet.ReadBars(ctx, cfg.Backtest.Symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("reading bars: %w", err)
	}
	return bars, nil
}

func printSummary(res *domain.BacktestResult) {
	p := res.Performance
	fmt.Printf("Run %s: %s on %s\n", res.ID, res.Strategy, res.Symbol)
	fmt.Printf("  Final value:       %12.2f (started %.2f)\n", res.FinalValue, res.InitialCapital)
	fmt.Printf("  Total P/L:         %12.2f\n", p.TotalPL)
	fmt.Printf("  Total return:      %11.2f%%\n", p.TotalReturn)
	fmt.Printf("  Annualized return: %11.2f%%\n", p.AnnualizedReturn)
	fmt.Printf("  Trades (closed):   %12d\n", p.TotalTrades)
	fmt.Printf("  Hit rate:          %11.2f%%\n", p.HitRate)
	fmt.Printf("  Profit factor:     %12.3f\n", p.ProfitFactor)
	fmt.Printf("  Max drawdown:      %11.2f%%\n", p.MaxDrawdown*100)
	fmt.Printf("  Sharpe ratio:      %12.3f\n", p.SharpeRatio)
	fmt.Printf("  Fees paid:         %12.2f commission, %.2f slippage\n", p.TotalCommission, p.TotalSlippage)
}

func printRuns(ctx context.Context, results *store.SQLiteStore, limit int) error {
	runs, err := results.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no persisted runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-12s %-8s trades=%-4d pl=%-10.2f sharpe=%-7.3f dd=%.2f%%  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Strategy, r.Symbol,
			r.TotalTrades, r.TotalPL, r.SharpeRatio, r.MaxDrawdown*100, r.ID)
	}
	return nil
}

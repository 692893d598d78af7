// Command paperback-gather fetches historical daily bars for the configured
// symbol list from the Alpaca market-data API and writes them to the Parquet
// store that paperback-backtest reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"paperback/internal/config"
	"paperback/internal/gather"
	"paperback/internal/store"
	"paperback/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "paperback-gather: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	g := gather.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		bars,
		cfg.Gather.Symbols,
		cfg.Gather.StartDate,
		cfg.Gather.BatchSize,
		cfg.Gather.RateLimitPerMin,
	)

	logger.Info("running gatherer", "name", g.Name())
	return g.Run(ctx)
}

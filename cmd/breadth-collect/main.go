// Collects daily price history for the configured equity universe and
// persists it to the protected per-symbol store.
//
// Usage:
//
//	go run cmd/breadth-collect/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"breadth/internal/collect"
	"breadth/internal/config"
	"breadth/internal/feed"
	"breadth/internal/store"
	"breadth/internal/universe"
	"breadth/internal/util"
)

func main() {
	cfgPath := "config/breadth.yaml"
	if p := os.Getenv("BREADTH_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := ensureDirs(cfg); err != nil {
		log.Fatalf("failed to create data directories: %v", err)
	}

	// Dual logger: stdout + dated log file.
	logFileName := filepath.Join(cfg.Storage.LogsDir,
		fmt.Sprintf("collect-%s.log", time.Now().Format("2006-01-02_150405")))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	resolver := universe.NewResolver(
		cfg.Universe.SourceURL,
		cfg.Universe.FallbackCSV,
		cfg.Universe.MinSymbols,
		time.Duration(cfg.Universe.TimeoutSecs)*time.Second,
	)

	var f feed.Feed
	switch cfg.Feed.Provider {
	case "alpaca":
		f = feed.NewAlpacaFeed(
			cfg.Feed.Alpaca.APIKey,
			cfg.Feed.Alpaca.APISecret,
			cfg.Feed.Alpaca.DataURL,
			cfg.Feed.AutoAdjust,
			cfg.Collect.HistoryDays,
		)
	case "yahoo":
		f = feed.NewYahooFeed(cfg.Feed.Interval, cfg.Feed.AutoAdjust, cfg.Collect.HistoryDays)
	default:
		log.Fatalf("unknown feed provider %q", cfg.Feed.Provider)
	}

	pstore := store.NewParquetStore(cfg.Storage.PricesDir)

	collector := collect.New(resolver, f, pstore, collect.Params{
		HistoryDays:     cfg.Collect.HistoryDays,
		BatchSize:       cfg.Collect.BatchSize,
		RequestDelay:    cfg.Collect.RequestDelay(),
		BatchDelay:      cfg.Collect.BatchDelay(),
		MinCoveragePct:  cfg.Collect.MinCoveragePct,
		MinValidSymbols: cfg.Collect.MinValidSymbols,
		MaxDataAge:      cfg.Collect.MaxDataAge(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting breadth-collect", "config", cfgPath, "logFile", logFileName, "feed", f.Name())

	stats, err := collector.Run(ctx)
	if err != nil {
		log.Fatalf("collection error: %v", err)
	}

	slog.Info("done",
		"total", stats.Total,
		"saved", stats.Saved,
		"protected", stats.Protected,
		"empty", stats.Empty,
		"failed", stats.Failed,
	)
}

// ensureDirs creates the directories the run writes to.
func ensureDirs(cfg *config.Config) error {
	for _, dir := range []string{
		cfg.Storage.DataDir,
		cfg.Storage.PricesDir,
		cfg.Storage.TickersDir,
		cfg.Storage.LogsDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Package collect drives one full collection run: universe resolution,
// per-symbol fetching, protected persistence, and coverage accounting.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breadth/internal/domain"
	"breadth/internal/feed"
	"breadth/internal/store"
	"breadth/internal/util"
)

// Resolver yields the trading universe for a run.
type Resolver interface {
	Resolve(ctx context.Context) ([]domain.Symbol, error)
}

// Params holds the orchestration constants for a run.
type Params struct {
	HistoryDays     int
	BatchSize       int
	RequestDelay    time.Duration
	BatchDelay      time.Duration
	MinCoveragePct  float64
	MinValidSymbols int
	MaxDataAge      time.Duration
}

// Collector orchestrates the whole pipeline over the universe, strictly
// sequentially: the upstream feed's throttling policy is undocumented, so
// one symbol is processed fully before the next begins.
type Collector struct {
	resolver Resolver
	feed     feed.Feed
	store    store.SeriesStore
	params   Params
	pacer    *util.Pacer
	log      *slog.Logger
}

// New creates a Collector wired to the given resolver, feed, and store.
func New(resolver Resolver, f feed.Feed, s store.SeriesStore, params Params) *Collector {
	return &Collector{
		resolver: resolver,
		feed:     f,
		store:    s,
		params:   params,
		pacer:    util.NewPacer(params.RequestDelay, params.BatchDelay, params.BatchSize),
		log:      slog.Default().With("component", "collector"),
	}
}

// Run executes one full collection pass and returns its statistics.
// Universe resolution failure is fatal; everything after that is
// per-symbol, counted, and never aborts the run.
func (c *Collector) Run(ctx context.Context) (domain.CoverageStats, error) {
	symbols, err := c.resolver.Resolve(ctx)
	if err != nil {
		return domain.CoverageStats{}, fmt.Errorf("resolving universe: %w", err)
	}

	// Calendar-day buffer over the trading-day window, so the target
	// history is still covered when the feed returns a short range.
	start := time.Now().AddDate(0, 0, -c.params.HistoryDays*3/2)

	stats := domain.CoverageStats{Total: len(symbols)}
	runStart := time.Now()

	c.log.Info("collection started",
		"feed", c.feed.Name(),
		"symbols", len(symbols),
		"start_date", start.Format("2006-01-02"),
	)

	for i, sym := range symbols {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		feedSym := sym.Feed()
		if string(sym) != feedSym {
			c.log.Info("fetching", "n", i+1, "total", len(symbols), "symbol", string(sym), "feed_symbol", feedSym)
		} else {
			c.log.Info("fetching", "n", i+1, "total", len(symbols), "symbol", string(sym))
		}

		stats.Record(c.processSymbol(ctx, feedSym, start))

		if err := c.pacer.Wait(ctx); err != nil {
			return stats, err
		}
	}

	c.report(stats, time.Since(runStart))
	c.checkStaleness(ctx)
	return stats, nil
}

// processSymbol runs fetch → save for one symbol and returns its outcome.
// All failures are folded into the outcome; nothing propagates upward.
func (c *Collector) processSymbol(ctx context.Context, feedSym string, start time.Time) domain.FetchOutcome {
	res := c.feed.FetchDaily(ctx, feedSym, start)
	switch res.Status {
	case feed.StatusEmpty:
		return domain.OutcomeEmpty
	case feed.StatusError:
		return domain.OutcomeError
	}

	outcome, err := c.store.Save(ctx, feedSym, res.Series)
	if err != nil {
		c.log.Error("save failed", "symbol", feedSym, "err", err)
	}
	return outcome
}

// report logs the run summary and warns about any coverage shortfall.
// Shortfalls are warnings, not failures: the run always completes.
func (c *Collector) report(stats domain.CoverageStats, elapsed time.Duration) {
	pct := stats.CoveragePct()

	c.log.Info("collection finished",
		"total", stats.Total,
		"saved", stats.Saved,
		"protected", stats.Protected,
		"empty", stats.Empty,
		"failed", stats.Failed,
		"coverage_pct", fmt.Sprintf("%.1f", pct),
		"elapsed", elapsed.Round(time.Second),
	)

	if stats.Effective() < c.params.MinValidSymbols {
		c.log.Warn("valid symbol count below minimum",
			"effective", stats.Effective(), "minimum", c.params.MinValidSymbols)
	}
	if pct < c.params.MinCoveragePct {
		c.log.Warn("coverage below minimum",
			"coverage_pct", fmt.Sprintf("%.1f", pct), "minimum_pct", c.params.MinCoveragePct)
	}
}

// checkStaleness warns when the newest stored bar across the whole store is
// older than the configured maximum age.
func (c *Collector) checkStaleness(ctx context.Context) {
	if c.params.MaxDataAge <= 0 {
		return
	}

	dates, err := c.store.LastDates(ctx)
	if err != nil {
		c.log.Warn("staleness check failed", "err", err)
		return
	}
	if len(dates) == 0 {
		return
	}

	var newest time.Time
	var newestSym string
	for sym, d := range dates {
		if d.After(newest) {
			newest, newestSym = d, sym
		}
	}

	if age := time.Since(newest); age > c.params.MaxDataAge {
		// The store keys by feed form; report the public spelling.
		c.log.Warn("stored data is stale",
			"newest_symbol", string(domain.FromFeed(newestSym)),
			"newest", newest.Format("2006-01-02"),
			"age_days", int(age.Hours()/24),
			"max_age_days", int(c.params.MaxDataAge.Hours()/24),
		)
	}
}

// Package feed retrieves daily price history for individual symbols from an
// upstream market-data provider and classifies the response before it
// reaches persistence.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breadth/internal/domain"
)

// Status classifies a single fetch attempt.
type Status int

const (
	// StatusOK means the response carries a usable series.
	StatusOK Status = iota
	// StatusEmpty covers both a zero-row response and one too short to be
	// trusted; downstream treats them identically.
	StatusEmpty
	// StatusError means the request or response handling failed.
	StatusError
)

// Result is the tagged outcome of one fetch.
type Result struct {
	Series domain.Series
	Status Status
	Err    error
}

// Feed fetches the daily bar history of one symbol, in feed form, starting
// at start. Implementations never retry; pacing and re-invocation on later
// runs are the caller's concern.
type Feed interface {
	Name() string
	FetchDaily(ctx context.Context, feedSymbol string, start time.Time) Result
}

// MinBars returns the minimum acceptable bar count for a target history
// window: responses shorter than 80% of the window are rejected.
func MinBars(historyDays int) int {
	return historyDays * 4 / 5
}

// classify applies the shared validation rules: errors map to StatusError,
// zero rows to StatusEmpty, and fewer than minBars rows to StatusEmpty with
// the shortfall recorded in Err for logging.
func classify(series domain.Series, minBars int, err error) Result {
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	if len(series) == 0 {
		return Result{Status: StatusEmpty}
	}
	if len(series) < minBars {
		return Result{
			Status: StatusEmpty,
			Err:    fmt.Errorf("insufficient history: %d bars (minimum %d)", len(series), minBars),
		}
	}
	return Result{Series: series, Status: StatusOK}
}

// logResult emits the per-symbol log line for a classified fetch.
func logResult(log *slog.Logger, feedSymbol string, res Result) {
	switch res.Status {
	case StatusOK:
		log.Debug("fetched", "symbol", feedSymbol, "bars", len(res.Series))
	case StatusEmpty:
		if res.Err != nil {
			log.Warn("insufficient data", "symbol", feedSymbol, "err", res.Err)
		} else {
			log.Warn("empty response", "symbol", feedSymbol)
		}
	case StatusError:
		log.Error("fetch failed", "symbol", feedSymbol, "err", res.Err)
	}
}

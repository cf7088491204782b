// Package domain defines the core value types shared across the breadth
// data pipeline: symbols, bars, price series, and per-run statistics.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// Symbol is a ticker in its public form, which may contain a dot
// (e.g. "BRK.B"). Persisted files and upstream feed queries use the feed
// form instead.
type Symbol string

// Feed returns the spelling required by the upstream price feed, with dots
// replaced by hyphens (BRK.B → BRK-B).
func (s Symbol) Feed() string {
	return strings.ReplaceAll(string(s), ".", "-")
}

// FromFeed converts a feed-form ticker back to its public form for display.
func FromFeed(feed string) Symbol {
	return Symbol(strings.ReplaceAll(feed, "-", "."))
}

// ---------------------------------------------------------------------------
// Bars and series
// ---------------------------------------------------------------------------

// Bar is one daily OHLCV record.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// Series is a date-ordered sequence of daily bars for one symbol.
type Series []Bar

// FirstDate returns the date of the earliest bar, or the zero time for an
// empty series.
func (s Series) FirstDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Date
}

// LastDate returns the date of the most recent bar, or the zero time for an
// empty series.
func (s Series) LastDate() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Date
}

// Validate checks the series ordering invariant: dates strictly increasing,
// no duplicates.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Date.After(s[i-1].Date) {
			return fmt.Errorf("series not strictly increasing at index %d: %s >= %s",
				i, s[i-1].Date.Format("2006-01-02"), s[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Run outcomes and statistics
// ---------------------------------------------------------------------------

// FetchOutcome classifies what happened to one symbol during a run. It is
// consumed by the collector's tally and never persisted.
type FetchOutcome string

const (
	OutcomeSaved     FetchOutcome = "saved"
	OutcomeProtected FetchOutcome = "protected"
	OutcomeEmpty     FetchOutcome = "empty"
	OutcomeError     FetchOutcome = "error"
)

// CoverageStats accumulates per-symbol outcomes over one collection run.
type CoverageStats struct {
	Total     int
	Saved     int
	Protected int
	Empty     int
	Failed    int
}

// Record folds one symbol's outcome into the tally.
func (c *CoverageStats) Record(o FetchOutcome) {
	switch o {
	case OutcomeSaved:
		c.Saved++
	case OutcomeProtected:
		c.Protected++
	case OutcomeEmpty:
		c.Empty++
	case OutcomeError:
		c.Failed++
	}
}

// Effective returns the number of symbols with usable persisted data: both
// freshly saved series and protected (kept) ones count.
func (c CoverageStats) Effective() int {
	return c.Saved + c.Protected
}

// CoveragePct returns the effective coverage as a percentage of the
// universe. An empty universe yields 0, not a division error.
func (c CoverageStats) CoveragePct() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Effective()) / float64(c.Total) * 100
}

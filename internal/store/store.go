// Package store owns the on-disk representation of per-symbol price series.
// Updates pass through protection rules that refuse to replace stored
// history with a worse copy, and accepted writes are atomic.
package store

import (
	"context"
	"time"

	"breadth/internal/domain"
)

// SeriesStore persists and retrieves per-symbol daily price series. Symbols
// are keyed by their feed form.
type SeriesStore interface {
	// Save decides whether series may replace the stored history for the
	// symbol and writes it atomically when accepted. It returns
	// OutcomeSaved, OutcomeProtected, or OutcomeError; the error carries
	// detail only for OutcomeError.
	Save(ctx context.Context, feedSymbol string, series domain.Series) (domain.FetchOutcome, error)

	// Load returns the stored series for the symbol. A missing file is an
	// error.
	Load(ctx context.Context, feedSymbol string) (domain.Series, error)

	// LastDates returns the most recent stored date for every symbol in the
	// store.
	LastDates(ctx context.Context) (map[string]time.Time, error)
}

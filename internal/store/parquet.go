package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"breadth/internal/domain"
)

// Compile-time interface check.
var _ SeriesStore = (*ParquetStore)(nil)

// shrinkTolerance allows minor legitimate shrinkage (corporate actions
// adjusting the retained window) while blocking gross data loss.
const shrinkTolerance = 10

// ParquetStore stores one Parquet file per symbol under PricesDir.
type ParquetStore struct {
	PricesDir string

	log *slog.Logger
}

// NewParquetStore creates a ParquetStore rooted at the given directory.
func NewParquetStore(pricesDir string) *ParquetStore {
	return &ParquetStore{
		PricesDir: pricesDir,
		log:       slog.Default().With("component", "store"),
	}
}

// BarRecord is the on-disk Parquet schema for one daily bar.
type BarRecord struct {
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
	Volume   int64   `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// SeriesStore implementation
// ---------------------------------------------------------------------------

// Save applies the protection rules against any existing series for the
// symbol and, when the update is accepted, replaces the file atomically.
func (s *ParquetStore) Save(_ context.Context, feedSymbol string, series domain.Series) (domain.FetchOutcome, error) {
	if len(series) == 0 {
		return domain.OutcomeError, fmt.Errorf("refusing to save empty series for %s", feedSymbol)
	}
	if err := series.Validate(); err != nil {
		return domain.OutcomeError, fmt.Errorf("invalid series for %s: %w", feedSymbol, err)
	}

	path := s.seriesPath(feedSymbol)

	if existing, ok := s.readExisting(path, feedSymbol); ok {
		if reason := rejectReason(existing, series); reason != "" {
			s.log.Info("update rejected, keeping existing series",
				"symbol", feedSymbol,
				"reason", reason,
				"existing_bars", len(existing),
				"incoming_bars", len(series),
				"existing_last", existing.LastDate().Format("2006-01-02"),
				"incoming_last", series.LastDate().Format("2006-01-02"),
			)
			return domain.OutcomeProtected, nil
		}
	}

	if err := s.writeAtomic(path, series); err != nil {
		return domain.OutcomeError, fmt.Errorf("persisting %s: %w", feedSymbol, err)
	}

	s.log.Debug("series saved", "symbol", feedSymbol, "bars", len(series))
	return domain.OutcomeSaved, nil
}

// Load returns the stored series for the symbol.
func (s *ParquetStore) Load(_ context.Context, feedSymbol string) (domain.Series, error) {
	path := s.seriesPath(feedSymbol)
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("reading series for %s: %w", feedSymbol, err)
	}
	return toSeries(records), nil
}

// LastDates scans the store and returns the most recent stored date per
// symbol.
func (s *ParquetStore) LastDates(_ context.Context) (map[string]time.Time, error) {
	entries, err := os.ReadDir(s.PricesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	dates := make(map[string]time.Time)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".parquet") {
			continue
		}
		symbol := strings.TrimSuffix(name, ".parquet")

		records, err := parquet.ReadFile[BarRecord](filepath.Join(s.PricesDir, name))
		if err != nil || len(records) == 0 {
			continue
		}
		// Records are kept date-ordered on write.
		dates[symbol] = time.UnixMilli(records[len(records)-1].Date).UTC()
	}
	return dates, nil
}

// ---------------------------------------------------------------------------
// Protection rules
// ---------------------------------------------------------------------------

// rejectReason applies the protection rules in order; the first match wins.
// An empty string means the update is accepted.
func rejectReason(existing, incoming domain.Series) string {
	switch {
	case incoming.LastDate().Before(existing.LastDate()):
		return "last date regression"
	case incoming.FirstDate().After(existing.FirstDate()):
		return "history window shift"
	case len(incoming) < len(existing)-shrinkTolerance:
		return "series shrinkage"
	}
	return ""
}

// readExisting loads the currently stored series for comparison. A missing
// file means no history; an unreadable or corrupt file is logged and treated
// the same, so the fresh data replaces it.
func (s *ParquetStore) readExisting(path, feedSymbol string) (domain.Series, bool) {
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}

	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		s.log.Warn("existing series unreadable, will overwrite",
			"symbol", feedSymbol, "path", path, "err", err)
		return nil, false
	}
	if len(records) == 0 {
		return nil, false
	}
	return toSeries(records), true
}

// ---------------------------------------------------------------------------
// Atomic file handling
// ---------------------------------------------------------------------------

// writeAtomic writes the series to a temporary file in the same directory
// and renames it over the final path, so the final file is never observed
// partially written. A failed temporary write is removed.
func (s *ParquetStore) writeAtomic(path string, series domain.Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, toRecords(series)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// seriesPath returns the file path for a symbol's series.
// Layout: <PricesDir>/<FEEDSYMBOL>.parquet
func (s *ParquetStore) seriesPath(feedSymbol string) string {
	return filepath.Join(s.PricesDir, strings.ToUpper(feedSymbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Record conversion
// ---------------------------------------------------------------------------

func toRecords(series domain.Series) []BarRecord {
	records := make([]BarRecord, len(series))
	for i, b := range series {
		records[i] = BarRecord{
			Date:     b.Date.UnixMilli(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		}
	}
	return records
}

func toSeries(records []BarRecord) domain.Series {
	series := make(domain.Series, len(records))
	for i, r := range records {
		series[i] = domain.Bar{
			Date:     time.UnixMilli(r.Date).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.AdjClose,
			Volume:   r.Volume,
		}
	}
	return series
}

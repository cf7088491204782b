package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"breadth/internal/domain"
)

// mkSeries builds n consecutive daily bars starting at start.
func mkSeries(start time.Time, n int) domain.Series {
	s := make(domain.Series, n)
	for i := range s {
		p := 100.0 + float64(i)
		s[i] = domain.Bar{
			Date:     start.AddDate(0, 0, i),
			Open:     p,
			High:     p + 1,
			Low:      p - 1,
			Close:    p + 0.5,
			AdjClose: p + 0.25,
			Volume:   1_000_000,
		}
	}
	return s
}

var day1 = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

func TestSaveNewSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	series := mkSeries(day1, 500)
	outcome, err := ps.Save(ctx, "AAPL", series)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeSaved {
		t.Fatalf("outcome = %v, want OutcomeSaved", outcome)
	}

	got, err := ps.Load(ctx, "AAPL")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 500 {
		t.Fatalf("loaded %d bars, want 500", len(got))
	}
	if !got[0].Date.Equal(day1) {
		t.Errorf("first date = %v, want %v", got[0].Date, day1)
	}
	if got[499].Close != 599.5 {
		t.Errorf("last Close = %v, want 599.5", got[499].Close)
	}

	// No temporary artifact may survive a successful write.
	if _, err := os.Stat(ps.seriesPath("AAPL") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after successful save")
	}
}

func TestSaveRegressionGuard(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	old := mkSeries(day1, 100) // day 1..100
	if _, err := ps.Save(ctx, "MSFT", old); err != nil {
		t.Fatal(err)
	}

	// One less day, last date older: must be rejected.
	shorter := mkSeries(day1, 99)
	outcome, err := ps.Save(ctx, "MSFT", shorter)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeProtected {
		t.Fatalf("outcome = %v, want OutcomeProtected", outcome)
	}

	got, err := ps.Load(ctx, "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Errorf("file changed: %d bars stored, want original 100", len(got))
	}
}

func TestSaveWindowShiftGuard(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	old := mkSeries(day1, 100)
	if _, err := ps.Save(ctx, "GOOGL", old); err != nil {
		t.Fatal(err)
	}

	// Same last date, but history now starts 20 days later.
	shifted := mkSeries(day1.AddDate(0, 0, 20), 80)
	outcome, err := ps.Save(ctx, "GOOGL", shifted)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeProtected {
		t.Fatalf("outcome = %v, want OutcomeProtected", outcome)
	}
}

func TestSaveShrinkageGuard(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	old := mkSeries(day1, 100)
	if _, err := ps.Save(ctx, "AMZN", old); err != nil {
		t.Fatal(err)
	}

	// Same first and last date but 11 bars missing in the middle: gross loss.
	gross := make(domain.Series, 0, 89)
	gross = append(gross, old[:44]...)
	gross = append(gross, old[55:]...)
	outcome, err := ps.Save(ctx, "AMZN", gross)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeProtected {
		t.Fatalf("outcome = %v, want OutcomeProtected for 11-bar shrinkage", outcome)
	}

	// Losing 9 bars is within tolerance and accepted.
	minor := make(domain.Series, 0, 91)
	minor = append(minor, old[:45]...)
	minor = append(minor, old[54:]...)
	outcome, err = ps.Save(ctx, "AMZN", minor)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeSaved {
		t.Fatalf("outcome = %v, want OutcomeSaved for 9-bar shrinkage", outcome)
	}
}

func TestSaveExtendedSeries(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if _, err := ps.Save(ctx, "NVDA", mkSeries(day1, 100)); err != nil {
		t.Fatal(err)
	}

	longer := mkSeries(day1, 105)
	outcome, err := ps.Save(ctx, "NVDA", longer)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeSaved {
		t.Fatalf("outcome = %v, want OutcomeSaved", outcome)
	}

	got, err := ps.Load(ctx, "NVDA")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 105 {
		t.Errorf("loaded %d bars, want 105", len(got))
	}
}

func TestSaveIdempotent(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	series := mkSeries(day1, 100)
	if _, err := ps.Save(ctx, "META", series); err != nil {
		t.Fatal(err)
	}

	// Identical refresh passes every guard and replaces with equal content.
	outcome, err := ps.Save(ctx, "META", series)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeSaved {
		t.Fatalf("outcome = %v, want OutcomeSaved", outcome)
	}

	got, err := ps.Load(ctx, "META")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("loaded %d bars, want 100", len(got))
	}
	for i := range got {
		if !got[i].Date.Equal(series[i].Date) || got[i].Close != series[i].Close {
			t.Fatalf("bar %d differs after idempotent save", i)
		}
	}
}

func TestSaveOverCorruptFile(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	path := ps.seriesPath("TSLA")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Corrupt existing data is treated as absent and overwritten.
	outcome, err := ps.Save(ctx, "TSLA", mkSeries(day1, 100))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if outcome != domain.OutcomeSaved {
		t.Fatalf("outcome = %v, want OutcomeSaved over corrupt file", outcome)
	}

	got, err := ps.Load(ctx, "TSLA")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Errorf("loaded %d bars, want 100", len(got))
	}
}

func TestSaveAtomicWriteFailure(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	// A directory squatting on the final path makes the rename fail.
	path := ps.seriesPath("AAPL")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}

	outcome, err := ps.Save(ctx, "AAPL", mkSeries(day1, 100))
	if outcome != domain.OutcomeError {
		t.Fatalf("outcome = %v, want OutcomeError on failed replace", outcome)
	}
	if err == nil {
		t.Fatal("Save should surface the replace failure")
	}

	// The failed write must not leave its temporary file behind.
	if _, serr := os.Stat(path + ".tmp"); !os.IsNotExist(serr) {
		t.Error("temporary file left behind after failed save")
	}
}

func TestSaveRejectsInvalidInput(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if outcome, err := ps.Save(ctx, "EMPTY", nil); outcome != domain.OutcomeError || err == nil {
		t.Errorf("Save(nil) = (%v, %v), want OutcomeError with error", outcome, err)
	}

	dup := domain.Series{{Date: day1}, {Date: day1}}
	if outcome, err := ps.Save(ctx, "DUP", dup); outcome != domain.OutcomeError || err == nil {
		t.Errorf("Save(duplicate dates) = (%v, %v), want OutcomeError with error", outcome, err)
	}
}

func TestLoadMissing(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	if _, err := ps.Load(context.Background(), "NOPE"); err == nil {
		t.Error("Load of missing symbol should return an error")
	}
}

func TestLastDates(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if _, err := ps.Save(ctx, "AAPL", mkSeries(day1, 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := ps.Save(ctx, "BRK-B", mkSeries(day1, 20)); err != nil {
		t.Fatal(err)
	}

	dates, err := ps.LastDates(ctx)
	if err != nil {
		t.Fatalf("LastDates: %v", err)
	}
	if len(dates) != 2 {
		t.Fatalf("LastDates returned %d symbols, want 2", len(dates))
	}
	if want := day1.AddDate(0, 0, 9); !dates["AAPL"].Equal(want) {
		t.Errorf("AAPL last date = %v, want %v", dates["AAPL"], want)
	}
	if want := day1.AddDate(0, 0, 19); !dates["BRK-B"].Equal(want) {
		t.Errorf("BRK-B last date = %v, want %v", dates["BRK-B"], want)
	}
}

func TestLastDatesEmptyStore(t *testing.T) {
	ps := NewParquetStore(filepath.Join(t.TempDir(), "does-not-exist"))
	dates, err := ps.LastDates(context.Background())
	if err != nil {
		t.Fatalf("LastDates: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("LastDates on missing dir returned %d entries, want 0", len(dates))
	}
}

func TestSeriesPath(t *testing.T) {
	ps := NewParquetStore("/data/prices")
	want := filepath.Join("/data/prices", "BRK-B.parquet")
	if got := ps.seriesPath("brk-b"); got != want {
		t.Errorf("seriesPath = %q, want %q (uppercased)", got, want)
	}
}

package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// chartJSON builds a chart API response with n consecutive daily bars
// starting 2025-01-06, plus one null bar in the middle.
func chartJSON(n int) string {
	base := time.Date(2025, 1, 6, 14, 30, 0, 0, time.UTC)

	var ts, open, high, low, cls, adj, vol []string
	for i := 0; i < n; i++ {
		ts = append(ts, fmt.Sprint(base.AddDate(0, 0, i).Unix()))
		p := 100.0 + float64(i)
		open = append(open, fmt.Sprint(p))
		high = append(high, fmt.Sprint(p+1))
		low = append(low, fmt.Sprint(p-1))
		cls = append(cls, fmt.Sprint(p+0.5))
		adj = append(adj, fmt.Sprint(p+0.25))
		vol = append(vol, "1000000")
	}
	// Append a null bar that must be skipped.
	ts = append(ts, fmt.Sprint(base.AddDate(0, 0, n).Unix()))
	open = append(open, "null")
	high = append(high, "null")
	low = append(low, "null")
	cls = append(cls, "null")
	adj = append(adj, "null")
	vol = append(vol, "null")

	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],
		"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}],
		"adjclose":[{"adjclose":[%s]}]}}],"error":null}}`,
		strings.Join(ts, ","), strings.Join(open, ","), strings.Join(high, ","),
		strings.Join(low, ","), strings.Join(cls, ","), strings.Join(vol, ","),
		strings.Join(adj, ","))
}

func newTestYahoo(t *testing.T, handler http.HandlerFunc, historyDays int) *YahooFeed {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewYahooFeed("1d", true, historyDays)
	f.baseURL = srv.URL
	return f
}

func TestYahooFetchDaily(t *testing.T) {
	var gotPath string
	f := newTestYahoo(t, func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		if req.URL.Query().Get("interval") != "1d" {
			t.Errorf("interval = %q, want 1d", req.URL.Query().Get("interval"))
		}
		if req.URL.Query().Get("period1") == "" {
			t.Error("period1 missing from query")
		}
		fmt.Fprint(w, chartJSON(10))
	}, 10) // minBars = 8

	res := f.FetchDaily(context.Background(), "BRK-B", time.Now().AddDate(0, 0, -30))
	if res.Status != StatusOK {
		t.Fatalf("status = %v (err %v), want StatusOK", res.Status, res.Err)
	}
	if gotPath != "/BRK-B" {
		t.Errorf("request path = %q, want /BRK-B", gotPath)
	}
	// 10 real bars; the trailing null bar is dropped.
	if len(res.Series) != 10 {
		t.Fatalf("series has %d bars, want 10", len(res.Series))
	}
	if err := res.Series.Validate(); err != nil {
		t.Fatalf("series invalid: %v", err)
	}

	first := res.Series[0]
	if first.Date != time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) {
		t.Errorf("first bar date = %v, want 2025-01-06 UTC midnight", first.Date)
	}
	if first.Close != 100.5 {
		t.Errorf("first bar Close = %v, want 100.5", first.Close)
	}
	if first.AdjClose != 100.25 {
		t.Errorf("first bar AdjClose = %v, want 100.25", first.AdjClose)
	}
	if first.Volume != 1000000 {
		t.Errorf("first bar Volume = %d, want 1000000", first.Volume)
	}
}

func TestYahooFetchDailyInsufficient(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, chartJSON(10))
	}, 500) // minBars = 400, far more than the 10 returned

	res := f.FetchDaily(context.Background(), "AAPL", time.Now().AddDate(0, 0, -30))
	if res.Status != StatusEmpty {
		t.Fatalf("status = %v, want StatusEmpty for insufficient history", res.Status)
	}
	if res.Err == nil {
		t.Error("insufficient history should carry the shortfall in Err")
	}
}

func TestYahooFetchDailyNoData(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[],"indicators":{"quote":[{}]}}],"error":null}}`)
	}, 10)

	res := f.FetchDaily(context.Background(), "XXXX", time.Now().AddDate(0, 0, -30))
	if res.Status != StatusEmpty {
		t.Fatalf("status = %v, want StatusEmpty", res.Status)
	}
}

func TestYahooFetchDailyAPIError(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	}, 10)

	res := f.FetchDaily(context.Background(), "GONE", time.Now().AddDate(0, 0, -30))
	if res.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", res.Status)
	}
}

func TestYahooFetchDailyServerError(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}, 10)

	res := f.FetchDaily(context.Background(), "AAPL", time.Now().AddDate(0, 0, -30))
	if res.Status != StatusError {
		t.Fatalf("status = %v, want StatusError", res.Status)
	}
}

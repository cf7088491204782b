package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"breadth/internal/domain"
)

// Compile-time interface check.
var _ Feed = (*YahooFeed)(nil)

// YahooFeed fetches daily bars from the public Yahoo Finance chart API.
type YahooFeed struct {
	client     *http.Client
	baseURL    string
	interval   string
	autoAdjust bool
	minBars    int
	log        *slog.Logger
}

// NewYahooFeed creates a YahooFeed for the given bar interval. historyDays
// sets the target window used for the minimum-length check.
func NewYahooFeed(interval string, autoAdjust bool, historyDays int) *YahooFeed {
	return &YahooFeed{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://query1.finance.yahoo.com/v8/finance/chart",
		interval:   interval,
		autoAdjust: autoAdjust,
		minBars:    MinBars(historyDays),
		log:        slog.Default().With("feed", "yahoo"),
	}
}

// Name returns the feed identifier.
func (f *YahooFeed) Name() string { return "yahoo" }

// yahooChart is the response structure of the Yahoo Finance chart API.
// Null entries appear in the quote arrays on holidays and halts.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDaily retrieves daily bars for feedSymbol from start to now and
// classifies the response.
func (f *YahooFeed) FetchDaily(ctx context.Context, feedSymbol string, start time.Time) Result {
	series, err := f.fetchChart(ctx, feedSymbol, start, time.Now())
	res := classify(series, f.minBars, err)
	logResult(f.log, feedSymbol, res)
	return res
}

func (f *YahooFeed) fetchChart(ctx context.Context, feedSymbol string, start, end time.Time) (domain.Series, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", f.interval)
	q.Set("events", "div,split")

	u := fmt.Sprintf("%s/%s?%s", f.baseURL, url.PathEscape(feedSymbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil // no data is an empty response, not an error
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	var adjclose []*float64
	if len(result.Indicators.Adjclose) > 0 {
		adjclose = result.Indicators.Adjclose[0].Adjclose
	}

	bars := make(domain.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := deref(quote.Open, i)
		h := deref(quote.High, i)
		l := deref(quote.Low, i)
		c := deref(quote.Close, i)
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bar (holiday, halt)
		}

		adj := c
		if f.autoAdjust {
			if a := deref(adjclose, i); a != 0 {
				adj = a
			}
		}

		var vol int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}

		day := time.Unix(ts, 0).UTC()
		bars = append(bars, domain.Bar{
			Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:     o,
			High:     h,
			Low:      l,
			Close:    c,
			AdjClose: adj,
			Volume:   vol,
		})
	}

	return normalize(bars), nil
}

func deref(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return 0
	}
	return *vals[i]
}

// normalize sorts bars by date and collapses duplicate dates, keeping the
// later entry (a same-day refresh supersedes the earlier partial bar).
func normalize(bars domain.Series) domain.Series {
	if len(bars) == 0 {
		return nil
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

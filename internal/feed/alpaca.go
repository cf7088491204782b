package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"breadth/internal/domain"
)

// Compile-time interface check.
var _ Feed = (*AlpacaFeed)(nil)

// AlpacaFeed fetches daily bars from the Alpaca market-data API. Alpaca
// applies price adjustment server-side, so AdjClose mirrors Close.
type AlpacaFeed struct {
	client  *marketdata.Client
	adjust  marketdata.Adjustment
	minBars int
	log     *slog.Logger
}

// NewAlpacaFeed creates an AlpacaFeed with the given credentials. An empty
// dataURL uses the SDK default endpoint.
func NewAlpacaFeed(apiKey, apiSecret, dataURL string, autoAdjust bool, historyDays int) *AlpacaFeed {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}

	adjust := marketdata.Raw
	if autoAdjust {
		adjust = marketdata.All
	}

	return &AlpacaFeed{
		client:  marketdata.NewClient(opts),
		adjust:  adjust,
		minBars: MinBars(historyDays),
		log:     slog.Default().With("feed", "alpaca"),
	}
}

// Name returns the feed identifier.
func (f *AlpacaFeed) Name() string { return "alpaca" }

// FetchDaily retrieves daily bars for feedSymbol from start to now and
// classifies the response.
func (f *AlpacaFeed) FetchDaily(ctx context.Context, feedSymbol string, start time.Time) Result {
	if ctx.Err() != nil {
		res := Result{Status: StatusError, Err: ctx.Err()}
		logResult(f.log, feedSymbol, res)
		return res
	}

	alpacaBars, err := f.client.GetBars(feedSymbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		Adjustment: f.adjust,
	})

	var series domain.Series
	if err == nil {
		series = make(domain.Series, 0, len(alpacaBars))
		for _, ab := range alpacaBars {
			day := ab.Timestamp.UTC()
			series = append(series, domain.Bar{
				Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
				Open:     ab.Open,
				High:     ab.High,
				Low:      ab.Low,
				Close:    ab.Close,
				AdjClose: ab.Close,
				Volume:   int64(ab.Volume),
			})
		}
		series = normalize(series)
	}

	res := classify(series, f.minBars, err)
	logResult(f.log, feedSymbol, res)
	return res
}

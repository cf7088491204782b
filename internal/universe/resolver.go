// Package universe resolves the trading universe for a collection run by
// scraping the constituents table of a canonical index page, with a local
// CSV cache as fallback.
package universe

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"breadth/internal/domain"
	"breadth/internal/util"
)

// Wikipedia rejects requests without a browser User-Agent.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// constituentsTableID is the stable id attribute of the ticker table on the
// source page.
const constituentsTableID = "constituents"

// Resolver obtains the ticker universe from a remote HTML table, falling
// back to a cached CSV when the remote source is unavailable.
type Resolver struct {
	client      *http.Client
	sourceURL   string
	fallbackCSV string
	minSymbols  int

	// retry policy for the remote attempt
	attempts   int
	retryDelay time.Duration

	log *slog.Logger
}

// NewResolver creates a Resolver for the given source page and fallback
// cache path. Remote results with fewer than minSymbols tickers are treated
// as a failed attempt.
func NewResolver(sourceURL, fallbackCSV string, minSymbols int, timeout time.Duration) *Resolver {
	return &Resolver{
		client:      &http.Client{Timeout: timeout},
		sourceURL:   sourceURL,
		fallbackCSV: fallbackCSV,
		minSymbols:  minSymbols,
		attempts:    2,
		retryDelay:  2 * time.Second,
		log:         slog.Default().With("component", "universe"),
	}
}

// Resolve returns the ordered ticker universe. A successful remote fetch
// refreshes the fallback cache; a failed one falls back to the cache.
// Failure of both is fatal for the run — there is no further fallback.
func (r *Resolver) Resolve(ctx context.Context) ([]domain.Symbol, error) {
	symbols, err := r.fetchRemote(ctx)
	if err == nil {
		if werr := r.saveFallback(symbols); werr != nil {
			r.log.Error("updating fallback cache failed", "path", r.fallbackCSV, "err", werr)
		} else {
			r.log.Info("fallback cache refreshed", "path", r.fallbackCSV, "symbols", len(symbols))
		}
		return symbols, nil
	}

	r.log.Warn("remote universe fetch failed, trying fallback cache", "err", err)

	symbols, ferr := r.loadFallback()
	if ferr != nil {
		return nil, fmt.Errorf("no universe available: remote: %v; fallback: %w", err, ferr)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no universe available: remote: %v; fallback cache %s is empty", err, r.fallbackCSV)
	}

	r.log.Info("universe loaded from fallback cache", "symbols", len(symbols))
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Remote source
// ---------------------------------------------------------------------------

// fetchRemote retrieves and validates the constituent list from the source
// page. Only transport and status failures are retried; a page that arrives
// but lacks the expected table fails immediately, since retrying cannot
// change its content.
func (r *Resolver) fetchRemote(ctx context.Context) ([]domain.Symbol, error) {
	var body []byte
	err := util.Retry(ctx, r.attempts, r.retryDelay, func() error {
		b, err := r.get(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.parse(body)
}

func (r *Resolver) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", r.sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", r.sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.sourceURL, err)
	}
	return body, nil
}

// parse extracts and validates the ticker column from the fetched page.
func (r *Resolver) parse(body []byte) ([]domain.Symbol, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", r.sourceURL, err)
	}

	table := findTableByID(doc, constituentsTableID)
	if table == nil {
		return nil, fmt.Errorf("table %q not found on %s", constituentsTableID, r.sourceURL)
	}

	cells := firstCellValues(table)
	symbols := make([]domain.Symbol, 0, len(cells))
	for _, c := range cells {
		symbols = append(symbols, domain.Symbol(c))
	}

	if len(symbols) < r.minSymbols {
		return nil, fmt.Errorf("extracted only %d symbols from %s (minimum %d)",
			len(symbols), r.sourceURL, r.minSymbols)
	}

	r.log.Info("universe fetched from remote source", "url", r.sourceURL, "symbols", len(symbols))
	return symbols, nil
}

// findTableByID walks the parse tree depth-first for a <table> element whose
// id attribute matches.
func findTableByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && n.Data == "table" {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTableByID(c, id); t != nil {
			return t
		}
	}
	return nil
}

// firstCellValues returns the trimmed text of the first <td> of every row in
// the table. The header row carries only <th> cells and is skipped.
func firstCellValues(table *html.Node) []string {
	var values []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if td := findFirstElement(n, "td"); td != nil {
				if v := strings.TrimSpace(nodeText(td)); v != "" {
					values = append(values, v)
				}
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return values
}

func findFirstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if e := findFirstElement(c, tag); e != nil {
			return e
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Fallback cache
// ---------------------------------------------------------------------------

// loadFallback reads the cached ticker list. Reading never modifies the
// cache.
func (r *Resolver) loadFallback() ([]domain.Symbol, error) {
	f, err := os.Open(r.fallbackCSV)
	if err != nil {
		return nil, fmt.Errorf("opening fallback cache: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading fallback cache %s: %w", r.fallbackCSV, err)
	}

	if len(records) < 2 {
		return nil, nil // header only, or empty
	}

	symbols := make([]domain.Symbol, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) > 0 {
			if sym := strings.TrimSpace(row[0]); sym != "" {
				symbols = append(symbols, domain.Symbol(sym))
			}
		}
	}
	return symbols, nil
}

// saveFallback overwrites the cache with the freshly resolved universe.
func (r *Resolver) saveFallback(symbols []domain.Symbol) error {
	if err := os.MkdirAll(filepath.Dir(r.fallbackCSV), 0o755); err != nil {
		return err
	}

	f, err := os.Create(r.fallbackCSV)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ticker"}); err != nil {
		return err
	}
	for _, sym := range symbols {
		if err := w.Write([]string{string(sym)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

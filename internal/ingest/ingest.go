// Package ingest talks to the historical-candle ingestion service: an
// external collaborator that owns symbol discovery and bar fetch, and
// persists rows into the shared bar table itself. The strategy-run
// worker only triggers a sync and waits for it to finish; it never
// writes bars directly.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nitinkhare/patterncore/internal/bars"
)

// SyncRow is one OHLCV row within a SyncResult item.
type SyncRow struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// SyncItem groups the rows synced for one (symbol, exchange, granularity).
type SyncItem struct {
	Symbol      string
	Exchange    string
	Granularity bars.Granularity
	Rows        []SyncRow
}

// SyncResult is the response to a sync call.
type SyncResult struct {
	Items []SyncItem
}

// Adapter is the ingester's external surface.
type Adapter interface {
	// Sync triggers a historical fetch-and-persist for the given
	// symbols/exchanges/granularity/date-range, retrying transient
	// failures up to 3 times with exponential back-off.
	Sync(ctx context.Context, symbols, exchanges []string, granularity bars.Granularity, from, to time.Time) (*SyncResult, error)
	GetSymbols(ctx context.Context, exchange string) ([]string, error)
	GetExchanges(ctx context.Context) ([]string, error)
	GetGranularities(ctx context.Context) ([]bars.Granularity, error)
}

// HTTPAdapter implements Adapter against a REST ingestion service.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	retries int
}

// NewHTTPAdapter builds an HTTPAdapter. retries defaults to 3 if <= 0.
func NewHTTPAdapter(baseURL string, retries int) *HTTPAdapter {
	if retries <= 0 {
		retries = 3
	}
	return &HTTPAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		retries: retries,
	}
}

type syncRequest struct {
	Symbols     []string `json:"symbols"`
	Exchanges   []string `json:"exchanges"`
	Granularity string   `json:"granularity"`
	From        string   `json:"from"`
	To          string   `json:"to"`
}

type syncRowJSON struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type syncItemJSON struct {
	Symbol      string        `json:"symbol"`
	Exchange    string        `json:"exchange"`
	Granularity string        `json:"granularity"`
	Rows        []syncRowJSON `json:"rows"`
}

type syncResponse struct {
	Items []syncItemJSON `json:"items"`
}

func (a *HTTPAdapter) Sync(ctx context.Context, symbols, exchanges []string, granularity bars.Granularity, from, to time.Time) (*SyncResult, error) {
	req := syncRequest{
		Symbols:     symbols,
		Exchanges:   exchanges,
		Granularity: string(granularity),
		From:        from.Format("2006-01-02"),
		To:          to.Format("2006-01-02"),
	}

	var resp syncResponse
	if err := a.postWithRetry(ctx, "/sync", req, &resp); err != nil {
		return nil, fmt.Errorf("ingest: sync: %w", err)
	}

	result := &SyncResult{Items: make([]SyncItem, 0, len(resp.Items))}
	for _, item := range resp.Items {
		si := SyncItem{
			Symbol:      item.Symbol,
			Exchange:    item.Exchange,
			Granularity: bars.Granularity(item.Granularity),
			Rows:        make([]SyncRow, 0, len(item.Rows)),
		}
		for _, r := range item.Rows {
			date, err := time.Parse("2006-01-02", r.Date)
			if err != nil {
				return nil, fmt.Errorf("ingest: sync: parse row date %q: %w", r.Date, err)
			}
			si.Rows = append(si.Rows, SyncRow{Date: date, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
		}
		result.Items = append(result.Items, si)
	}
	return result, nil
}

func (a *HTTPAdapter) GetSymbols(ctx context.Context, exchange string) ([]string, error) {
	var out []string
	path := "/symbols"
	if exchange != "" {
		path += "?exchange=" + exchange
	}
	if err := a.getWithRetry(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("ingest: get symbols: %w", err)
	}
	return out, nil
}

func (a *HTTPAdapter) GetExchanges(ctx context.Context) ([]string, error) {
	var out []string
	if err := a.getWithRetry(ctx, "/exchanges", &out); err != nil {
		return nil, fmt.Errorf("ingest: get exchanges: %w", err)
	}
	return out, nil
}

func (a *HTTPAdapter) GetGranularities(ctx context.Context) ([]bars.Granularity, error) {
	var raw []string
	if err := a.getWithRetry(ctx, "/granularities", &raw); err != nil {
		return nil, fmt.Errorf("ingest: get granularities: %w", err)
	}
	out := make([]bars.Granularity, 0, len(raw))
	for _, g := range raw {
		out = append(out, bars.Granularity(g))
	}
	return out, nil
}

// postWithRetry and getWithRetry retry transient failures (5xx,
// network errors) up to a.retries times with exponential back-off
// starting at 500ms. A 4xx is not retried — it indicates a request
// the ingester will never accept.
func (a *HTTPAdapter) postWithRetry(ctx context.Context, path string, body, out any) error {
	return a.withRetry(func() error {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return a.do(req, out)
	})
}

func (a *HTTPAdapter) getWithRetry(ctx context.Context, path string, out any) error {
	return a.withRetry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		return a.do(req, out)
	})
}

func (a *HTTPAdapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return &transientError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transientError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &transientError{err: fmt.Errorf("ingester http %d: %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ingester http %d: %s", resp.StatusCode, string(body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (a *HTTPAdapter) withRetry(call func() error) error {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < a.retries; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		var transient *transientError
		if !errors.As(err, &transient) {
			return err
		}
		lastErr = err
		if attempt < a.retries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("exhausted %d retries: %w", a.retries, lastErr)
}

package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nitinkhare/patterncore/internal/bars"
)

func TestHTTPAdapter_GetSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/symbols" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]string{"INFY", "TCS"})
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, 3)
	symbols, err := adapter.GetSymbols(context.Background(), "NSE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(symbols))
	}
}

func TestHTTPAdapter_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]string{"NSE", "BSE"})
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, 3)
	adapter.client.Timeout = 5 * time.Second
	exchanges, err := adapter.GetExchanges(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exchanges) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(exchanges))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected exactly 3 calls, got %d", calls)
	}
}

func TestHTTPAdapter_DoesNotRetry4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, 3)
	_, err := adapter.GetSymbols(context.Background(), "NSE")
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected exactly 1 call for a non-transient 4xx, got %d", calls)
	}
}

func TestHTTPAdapter_ExhaustsRetriesOnPersistent5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, 3)
	_, err := adapter.GetExchanges(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestHTTPAdapter_Sync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(syncResponse{
			Items: []syncItemJSON{
				{
					Symbol: "INFY", Exchange: "NSE", Granularity: "day",
					Rows: []syncRowJSON{{Date: "2026-03-02", Open: 1500, High: 1510, Low: 1490, Close: 1505, Volume: 100000}},
				},
			},
		})
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, 3)
	result, err := adapter.Sync(context.Background(), []string{"INFY"}, []string{"NSE"}, bars.Day,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 || len(result.Items[0].Rows) != 1 {
		t.Fatalf("unexpected sync result: %+v", result)
	}
}

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinkhare/patterncore/internal/store"
)

func TestServer_HealthzReportsOkAndLastTicks(t *testing.T) {
	st := store.NewMemoryStore()
	ticks := NewTickTracker()
	ticks.Touch("dispatcher")

	s := NewServer(Config{Port: 0}, st, ticks, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.LastTicks, "dispatcher")
}

func TestServer_MetricsServesPrometheusFormat(t *testing.T) {
	st := store.NewMemoryStore()
	s := NewServer(Config{Port: 0}, st, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTickTracker_WrapTickOnlyTouchesOnSuccess(t *testing.T) {
	tt := NewTickTracker()
	calls := 0
	wrapped := tt.WrapTick("miner", func(context.Context) error {
		calls++
		if calls == 1 {
			return assert.AnError
		}
		return nil
	})

	require.Error(t, wrapped(context.Background()))
	assert.Empty(t, tt.Snapshot())

	require.NoError(t, wrapped(context.Background()))
	assert.Contains(t, tt.Snapshot(), "miner")
}

package strategyrun

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinkhare/patterncore/internal/bars"
	"github.com/nitinkhare/patterncore/internal/ingest"
	"github.com/nitinkhare/patterncore/internal/ratelimit"
	"github.com/nitinkhare/patterncore/internal/store"
)

// fakeBarStore and fakeIngesterAdapter satisfy the worker's
// dependencies without hitting any network or database.
type fakeIngesterAdapter struct {
	symbols map[string][]string
}

func (f *fakeIngesterAdapter) Sync(ctx context.Context, symbols, exchanges []string, granularity bars.Granularity, from, to time.Time) (*ingest.SyncResult, error) {
	return &ingest.SyncResult{}, nil
}
func (f *fakeIngesterAdapter) GetSymbols(ctx context.Context, exchange string) ([]string, error) {
	return f.symbols[exchange], nil
}
func (f *fakeIngesterAdapter) GetExchanges(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeIngesterAdapter) GetGranularities(ctx context.Context) ([]bars.Granularity, error) {
	return nil, nil
}

type fakeBarStore struct {
	bars map[string][]bars.Bar // key: symbol|exchange
}

func (f *fakeBarStore) GetBars(ctx context.Context, symbol, exchange string, granularity bars.Granularity, from, to time.Time, limit int) ([]bars.Bar, error) {
	return f.bars[symbol+"|"+exchange], nil
}

func seededBars(symbol, exchange string) []bars.Bar {
	loc := time.FixedZone("IST", 5*3600+1800)
	var out []bars.Bar
	for day := 1; day <= 20; day++ {
		ret := 0.02
		if day > 16 {
			ret = -0.01
		}
		open := 100.0
		closeVal := open * (1 + ret)
		date := time.Date(2026, 1, day, 0, 0, 0, 0, loc)
		out = append(out,
			bars.Bar{Symbol: symbol, Exchange: exchange, Granularity: bars.ThreeMin, RecordTime: date.Add(9*time.Hour + 15*time.Minute), Open: open},
			bars.Bar{Symbol: symbol, Exchange: exchange, Granularity: bars.ThreeMin, RecordTime: date.Add(9*time.Hour + 45*time.Minute), Open: closeVal},
		)
	}
	return out
}

func TestWorker_ProcessRun_PersistsResultsAndCompletes(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := RunConfig{
		ThresholdProb:  0.75,
		HorizontalGaps: []float64{1},
		ContinuousDays: []int{5},
		NSESymbols:     []string{"RELIANCE"},
	}
	cfgBytes, err := json.Marshal(cfg)
	require.NoError(t, err)

	run := &store.StrategyRun{Config: cfgBytes}
	require.NoError(t, st.CreateStrategyRun(context.Background(), run))

	barStore := &fakeBarStore{bars: map[string][]bars.Bar{"RELIANCE|NSE": seededBars("RELIANCE", "NSE")}}
	ingester := &fakeIngesterAdapter{}
	limiter := ratelimit.New(1000, 10)

	w := &Worker{store: st, bars: barStore, ingester: ingester, limiter: limiter, tau: 0.75}
	require.NoError(t, w.Tick(context.Background()))

	got, err := st.GetStrategyRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)

	results, err := st.ListStrategyResults(context.Background(), run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "RELIANCE", r.Symbol)
		assert.Equal(t, "NSE", r.Exchange)
		assert.GreaterOrEqual(t, r.ExceedProb, cfg.ThresholdProb)
	}
}

func TestWorker_ProcessRun_InvalidConfigFails(t *testing.T) {
	st := store.NewMemoryStore()
	run := &store.StrategyRun{Config: []byte("not json")}
	require.NoError(t, st.CreateStrategyRun(context.Background(), run))

	w := &Worker{store: st, bars: &fakeBarStore{}, ingester: &fakeIngesterAdapter{}, limiter: ratelimit.New(1000, 10), tau: 0.75}
	require.NoError(t, w.Tick(context.Background()))

	got, err := st.GetStrategyRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
}

func TestWorker_Universe_IncludeAllNSEUsesAllowList(t *testing.T) {
	w := &Worker{ingester: &fakeIngesterAdapter{}}
	symbols, err := w.Universe(context.Background(), "NSE", nil, true)
	require.NoError(t, err)
	assert.Len(t, symbols, 100)
	assert.Contains(t, symbols, "RELIANCE")
}

func TestWorker_Universe_IncludeAllBSEUsesIngester(t *testing.T) {
	w := &Worker{ingester: &fakeIngesterAdapter{symbols: map[string][]string{"BSE": {"HDFCBANK", "TCS"}}}}
	symbols, err := w.Universe(context.Background(), "BSE", nil, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"HDFCBANK", "TCS"}, symbols)
}

func TestWorker_Universe_ExplicitListPassesThrough(t *testing.T) {
	w := &Worker{}
	symbols, err := w.Universe(context.Background(), "NSE", []string{"RELIANCE"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE"}, symbols)
}

func TestRunConfig_ResolveDateRange_DefaultsToTrailing90Days(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	from, to, err := RunConfig{}.resolveDateRange(now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, -90), from)
	assert.Equal(t, now, to)
}

func TestRunConfig_ResolveDateRange_ExplicitDates(t *testing.T) {
	cfg := RunConfig{StartDate: "2026-01-01", EndDate: "2026-03-01"}
	from, to, err := cfg.resolveDateRange(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", from.Format(dateLayout))
	assert.Equal(t, "2026-03-01", to.Format(dateLayout))
}

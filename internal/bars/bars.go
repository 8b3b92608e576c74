// Package bars provides read access to OHLCV candle data. The core
// never writes bars — the ingester adapter owns that — so this
// package exposes a narrow read-only Store built around the single
// GetBars query the strategy-run worker depends on to feed the miner.
package bars

import (
	"context"
	"fmt"
	"time"

	"github.com/nitinkhare/patterncore/internal/calendar"
)

// Granularity is one of the intervals the ingester can produce.
type Granularity string

const (
	Minute     Granularity = "minute"
	ThreeMin   Granularity = "3minute"
	FiveMin    Granularity = "5minute"
	TenMin     Granularity = "10minute"
	FifteenMin Granularity = "15minute"
	ThirtyMin  Granularity = "30minute"
	SixtyMin   Granularity = "60minute"
	Day        Granularity = "day"
	Week       Granularity = "week"
)

// Bar is one OHLCV record for a (symbol, exchange, granularity,
// record_time) quadruple.
type Bar struct {
	Symbol      string
	Exchange    string
	Granularity Granularity
	RecordTime  time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      int64
}

// Store is the core's read-only view of the bar table. Implementations
// own upstream timezone conversion: RecordTime on every returned Bar
// is already in the exchange's local zone.
type Store interface {
	// GetBars returns bars for symbol/exchange/granularity with
	// RecordTime in [from, to], ordered ascending by RecordTime. An
	// empty result is not an error — it propagates to the miner as
	// "no signal for this symbol". limit <= 0 means unbounded.
	GetBars(ctx context.Context, symbol, exchange string, granularity Granularity, from, to time.Time, limit int) ([]Bar, error)
}

// TimeOfDay is a bar's intraday clock position, used by the miner to
// group bars within a day by their time-of-day point.
func TimeOfDay(b Bar) string {
	ist := b.RecordTime.In(calendar.IST)
	return fmt.Sprintf("%02d:%02d", ist.Hour(), ist.Minute())
}

// TradingDate returns the exchange-local calendar date a bar belongs
// to, for grouping bars into day -> (time-of-day -> bar) maps.
func TradingDate(b Bar) time.Time {
	ist := b.RecordTime.In(calendar.IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, calendar.IST)
}

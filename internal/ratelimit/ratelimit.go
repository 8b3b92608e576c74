// Package ratelimit throttles the strategy-run worker's
// symbol-by-symbol mining loop so it cannot overrun the services that
// loop calls. Broker order placement is not rate-limited.
//
// The original throttle was a fixed "every 5th symbol, sleep 5 seconds"
// rule tied to loop position. That couples the limiter to caller
// control flow and produces bursty, uneven spacing. This replaces it
// with a token-bucket limiter than spaces calls evenly and lets burst
// size and steady-state rate be tuned independently.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter behind a narrow
// interface so callers (the strategy-run worker's symbol loop) depend
// on a capability, not a concrete type.
type Limiter interface {
	// Wait blocks until a call is permitted or ctx is done.
	Wait(ctx context.Context) error
}

// New returns a Limiter permitting ratePerSecond calls per second with
// bursts up to burst.
func New(ratePerSecond float64, burst int) Limiter {
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// NewFromInterval returns a Limiter permitting one call per interval,
// with no burst allowance. This matches the shape of the original
// "one call every N seconds" throttle while avoiding its dependence on
// a symbol's position in a loop.
func NewFromInterval(interval time.Duration) Limiter {
	if interval <= 0 {
		return unlimited{}
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// unlimited never blocks. Used when a caller is configured with a
// non-positive interval, meaning throttling is disabled (e.g. in tests
// or against a simulated broker).
type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

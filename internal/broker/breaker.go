package broker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes CircuitBreakerBroker. Mirrors gobreaker.Settings'
// shape minus the name, which the wrapper fixes.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips after half of at least 5 calls in a
// rolling minute fail, and probes again after 30 seconds open.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  1,
	Interval:     time.Minute,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.5,
}

// CircuitBreakerBroker wraps a Broker so repeated order/quote failures
// (a flaky connection, an expired token the reauth hook can't fix)
// stop hammering the upstream API and fail fast instead.
type CircuitBreakerBroker struct {
	inner   Broker
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerBroker wraps inner with DefaultBreakerSettings.
func NewCircuitBreakerBroker(inner Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(inner, DefaultBreakerSettings)
}

// NewCircuitBreakerBrokerWithSettings wraps inner with custom settings.
func NewCircuitBreakerBrokerWithSettings(inner Broker, s BreakerSettings) *CircuitBreakerBroker {
	settings := gobreaker.Settings{
		Name:        "broker",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= s.MinRequests && float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
	}
	return &CircuitBreakerBroker{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State exposes the breaker's current state for health reporting.
func (c *CircuitBreakerBroker) State() gobreaker.State {
	return c.breaker.State()
}

func (c *CircuitBreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		r, err := c.inner.PlaceOrder(ctx, req)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*OrderResult), nil
}

func (c *CircuitBreakerBroker) GetQuote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.inner.GetQuote(ctx, symbol, exchange)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Quote), nil
}

func (c *CircuitBreakerBroker) GetLTP(ctx context.Context, symbol, exchange string) (*LTP, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.inner.GetLTP(ctx, symbol, exchange)
	})
	if err != nil {
		return nil, err
	}
	return res.(*LTP), nil
}

func (c *CircuitBreakerBroker) PlaceGTT(ctx context.Context, req GTTRequest) (string, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.inner.PlaceGTT(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (c *CircuitBreakerBroker) ListInstruments(ctx context.Context, exchange string) ([]Instrument, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.inner.ListInstruments(ctx, exchange)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Instrument), nil
}

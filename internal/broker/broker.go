// Package broker defines the external order-placement surface the
// dispatcher and execution orchestrator depend on. The core never
// implements a live exchange connection itself — this package only
// states the contract and ships a Kite Connect adapter plus a
// simulate-mode implementation for executions that never touch money.
//
// Design rules:
//   - Only one broker implementation is active per process.
//   - No task-chaining or pattern logic inside a broker implementation.
//   - Implementations are stateless; all durable state lives in the store.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Side is buy or sell, matching StrategyExecutionTask.order_type.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Product, OrderVariety and OrderKind mirror the broker SDK constants
// the original hardcoded. Exposing them as adapter configuration
// rather than literals lets a deployment switch order behaviour
// without touching dispatcher code.
type Product string

const (
	ProductCashAndCarry Product = "cash-and-carry"
	ProductMargin       Product = "margin"
)

type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

type OrderVariety string

const (
	VarietyRegular OrderVariety = "regular"
	VarietyAMO     OrderVariety = "amo"
)

// OrderRequest places either a money-denominated buy or a
// quantity-denominated sell: buy orders specify how much capital to
// deploy, sell orders specify how many shares to release.
type OrderRequest struct {
	Symbol   string
	Exchange string
	Side     Side
	Money    float64 // set for Side == Buy
	Quantity int     // set for Side == Sell
	Product  Product
	Kind     OrderKind
	Variety  OrderVariety
}

// OrderStatus is the terminal or in-flight state of a placed order.
type OrderStatus string

const (
	StatusComplete  OrderStatus = "COMPLETE"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusTimeout   OrderStatus = "TIMEOUT"
	StatusPending   OrderStatus = "PENDING"
)

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusRejected, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// OrderResult is what PlaceOrder returns once the order reaches a
// terminal status or the call times out.
type OrderResult struct {
	Success          bool
	OrderID          string
	Status           OrderStatus
	SharesBought     int // set on a filled buy
	SharesSold       int // set on a filled sell
	PricePerShare    float64
	TotalAmount      float64
	MoneyProvided    float64
	MoneyRemaining   float64
	OrderTimestamp   time.Time
	ExchangeTimestamp time.Time
	Error            string
}

// Quote is a point-in-time snapshot for a symbol.
type Quote struct {
	LastPrice float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// LTP is the cheaper last-traded-price-only call used where a full
// quote isn't needed.
type LTP struct {
	LastPrice float64
}

// GTTType selects a single-trigger or one-cancels-other conditional
// order.
type GTTType string

const (
	GTTSingle GTTType = "single"
	GTTOCO    GTTType = "oco"
)

// GTTLeg is one order to fire when a GTT trigger condition is met.
type GTTLeg struct {
	TransactionType Side
	Quantity        int
	OrderKind       OrderKind
	Price           float64
}

// GTTRequest places a conditional order. For GTTOCO, TriggerValues
// must contain exactly two ascending values [stoploss, target] with
// stoploss < LastPrice < target — see ValidateOCO.
type GTTRequest struct {
	Type          GTTType
	Symbol        string
	Exchange      string
	TriggerValues []float64
	LastPrice     float64
	Legs          []GTTLeg
}

// ValidateOCO enforces stoploss < last_price < target for a two-leg
// one-cancels-other trigger.
func ValidateOCO(req GTTRequest) error {
	if req.Type != GTTOCO {
		return nil
	}
	if len(req.TriggerValues) != 2 {
		return fmt.Errorf("broker: oco gtt requires exactly 2 trigger values, got %d", len(req.TriggerValues))
	}
	stoploss, target := req.TriggerValues[0], req.TriggerValues[1]
	if !(stoploss < req.LastPrice && req.LastPrice < target) {
		return fmt.Errorf("broker: oco gtt requires stoploss(%v) < last_price(%v) < target(%v)", stoploss, req.LastPrice, target)
	}
	return nil
}

// Instrument identifies a tradable security on an exchange.
type Instrument struct {
	TradingSymbol    string
	InstrumentToken  string
	Exchange         string
}

// Broker is the contract the dispatcher and execution orchestrator
// depend on. Authentication is opaque to callers: an implementation
// re-authenticates on 401 and retries once internally.
type Broker interface {
	// PlaceOrder blocks until the order reaches a terminal status or
	// 30 seconds elapse, whichever comes first.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	GetQuote(ctx context.Context, symbol, exchange string) (*Quote, error)
	GetLTP(ctx context.Context, symbol, exchange string) (*LTP, error)
	PlaceGTT(ctx context.Context, req GTTRequest) (triggerID string, err error)
	ListInstruments(ctx context.Context, exchange string) ([]Instrument, error)
}

// Registry maps broker names to factory functions, as new
// implementations are added.
var Registry = map[string]func(configJSON []byte) (Broker, error){}

// New builds a Broker by name from the registry.
func New(name string, configJSON []byte) (Broker, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown broker %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

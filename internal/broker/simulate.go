package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulateBroker fills every order immediately against a caller-fed
// price source, for StrategyExecutions in simulate mode. It never
// sends a network request; no money moves.
type SimulateBroker struct {
	mu     sync.Mutex
	prices PriceSource
	nextID int
}

// PriceSource supplies the fill price a SimulateBroker samples on
// every order and quote call. Tests and the dispatcher's simulate
// path supply a fixed or bar-derived implementation.
type PriceSource interface {
	Price(ctx context.Context, symbol, exchange string) (float64, error)
}

// FixedPrice is a PriceSource returning the same price for every
// symbol, used by the seeded end-to-end chain-progression scenario.
type FixedPrice float64

func (f FixedPrice) Price(context.Context, string, string) (float64, error) { return float64(f), nil }

// NewSimulateBroker creates a SimulateBroker sampling fills from src.
func NewSimulateBroker(src PriceSource) *SimulateBroker {
	return &SimulateBroker{prices: src}
}

func (s *SimulateBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	price, err := s.prices.Price(ctx, req.Symbol, req.Exchange)
	if err != nil {
		return nil, fmt.Errorf("broker: simulate place order: %w", err)
	}
	if price <= 0 {
		return &OrderResult{Success: false, Status: StatusRejected, Error: "non-positive simulated price"}, nil
	}

	s.mu.Lock()
	s.nextID++
	orderID := fmt.Sprintf("SIM-%d", s.nextID)
	s.mu.Unlock()

	now := time.Now()
	res := &OrderResult{
		Success:           true,
		OrderID:           orderID,
		Status:            StatusComplete,
		PricePerShare:     price,
		OrderTimestamp:    now,
		ExchangeTimestamp: now,
	}

	switch req.Side {
	case Buy:
		if req.Money <= 0 {
			return &OrderResult{Success: false, Status: StatusRejected, Error: "simulate buy requires positive money"}, nil
		}
		qty := int(req.Money / price)
		if qty <= 0 {
			return &OrderResult{Success: false, Status: StatusRejected, Error: "insufficient money for one share"}, nil
		}
		res.SharesBought = qty
		res.TotalAmount = price * float64(qty)
		res.MoneyProvided = req.Money
		res.MoneyRemaining = req.Money - res.TotalAmount
	case Sell:
		if req.Quantity <= 0 {
			return &OrderResult{Success: false, Status: StatusRejected, Error: "simulate sell requires positive quantity"}, nil
		}
		res.SharesSold = req.Quantity
		res.TotalAmount = price * float64(req.Quantity)
	}
	return res, nil
}

func (s *SimulateBroker) GetQuote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	price, err := s.prices.Price(ctx, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("broker: simulate get quote: %w", err)
	}
	return &Quote{LastPrice: price, Open: price, High: price, Low: price, Close: price, Timestamp: time.Now()}, nil
}

func (s *SimulateBroker) GetLTP(ctx context.Context, symbol, exchange string) (*LTP, error) {
	price, err := s.prices.Price(ctx, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("broker: simulate get ltp: %w", err)
	}
	return &LTP{LastPrice: price}, nil
}

func (s *SimulateBroker) PlaceGTT(ctx context.Context, req GTTRequest) (string, error) {
	if err := ValidateOCO(req); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()
	return fmt.Sprintf("SIM-GTT-%d", id), nil
}

func (s *SimulateBroker) ListInstruments(ctx context.Context, exchange string) ([]Instrument, error) {
	return nil, nil
}

func init() {
	Registry["simulate"] = func(configJSON []byte) (Broker, error) {
		return NewSimulateBroker(FixedPrice(100)), nil
	}
}

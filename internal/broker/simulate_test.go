package broker

import (
	"context"
	"testing"
)

func TestSimulateBroker_Buy(t *testing.T) {
	b := NewSimulateBroker(FixedPrice(100))
	res, err := b.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "INFY", Exchange: "NSE", Side: Buy, Money: 1000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Status != StatusComplete {
		t.Fatalf("expected completed fill, got %+v", res)
	}
	if res.SharesBought != 10 {
		t.Errorf("expected 10 shares bought, got %d", res.SharesBought)
	}
	if res.MoneyRemaining != 0 {
		t.Errorf("expected no remaining money, got %v", res.MoneyRemaining)
	}
}

func TestSimulateBroker_Sell(t *testing.T) {
	b := NewSimulateBroker(FixedPrice(102))
	res, err := b.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "INFY", Exchange: "NSE", Side: Sell, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SharesSold != 10 {
		t.Errorf("expected 10 shares sold, got %d", res.SharesSold)
	}
	if res.TotalAmount != 1020 {
		t.Errorf("expected total amount 1020, got %v", res.TotalAmount)
	}
}

func TestSimulateBroker_BuyInsufficientMoneyForOneShare(t *testing.T) {
	b := NewSimulateBroker(FixedPrice(1000))
	res, err := b.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "INFY", Exchange: "NSE", Side: Buy, Money: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected rejection when money cannot buy one share")
	}
}

func TestSimulateBroker_PlaceGTT_ValidatesOCO(t *testing.T) {
	b := NewSimulateBroker(FixedPrice(100))
	_, err := b.PlaceGTT(context.Background(), GTTRequest{
		Type:          GTTOCO,
		TriggerValues: []float64{110, 120},
		LastPrice:     100,
	})
	if err == nil {
		t.Error("expected validation error for stoploss above last price")
	}
}

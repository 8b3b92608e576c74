// Package broker - kite.go implements Broker against Zerodha Kite
// Connect.
//
// Kite Connect:
//   - Base URL: https://api.kite.trade
//   - Auth: Authorization: token api_key:access_token, plus X-Kite-Version
//   - Orders: POST /orders/{variety}, GET /orders/{order_id}
//   - GTT: POST /gtt/triggers
//   - Quotes: GET /quote, GET /quote/ltp
//   - Rate limit: roughly 3 req/sec for order placement
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const kiteVersion = "3"

// KiteConfig holds Kite Connect credentials and tuning knobs.
type KiteConfig struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	AccessToken string `json:"access_token"`
	BaseURL     string `json:"base_url"`
	// PollInterval governs how often PlaceOrder checks order status
	// while waiting for a terminal state. It is read from the JSON key
	// poll_interval_seconds and defaults to one second.
	PollInterval time.Duration `json:"-"`
	// Reauthenticate is called on a 401 to mint a fresh access token.
	// Left nil, a 401 is returned to the caller as a terminal error —
	// deployments that support unattended token refresh supply this.
	Reauthenticate func(ctx context.Context, cfg *KiteConfig) error `json:"-"`
}

// KiteBroker implements Broker against the Kite Connect HTTP API.
type KiteBroker struct {
	mu     sync.RWMutex
	config KiteConfig
	client *http.Client
}

func init() {
	Registry["kite"] = NewKiteBroker
}

// NewKiteBroker builds a KiteBroker from JSON configuration.
func NewKiteBroker(configJSON []byte) (Broker, error) {
	var cfg KiteConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, fmt.Errorf("kite broker: parse config: %w", err)
	}
	var poll struct {
		PollIntervalSeconds int `json:"poll_interval_seconds"`
	}
	if err := json.Unmarshal(configJSON, &poll); err == nil && poll.PollIntervalSeconds > 0 {
		cfg.PollInterval = time.Duration(poll.PollIntervalSeconds) * time.Second
	}
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("kite broker: api_key and access_token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kite.trade"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &KiteBroker{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type kiteErrorResp struct {
	Status    string `json:"status"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

type kiteEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// doRequest performs one authenticated call, re-authenticating and
// retrying exactly once on a 401 if Reauthenticate is configured.
func (k *KiteBroker) doRequest(ctx context.Context, method, path string, form url.Values) (json.RawMessage, error) {
	data, err := k.doRequestOnce(ctx, method, path, form)
	if err == nil {
		return data, nil
	}
	if !isUnauthorized(err) {
		return nil, err
	}

	k.mu.RLock()
	reauth := k.config.Reauthenticate
	k.mu.RUnlock()
	if reauth == nil {
		return nil, err
	}

	k.mu.Lock()
	reauthErr := reauth(ctx, &k.config)
	k.mu.Unlock()
	if reauthErr != nil {
		return nil, fmt.Errorf("kite broker: reauthenticate after 401: %w", reauthErr)
	}
	return k.doRequestOnce(ctx, method, path, form)
}

type unauthorizedError struct{ msg string }

func (e *unauthorizedError) Error() string { return e.msg }

func isUnauthorized(err error) bool {
	_, ok := err.(*unauthorizedError)
	return ok
}

func (k *KiteBroker) doRequestOnce(ctx context.Context, method, path string, form url.Values) (json.RawMessage, error) {
	k.mu.RLock()
	cfg := k.config
	k.mu.RUnlock()

	var bodyReader io.Reader
	fullURL := cfg.BaseURL + path
	if method == http.MethodGet && form != nil {
		fullURL += "?" + form.Encode()
	} else if form != nil {
		bodyReader = bytes.NewBufferString(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("kite broker: create request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", cfg.APIKey, cfg.AccessToken))

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kite broker: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kite broker: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &unauthorizedError{msg: "kite broker: access token expired or invalid (401)"}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("kite broker: rate limited (429)")
	}
	if resp.StatusCode >= 400 {
		var kiteErr kiteErrorResp
		if json.Unmarshal(respBody, &kiteErr) == nil && kiteErr.Message != "" {
			return nil, fmt.Errorf("kite broker: %s (%s)", kiteErr.Message, kiteErr.ErrorType)
		}
		return nil, fmt.Errorf("kite broker: http %d: %s", resp.StatusCode, string(respBody))
	}

	var env kiteEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("kite broker: parse envelope: %w", err)
	}
	return env.Data, nil
}

type kiteOrderResp struct {
	OrderID string `json:"order_id"`
}

type kiteOrderDetail struct {
	OrderID            string  `json:"order_id"`
	Status             string  `json:"status"`
	FilledQuantity     int     `json:"filled_quantity"`
	AveragePrice       float64 `json:"average_price"`
	StatusMessage      string  `json:"status_message"`
	ExchangeTimestamp  string  `json:"exchange_timestamp"`
	OrderTimestamp     string  `json:"order_timestamp"`
	TransactionType    string  `json:"transaction_type"`
}

func mapKiteStatus(s string) OrderStatus {
	switch s {
	case "COMPLETE":
		return StatusComplete
	case "REJECTED":
		return StatusRejected
	case "CANCELLED":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// PlaceOrder submits a regular order and polls GET /orders/{id} until
// it reaches a terminal status or 30 seconds elapse.
func (k *KiteBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	variety := string(req.Variety)
	if variety == "" {
		variety = string(VarietyRegular)
	}

	form := url.Values{}
	form.Set("tradingsymbol", req.Symbol)
	form.Set("exchange", req.Exchange)
	form.Set("transaction_type", kiteTransactionType(req.Side))
	form.Set("order_type", kiteOrderType(req.Kind))
	form.Set("product", kiteProduct(req.Product))
	form.Set("validity", "DAY")
	switch req.Side {
	case Buy:
		ltp, err := k.GetLTP(ctx, req.Symbol, req.Exchange)
		if err != nil {
			return nil, fmt.Errorf("kite broker: place order: resolve quantity from money: %w", err)
		}
		if ltp.LastPrice <= 0 {
			return nil, fmt.Errorf("kite broker: place order: non-positive last price for %s", req.Symbol)
		}
		qty := int(req.Money / ltp.LastPrice)
		if qty <= 0 {
			return &OrderResult{Success: false, Status: StatusRejected, Error: "insufficient money for one share"}, nil
		}
		form.Set("quantity", strconv.Itoa(qty))
	case Sell:
		form.Set("quantity", strconv.Itoa(req.Quantity))
	}

	data, err := k.doRequest(ctx, http.MethodPost, "/orders/"+variety, form)
	if err != nil {
		return &OrderResult{Success: false, Status: StatusRejected, Error: err.Error()}, nil
	}
	var placed kiteOrderResp
	if err := json.Unmarshal(data, &placed); err != nil {
		return nil, fmt.Errorf("kite broker: parse place order response: %w", err)
	}

	return k.waitForTerminal(ctx, placed.OrderID, req)
}

func (k *KiteBroker) waitForTerminal(ctx context.Context, orderID string, req OrderRequest) (*OrderResult, error) {
	deadline := time.Now().Add(30 * time.Second)
	k.mu.RLock()
	interval := k.config.PollInterval
	k.mu.RUnlock()

	for {
		data, err := k.doRequest(ctx, http.MethodGet, "/orders/"+orderID, nil)
		if err != nil {
			return &OrderResult{Success: false, OrderID: orderID, Status: StatusRejected, Error: err.Error()}, nil
		}
		var details []kiteOrderDetail
		if err := json.Unmarshal(data, &details); err != nil {
			return nil, fmt.Errorf("kite broker: parse order status: %w", err)
		}
		if len(details) == 0 {
			return &OrderResult{Success: false, OrderID: orderID, Status: StatusRejected, Error: "no order history returned"}, nil
		}
		latest := details[len(details)-1]
		status := mapKiteStatus(latest.Status)

		if status.Terminal() {
			return buildOrderResult(orderID, status, latest, req), nil
		}
		if time.Now().After(deadline) {
			return &OrderResult{Success: false, OrderID: orderID, Status: StatusTimeout, Error: "order did not reach terminal status within 30s"}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func buildOrderResult(orderID string, status OrderStatus, detail kiteOrderDetail, req OrderRequest) *OrderResult {
	res := &OrderResult{
		OrderID:       orderID,
		Status:        status,
		Success:       status == StatusComplete,
		PricePerShare: detail.AveragePrice,
		TotalAmount:   detail.AveragePrice * float64(detail.FilledQuantity),
		Error:         detail.StatusMessage,
	}
	if t, err := time.Parse("2006-01-02 15:04:05", detail.ExchangeTimestamp); err == nil {
		res.ExchangeTimestamp = t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", detail.OrderTimestamp); err == nil {
		res.OrderTimestamp = t
	}
	switch req.Side {
	case Buy:
		res.SharesBought = detail.FilledQuantity
		res.MoneyProvided = req.Money
		res.MoneyRemaining = req.Money - res.TotalAmount
	case Sell:
		res.SharesSold = detail.FilledQuantity
	}
	return res
}

func kiteTransactionType(s Side) string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

func kiteOrderType(k OrderKind) string {
	if k == OrderKindLimit {
		return "LIMIT"
	}
	return "MARKET"
}

func kiteProduct(p Product) string {
	if p == ProductMargin {
		return "MIS"
	}
	return "CNC"
}

type kiteDepthLevel struct {
	Price float64 `json:"price"`
}

type kiteQuoteResp struct {
	LastPrice float64 `json:"last_price"`
	OHLC      struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
	Volume int64 `json:"volume"`
	Depth  struct {
		Buy  []kiteDepthLevel `json:"buy"`
		Sell []kiteDepthLevel `json:"sell"`
	} `json:"depth"`
	Timestamp string `json:"timestamp"`
}

func (k *KiteBroker) GetQuote(ctx context.Context, symbol, exchange string) (*Quote, error) {
	key := exchange + ":" + symbol
	form := url.Values{"i": []string{key}}
	data, err := k.doRequest(ctx, http.MethodGet, "/quote", form)
	if err != nil {
		return nil, fmt.Errorf("kite broker: get quote: %w", err)
	}
	var byKey map[string]kiteQuoteResp
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("kite broker: parse quote: %w", err)
	}
	q, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("kite broker: no quote returned for %s", key)
	}
	result := &Quote{
		LastPrice: q.LastPrice,
		Open:      q.OHLC.Open,
		High:      q.OHLC.High,
		Low:       q.OHLC.Low,
		Close:     q.OHLC.Close,
		Volume:    q.Volume,
	}
	if len(q.Depth.Buy) > 0 {
		result.Bid = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		result.Ask = q.Depth.Sell[0].Price
	}
	if t, err := time.Parse("2006-01-02 15:04:05", q.Timestamp); err == nil {
		result.Timestamp = t
	}
	return result, nil
}

type kiteLTPResp struct {
	LastPrice float64 `json:"last_price"`
}

func (k *KiteBroker) GetLTP(ctx context.Context, symbol, exchange string) (*LTP, error) {
	key := exchange + ":" + symbol
	form := url.Values{"i": []string{key}}
	data, err := k.doRequest(ctx, http.MethodGet, "/quote/ltp", form)
	if err != nil {
		return nil, fmt.Errorf("kite broker: get ltp: %w", err)
	}
	var byKey map[string]kiteLTPResp
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("kite broker: parse ltp: %w", err)
	}
	v, ok := byKey[key]
	if !ok {
		return nil, fmt.Errorf("kite broker: no ltp returned for %s", key)
	}
	return &LTP{LastPrice: v.LastPrice}, nil
}

type kiteGTTResp struct {
	TriggerID int `json:"trigger_id"`
}

func (k *KiteBroker) PlaceGTT(ctx context.Context, req GTTRequest) (string, error) {
	if err := ValidateOCO(req); err != nil {
		return "", err
	}

	legs := make([]map[string]any, 0, len(req.Legs))
	for _, leg := range req.Legs {
		legs = append(legs, map[string]any{
			"transaction_type": kiteTransactionType(leg.TransactionType),
			"quantity":         leg.Quantity,
			"order_type":       kiteOrderType(leg.OrderKind),
			"product":          "CNC",
			"price":            leg.Price,
		})
	}
	orders, err := json.Marshal(legs)
	if err != nil {
		return "", fmt.Errorf("kite broker: marshal gtt legs: %w", err)
	}
	triggerValues, err := json.Marshal(req.TriggerValues)
	if err != nil {
		return "", fmt.Errorf("kite broker: marshal gtt triggers: %w", err)
	}
	condition, err := json.Marshal(map[string]any{
		"exchange":       req.Exchange,
		"tradingsymbol":  req.Symbol,
		"trigger_values": json.RawMessage(triggerValues),
		"last_price":     req.LastPrice,
	})
	if err != nil {
		return "", fmt.Errorf("kite broker: marshal gtt condition: %w", err)
	}

	form := url.Values{}
	form.Set("type", string(req.Type))
	form.Set("condition", string(condition))
	form.Set("orders", string(orders))

	data, err := k.doRequest(ctx, http.MethodPost, "/gtt/triggers", form)
	if err != nil {
		return "", fmt.Errorf("kite broker: place gtt: %w", err)
	}
	var resp kiteGTTResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("kite broker: parse gtt response: %w", err)
	}
	return strconv.Itoa(resp.TriggerID), nil
}

type kiteInstrumentResp struct {
	TradingSymbol   string `json:"tradingsymbol"`
	InstrumentToken string `json:"instrument_token"`
	Exchange        string `json:"exchange"`
}

func (k *KiteBroker) ListInstruments(ctx context.Context, exchange string) ([]Instrument, error) {
	data, err := k.doRequest(ctx, http.MethodGet, "/instruments/"+exchange, nil)
	if err != nil {
		return nil, fmt.Errorf("kite broker: list instruments: %w", err)
	}
	var raw []kiteInstrumentResp
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("kite broker: parse instruments: %w", err)
	}
	out := make([]Instrument, 0, len(raw))
	for _, r := range raw {
		out = append(out, Instrument{TradingSymbol: r.TradingSymbol, InstrumentToken: r.InstrumentToken, Exchange: r.Exchange})
	}
	return out, nil
}

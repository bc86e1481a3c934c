// Package binance implements the Venue port for Binance spot (binance.com
// and binance.us).
package binance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WebSocket request/response messages

// WSRequest is a WebSocket subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// WSResponse is a WebSocket subscription response.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// StreamEvent is the combined stream wrapper.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerEvent represents best bid/ask update (real-time).
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID int64  `json:"u"` // Order book updateId
	Symbol   string `json:"s"` // Symbol
	BidPrice string `json:"b"` // Best bid price
	BidQty   string `json:"B"` // Best bid qty
	AskPrice string `json:"a"` // Best ask price
	AskQty   string `json:"A"` // Best ask qty
}

// Parse converts the event into decimals.
func (e *BookTickerEvent) Parse() (bid, bidQty, ask, askQty decimal.Decimal, err error) {
	if bid, err = decimal.NewFromString(e.BidPrice); err != nil {
		return
	}
	if bidQty, err = decimal.NewFromString(e.BidQty); err != nil {
		return
	}
	if ask, err = decimal.NewFromString(e.AskPrice); err != nil {
		return
	}
	askQty, err = decimal.NewFromString(e.AskQty)
	return
}

// BookTickerStream returns the stream name for book ticker.
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// REST payloads

// DepthResponse is the REST API response for orderbook depth.
type DepthResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"` // [[price, qty], ...]
	Asks         [][]string `json:"asks"` // [[price, qty], ...]
}

// OrderbookLevel represents a price level in the orderbook.
type OrderbookLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// ParseOrderbookLevels parses raw levels, skipping empty ones.
func ParseOrderbookLevels(raw [][]string) ([]OrderbookLevel, error) {
	levels := make([]OrderbookLevel, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			continue
		}
		levels = append(levels, OrderbookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// ExchangeInfo is the /api/v3/exchangeInfo response.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one spot symbol.
type SymbolInfo struct {
	Symbol               string         `json:"symbol"`
	Status               string         `json:"status"`
	BaseAsset            string         `json:"baseAsset"`
	QuoteAsset           string         `json:"quoteAsset"`
	IsSpotTradingAllowed bool           `json:"isSpotTradingAllowed"`
	Filters              []SymbolFilter `json:"filters"`
}

// SymbolFilter is one trading rule. Only the fields used here are decoded.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	TickSize    string `json:"tickSize"`
	StepSize    string `json:"stepSize"`
	MinQty      string `json:"minQty"`
	MinNotional string `json:"minNotional"`
}

// AccountResponse is the /api/v3/account response.
type AccountResponse struct {
	Balances []Balance `json:"balances"`
}

// Balance is one asset balance.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// OrderResponse is returned by order placement, query and cancel.
type OrderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Side                string `json:"side"`
}

// Trade is one entry of /api/v3/myTrades.
type Trade struct {
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Symbol          string `json:"symbol"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
}

// DepositRecord is one entry of the deposit history.
type DepositRecord struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Coin       string `json:"coin"`
	Network    string `json:"network"`
	Status     int    `json:"status"`
	Address    string `json:"address"`
	TxID       string `json:"txId"`
	InsertTime int64  `json:"insertTime"`
}

// WithdrawRecord is one entry of the withdrawal history.
type WithdrawRecord struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	TransactionFee string `json:"transactionFee"`
	Coin           string `json:"coin"`
	Network        string `json:"network"`
	Status         int    `json:"status"`
	Address        string `json:"address"`
	TxID           string `json:"txId"`
	ApplyTime      string `json:"applyTime"`
}

// WithdrawResponse is the withdraw/apply response.
type WithdrawResponse struct {
	ID string `json:"id"`
}

// DepositAddressResponse is the deposit/address response.
type DepositAddressResponse struct {
	Address string `json:"address"`
	Coin    string `json:"coin"`
	Tag     string `json:"tag"`
}

// BinanceAPIError represents an error response from Binance API.
type BinanceAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *BinanceAPIError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

// Binance error codes handled explicitly.
const (
	errCodeUnknownOrder        = -2011
	errCodeNoSuchOrder         = -2013
	errCodeInsufficientBalance = -2010
	errCodeTooManyRequests     = -1003
)

// binanceErrorHandler parses Binance API error responses.
func binanceErrorHandler(statusCode int, body []byte) error {
	if statusCode >= 400 {
		var apiErr BinanceAPIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
	return nil
}

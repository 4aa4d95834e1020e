// Package matching implements the per-shard matching engine: request
// validation, price-time priority matching against domain/orderbook,
// settlement against domain/ledger, and durable event emission (spec
// §3, §4.3). It is the single-writer owner of its shard's orderbooks
// and ledger partition — every exported Engine method must be called
// from one goroutine per shard (spec §5).
package matching

import "github.com/thecurioussailor/exchangecore/domain/orderbook"

// RequestKind discriminates the wire request envelope (spec §6.1).
type RequestKind string

const (
	KindPlaceOrder  RequestKind = "PlaceOrder"
	KindCancelOrder RequestKind = "CancelOrder"
	KindDeposit     RequestKind = "Deposit"
	KindWithdraw    RequestKind = "Withdraw"
	KindLookup      RequestKind = "Lookup"
)

// PlaceOrderRequest places a new limit or market order. A Buy Market
// order carries no notional cap of its own: it locks and spends the
// user's entire available quote balance, bounding its own spend, so
// Quantity (base units) is the only amount field and is ignored for
// that one case (spec §4.3).
type PlaceOrderRequest struct {
	RequestID string              `json:"request_id"`
	UserID    string              `json:"user_id"`
	MarketID  string              `json:"market_id"`
	Side      orderbook.Side      `json:"side"`
	Kind      orderbook.OrderKind `json:"kind"`
	Price     int64               `json:"price,omitempty"` // ticks; required for Limit
	Quantity  int64               `json:"quantity"`        // atomic base units; ignored for Buy Market
}

// CancelOrderRequest cancels a resting order owned by UserID.
type CancelOrderRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	MarketID  string `json:"market_id"`
	OrderID   string `json:"order_id"`
}

// DepositRequest credits available balance (spec SUPPLEMENT: external
// funding entry point, no corresponding withdrawal risk check beyond
// the ledger's own invariants).
type DepositRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	TokenID   string `json:"token_id"`
	Amount    int64  `json:"amount"`
}

// WithdrawRequest debits available balance.
type WithdrawRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	TokenID   string `json:"token_id"`
	Amount    int64  `json:"amount"`
}

// LookupRequest retrieves a previously-cached response by request_id,
// used when a gateway cannot tell whether its original send landed
// (spec §4.3: dedup window query, UnknownRequest outside the window).
type LookupRequest struct {
	UserID    string `json:"user_id"`
	RequestID string `json:"request_id"`
}

// TradeFill describes one match leg contributing to a response.
type TradeFill struct {
	TradeID      string `json:"trade_id"`
	CounterOrder string `json:"counter_order_id"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
}

// Response is the uniform reply for PlaceOrder/CancelOrder/Deposit/
// Withdraw (spec §6.1): accepted requests carry order/fill detail,
// rejected requests carry an error kind and message.
type Response struct {
	RequestID         string      `json:"request_id"`
	Accepted          bool        `json:"accepted"`
	ErrorKind         string      `json:"error_kind,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	OrderID           string      `json:"order_id,omitempty"`
	Status            string      `json:"status,omitempty"`
	FilledQuantity    int64       `json:"filled_quantity,omitempty"`
	RemainingQuantity int64       `json:"remaining_quantity,omitempty"`
	AveragePrice      int64       `json:"average_price,omitempty"`
	Trades            []TradeFill `json:"trades,omitempty"`
}

func rejected(requestID string, kind, message string) Response {
	return Response{RequestID: requestID, Accepted: false, ErrorKind: kind, ErrorMessage: message}
}

// Package event defines the durable, ordered event envelope emitted by
// the matching engine (spec §3, §6.2). Replaying seq-ordered events
// from zero must reconstruct all persisted entities exactly, so every
// payload here is a plain, JSON-serializable struct — no interfaces,
// no pointers to engine-internal state.
package event

import "encoding/json"

type Kind string

const (
	OrderAccepted  Kind = "OrderAccepted"
	OrderRejected  Kind = "OrderRejected"
	OrderRested    Kind = "OrderRested"
	OrderFilled    Kind = "OrderFilled"
	OrderCancelled Kind = "OrderCancelled"
	TradeExecuted  Kind = "TradeExecuted"
	BalanceChanged Kind = "BalanceChanged"
	MarketHalted   Kind = "MarketHalted"
	MarketUnhalted Kind = "MarketUnhalted"
)

// Envelope is the framed record described in spec §6.2:
// { seq, ts, shard, kind, payload }.
type Envelope struct {
	Seq     uint64          `json:"seq"`
	TsNanos int64           `json:"ts"`
	Shard   int             `json:"shard"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(seq uint64, tsNanos int64, shard int, kind Kind, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Seq: seq, TsNanos: tsNanos, Shard: shard, Kind: kind, Payload: raw}, nil
}

// ---- Payload shapes, one per Kind ----

type OrderAcceptedPayload struct {
	OrderID    string `json:"order_id"`
	RequestID  string `json:"request_id"`
	UserID     string `json:"user_id"`
	MarketID   string `json:"market_id"`
	Side       string `json:"side"`
	Kind       string `json:"kind"`
	Price      int64  `json:"price,omitempty"`
	Quantity   int64  `json:"quantity"`
	Status     string `json:"status"`
	ArrivalSeq uint64 `json:"arrival_seq"`
}

type OrderRejectedPayload struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	MarketID  string `json:"market_id"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// OrderRestedPayload is emitted exactly when a Limit order's unfilled
// remainder is inserted into the book, i.e. the depth delta a resting
// order actually contributes — distinct from OrderAccepted, which
// fires before matching and carries the order's original requested
// quantity, not what ends up resting. The market-data aggregator adds
// Quantity at (Side, Price) on this event and never touches depth on
// OrderAccepted.
type OrderRestedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	MarketID   string `json:"market_id"`
	Side       string `json:"side"`
	Price      int64  `json:"price"`
	Quantity   int64  `json:"quantity"`
	ArrivalSeq uint64 `json:"arrival_seq"`
}

type OrderFilledPayload struct {
	OrderID           string `json:"order_id"`
	MarketID          string `json:"market_id"`
	FilledQuantity    int64  `json:"filled_quantity"`
	RemainingQuantity int64  `json:"remaining_quantity"`
	Status            string `json:"status"`
}

type OrderCancelledPayload struct {
	OrderID           string `json:"order_id"`
	MarketID          string `json:"market_id"`
	UserID            string `json:"user_id"`
	Side              string `json:"side"`
	Price             int64  `json:"price"`
	RemainingQuantity int64  `json:"remaining_quantity"`
}

// TradeExecutedPayload names the maker side explicitly (MakerOrderID,
// MakerSide) rather than leaving a consumer to infer it: trade price
// always equals the maker's resting price (price improvement accrues
// to the taker, spec §4.3), so depth consumers decrement exactly
// (MakerSide, Price) by Quantity and never need to guess which side
// was already resting.
type TradeExecutedPayload struct {
	TradeID      string `json:"trade_id"`
	MarketID     string `json:"market_id"`
	BuyOrderID   string `json:"buyer_order_id"`
	SellOrderID  string `json:"seller_order_id"`
	BuyerUser    string `json:"buyer_user"`
	SellerUser   string `json:"seller_user"`
	MakerOrderID string `json:"maker_order_id"`
	MakerSide    string `json:"maker_side"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	TsNanos      int64  `json:"timestamp"`
}

type BalanceChangedPayload struct {
	UserID        string `json:"user_id"`
	TokenID       string `json:"token_id"`
	PreAvailable  int64  `json:"pre_available"`
	PreLocked     int64  `json:"pre_locked"`
	PostAvailable int64  `json:"post_available"`
	PostLocked    int64  `json:"post_locked"`
	Reason        string `json:"reason"`
}

type MarketHaltedPayload struct {
	MarketID string `json:"market_id"`
	Reason   string `json:"reason"`
}

// MarketUnhaltedPayload records an operator clearing a halt (spec §4.3
// Failure semantics: "refuse further requests... until an operator
// intervenes"), so replay reproduces the cleared state rather than
// leaving the market halted forever after a restart.
type MarketUnhaltedPayload struct {
	MarketID string `json:"market_id"`
}

// Sink is implemented by anything that can durably append events in
// order (the request bus's event channel, in practice). Matching code
// depends only on this interface, never on the transport.
type Sink interface {
	Append(kind Kind, payload any) error
}

package matching

import (
	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
)

// CancelOrder removes a resting order and unlocks whatever funds were
// backing its unfilled remainder. Orders already in a terminal state
// (Filled/Cancelled) cannot be cancelled again (spec §4.3,
// errkind.OrderTerminal).
func (e *Engine) CancelOrder(req CancelOrderRequest) Response {
	if resp, ok := e.cacheOrReplay(req.UserID, req.RequestID); ok {
		return resp
	}
	resp := e.cancelOrder(req)
	e.storeResponse(req.UserID, req.RequestID, resp)
	return resp
}

func (e *Engine) rejectCancel(req CancelOrderRequest, err error) Response {
	kind, msg := kindMessage(err)
	_ = e.emit(event.OrderRejected, event.OrderRejectedPayload{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		MarketID:  req.MarketID,
		Reason:    kind,
		Message:   msg,
	})
	return rejected(req.RequestID, kind, msg)
}

func (e *Engine) cancelOrder(req CancelOrderRequest) Response {
	marketID := market.MarketID(req.MarketID)

	if reason, ok := e.isHalted(marketID); ok {
		return e.rejectCancel(req, errkind.New(errkind.MarketHalted, "market halted: "+reason))
	}

	m, err := e.registry.Market(marketID)
	if err != nil {
		return e.rejectCancel(req, err)
	}

	book := e.book(marketID)
	if !book.Contains(req.OrderID) {
		// Not resting. Either this order_id never existed, or it
		// reached a terminal state (Filled/Cancelled, or a Market order
		// that never rests at all) and was evicted from the live index
		// — MarkTerminal keeps a record past that point so the two
		// cases are distinguishable.
		if ownerID, _, ok := book.TerminalStatus(req.OrderID); ok {
			if ownerID != req.UserID {
				return e.rejectCancel(req, errkind.New(errkind.NotOwner, "order belongs to a different user"))
			}
			return e.rejectCancel(req, errkind.New(errkind.OrderTerminal, "order already in a terminal state"))
		}
		return e.rejectCancel(req, errkind.New(errkind.UnknownOrder, "order not found: "+req.OrderID))
	}

	o, ok := book.Remove(req.OrderID)
	if !ok {
		return e.rejectCancel(req, errkind.New(errkind.UnknownOrder, "order not found: "+req.OrderID))
	}
	if o.UserID != req.UserID {
		// put it back — this request was never authorized to remove it.
		book.Insert(o)
		return e.rejectCancel(req, errkind.New(errkind.NotOwner, "order belongs to a different user"))
	}

	remaining := o.Remaining()
	refundToken := ledger.TokenID(m.QuoteToken)
	refundAmount := remaining
	if o.Side == orderbook.Sell {
		refundToken = ledger.TokenID(m.BaseToken)
	} else {
		refundAmount = quoteAmount(m, o.Price, remaining)
	}

	if err := e.ledger.Unlock(ledger.UserID(o.UserID), refundToken, refundAmount, "cancel:"+o.ID); err != nil {
		e.halt(marketID, "unlock failed during cancel: "+err.Error())
		return Response{
			RequestID:    req.RequestID,
			Accepted:     false,
			ErrorKind:    string(errkind.MarketHalted),
			ErrorMessage: "market halted due to a fatal invariant violation during cancel",
			OrderID:      o.ID,
		}
	}

	o.Status = orderbook.Cancelled
	book.MarkTerminal(o.ID, o.UserID, o.Status)

	_ = e.emit(event.OrderCancelled, event.OrderCancelledPayload{
		OrderID:           o.ID,
		MarketID:          req.MarketID,
		UserID:            o.UserID,
		Side:              o.Side.String(),
		Price:             o.Price,
		RemainingQuantity: remaining,
	})

	resp := Response{
		RequestID:         req.RequestID,
		Accepted:          true,
		OrderID:           o.ID,
		Status:            o.Status.String(),
		FilledQuantity:    o.Filled,
		RemainingQuantity: remaining,
	}

	e.pool(marketID).Retire(o)
	e.maybeReclaim()

	return resp
}

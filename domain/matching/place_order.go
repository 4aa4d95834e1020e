package matching

import (
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
)

// PlaceOrder validates, locks, matches, and settles a new order. It is
// idempotent on RequestID within the dedup window.
func (e *Engine) PlaceOrder(req PlaceOrderRequest) Response {
	if resp, ok := e.cacheOrReplay(req.UserID, req.RequestID); ok {
		return resp
	}
	resp := e.placeOrder(req)
	e.storeResponse(req.UserID, req.RequestID, resp)
	return resp
}

func (e *Engine) rejectOrder(req PlaceOrderRequest, err error) Response {
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

func validatePlaceOrder(req PlaceOrderRequest, m *market.Market) error {
	if req.RequestID == "" || req.UserID == "" {
		return errkind.New(errkind.InvalidRequest, "request_id and user_id are required")
	}
	switch req.Kind {
	case orderbook.Limit:
		if req.Price <= 0 {
			return errkind.New(errkind.InvalidRequest, "limit order requires price > 0")
		}
		if req.Price%m.TickSize != 0 {
			return errkind.New(errkind.TickMisaligned, "price is not a multiple of the market tick size")
		}
		if req.Quantity <= 0 {
			return errkind.New(errkind.InvalidRequest, "quantity must be > 0")
		}
		if req.Quantity < m.MinOrderSize {
			return errkind.New(errkind.BelowMinOrderSize, "quantity below market minimum order size")
		}
	case orderbook.Market:
		if req.Side == orderbook.Sell {
			if req.Quantity <= 0 {
				return errkind.New(errkind.InvalidRequest, "market sell requires quantity > 0")
			}
			if req.Quantity < m.MinOrderSize {
				return errkind.New(errkind.BelowMinOrderSize, "quantity below market minimum order size")
			}
		}
		// Buy Market carries no amount field of its own — it spends the
		// caller's whole available quote balance (checked once that
		// balance is known, below), so there's nothing to validate here.
	default:
		return errkind.New(errkind.InvalidRequest, "unknown order kind")
	}
	return nil
}

func statusFromFill(filled int64) orderbook.Status {
	if filled == 0 {
		return orderbook.Pending
	}
	return orderbook.PartiallyFilled
}

func marketFinalStatus(filled int64) orderbook.Status {
	if filled > 0 {
		return orderbook.Filled
	}
	return orderbook.Cancelled
}

func (e *Engine) placeOrder(req PlaceOrderRequest) Response {
	marketID := market.MarketID(req.MarketID)

	if reason, ok := e.isHalted(marketID); ok {
		return e.rejectOrder(req, errkind.New(errkind.MarketHalted, "market halted: "+reason))
	}

	m, err := e.registry.ActiveMarket(marketID)
	if err != nil {
		return e.rejectOrder(req, err)
	}
	if err := validatePlaceOrder(req, m); err != nil {
		return e.rejectOrder(req, err)
	}

	userID := ledger.UserID(req.UserID)
	baseToken := ledger.TokenID(m.BaseToken)
	quoteToken := ledger.TokenID(m.QuoteToken)

	var lockAmount int64
	var lockToken ledger.TokenID
	switch {
	case req.Side == orderbook.Sell:
		lockAmount = req.Quantity
		lockToken = baseToken
	case req.Kind == orderbook.Limit:
		lockAmount = quoteAmount(m, req.Price, req.Quantity)
		lockToken = quoteToken
	default: // Buy Market: bounded spend is the caller's entire
		// available quote balance, not a caller-supplied cap (spec §4.3).
		lockToken = quoteToken
		lockAmount = e.ledger.Snapshot(userID, quoteToken).Available
		if lockAmount <= 0 {
			return e.rejectOrder(req, errkind.New(errkind.InsufficientAvailable, "no available quote balance to lock for market buy"))
		}
	}

	orderID := newID()
	arrivalSeq := e.arrival.Next()

	if err := e.ledger.Lock(userID, lockToken, lockAmount, "order_lock:"+orderID); err != nil {
		return e.rejectOrder(req, err)
	}

	order := e.pool(marketID).New()
	order.ID = orderID
	order.UserID = req.UserID
	order.Side = req.Side
	order.Kind = req.Kind
	order.Price = req.Price
	order.Quantity = req.Quantity
	order.ArrivalSeq = arrivalSeq
	order.Status = orderbook.Pending

	_ = e.emit(event.OrderAccepted, event.OrderAcceptedPayload{
		OrderID:    orderID,
		RequestID:  req.RequestID,
		UserID:     req.UserID,
		MarketID:   req.MarketID,
		Side:       req.Side.String(),
		Kind:       kindLabel(req.Kind),
		Price:      req.Price,
		Quantity:   req.Quantity,
		Status:     order.Status.String(),
		ArrivalSeq: arrivalSeq,
	})

	book := e.book(marketID)
	counterSide := req.Side.Opposite()

	var trades []TradeFill
	var filledQty int64
	remainingQty := req.Quantity
	remainingQuote := lockAmount

	for {
		best := book.PeekBest(counterSide)
		if best == nil {
			break
		}

		var crosses bool
		switch {
		case req.Kind == orderbook.Market:
			crosses = true
		case req.Side == orderbook.Buy:
			crosses = req.Price >= best.Price
		default:
			crosses = req.Price <= best.Price
		}
		if !crosses {
			break
		}

		tradePrice := best.Price

		var tradeQty int64
		if req.Side == orderbook.Buy && req.Kind == orderbook.Market {
			affordable := maxQtyForQuote(m, tradePrice, remainingQuote)
			tradeQty = min64(best.Remaining(), affordable)
		} else {
			tradeQty = min64(remainingQty, best.Remaining())
		}
		if tradeQty <= 0 {
			break
		}

		quoteAmt := quoteAmount(m, tradePrice, tradeQty)

		// Price improvement refund: a Limit buy taker locked quote at
		// its own (worse-or-equal) price; whatever this fill executes
		// cheaper than that is returned to available immediately.
		if req.Side == orderbook.Buy && req.Kind == orderbook.Limit {
			lockedForQty := quoteAmount(m, req.Price, tradeQty)
			if lockedForQty > quoteAmt {
				_ = e.ledger.Unlock(userID, quoteToken, lockedForQty-quoteAmt, "price_improvement:"+orderID)
			}
		}

		var buyerUser, sellerUser ledger.UserID
		var buyOrderID, sellOrderID string
		if req.Side == orderbook.Buy {
			buyerUser, sellerUser = userID, ledger.UserID(best.UserID)
			buyOrderID, sellOrderID = orderID, best.ID
		} else {
			buyerUser, sellerUser = ledger.UserID(best.UserID), userID
			buyOrderID, sellOrderID = best.ID, orderID
		}

		if err := e.settleTrade(m, buyerUser, sellerUser, quoteAmt, tradeQty, orderID); err != nil {
			e.halt(marketID, "settlement failed mid-match: "+err.Error())
			return e.haltedResponse(req.RequestID, orderID, filledQty, order, trades)
		}

		tradeID := newID()
		trades = append(trades, TradeFill{TradeID: tradeID, CounterOrder: best.ID, Price: tradePrice, Quantity: tradeQty})
		_ = e.emit(event.TradeExecuted, event.TradeExecutedPayload{
			TradeID:      tradeID,
			MarketID:     req.MarketID,
			BuyOrderID:   buyOrderID,
			SellOrderID:  sellOrderID,
			BuyerUser:    string(buyerUser),
			SellerUser:   string(sellerUser),
			MakerOrderID: best.ID,
			MakerSide:    counterSide.String(),
			Price:        tradePrice,
			Quantity:     tradeQty,
			TsNanos:      e.clock.Now().UnixNano(),
		})

		filledQty += tradeQty
		if req.Side == orderbook.Buy && req.Kind == orderbook.Market {
			remainingQuote -= quoteAmt
		} else {
			remainingQty -= tradeQty
		}

		book.DecrementHead(counterSide, tradeQty)
		if head := book.PeekBest(counterSide); head != nil && head.Remaining() == 0 {
			filled := book.PopFilled(counterSide)
			if filled != nil {
				filled.Status = orderbook.Filled
				book.MarkTerminal(filled.ID, filled.UserID, filled.Status)
				_ = e.emit(event.OrderFilled, event.OrderFilledPayload{
					OrderID:           filled.ID,
					MarketID:          req.MarketID,
					FilledQuantity:    filled.Quantity,
					RemainingQuantity: 0,
					Status:            filled.Status.String(),
				})
				e.pool(marketID).Retire(filled)
			}
		}

		if book.Crossed() {
			e.halt(marketID, "book crossed after match")
			return e.haltedResponse(req.RequestID, orderID, filledQty, order, trades)
		}
	}

	switch {
	case req.Kind == orderbook.Limit:
		order.Filled = filledQty
		if remainingQty > 0 {
			order.Status = statusFromFill(filledQty)
			book.Insert(order)
			_ = e.emit(event.OrderRested, event.OrderRestedPayload{
				OrderID:    orderID,
				UserID:     string(userID),
				MarketID:   req.MarketID,
				Side:       req.Side.String(),
				Price:      req.Price,
				Quantity:   remainingQty,
				ArrivalSeq: order.ArrivalSeq,
			})
		} else {
			order.Status = orderbook.Filled
			book.MarkTerminal(orderID, req.UserID, order.Status)
		}
	case req.Side == orderbook.Sell:
		if remainingQty > 0 {
			_ = e.ledger.Unlock(userID, baseToken, remainingQty, "market_sell_unfilled:"+orderID)
		}
		order.Filled = filledQty
		order.Quantity = filledQty
		order.Status = marketFinalStatus(filledQty)
		book.MarkTerminal(orderID, req.UserID, order.Status)
	default: // Buy Market
		order.Status = marketFinalStatus(filledQty)
		if remainingQuote > 0 {
			_ = e.ledger.Unlock(userID, quoteToken, remainingQuote, "market_buy_unused_quote:"+orderID)
		}
		order.Filled = filledQty
		order.Quantity = filledQty
		book.MarkTerminal(orderID, req.UserID, order.Status)
	}

	_ = e.emit(event.OrderFilled, event.OrderFilledPayload{
		OrderID:           orderID,
		MarketID:          req.MarketID,
		FilledQuantity:    order.Filled,
		RemainingQuantity: order.Remaining(),
		Status:            order.Status.String(),
	})

	e.log.Debug("order processed",
		zap.String("order_id", orderID),
		zap.String("market", req.MarketID),
		zap.Int64("filled", order.Filled),
		zap.String("status", order.Status.String()),
	)

	e.maybeReclaim()

	return Response{
		RequestID:         req.RequestID,
		Accepted:          true,
		OrderID:           orderID,
		Status:            order.Status.String(),
		FilledQuantity:    order.Filled,
		RemainingQuantity: order.Remaining(),
		AveragePrice:      averagePrice(trades),
		Trades:            trades,
	}
}

// haltedResponse is returned once a fatal invariant violation has
// already triggered a halt mid-match: callers get back whatever
// trades executed before the halt, flagged as not accepted further
// processing will occur until an operator clears the halt.
func (e *Engine) haltedResponse(requestID, orderID string, filledQty int64, order *orderbook.Order, trades []TradeFill) Response {
	return Response{
		RequestID:      requestID,
		Accepted:       false,
		ErrorKind:      string(errkind.MarketHalted),
		ErrorMessage:   "market halted due to a fatal invariant violation during matching",
		OrderID:        orderID,
		FilledQuantity: filledQty,
		Trades:         trades,
	}
}

func (e *Engine) settleTrade(m *market.Market, buyer, seller ledger.UserID, quoteAmt, qty int64, orderRef string) error {
	base := ledger.TokenID(m.BaseToken)
	quote := ledger.TokenID(m.QuoteToken)

	if err := e.ledger.Settle(buyer, quote, quoteAmt, "trade_settle_buyer:"+orderRef); err != nil {
		return err
	}
	if err := e.ledger.Credit(seller, quote, quoteAmt, "trade_credit_seller:"+orderRef); err != nil {
		return err
	}
	if err := e.ledger.Settle(seller, base, qty, "trade_settle_seller:"+orderRef); err != nil {
		return err
	}
	if err := e.ledger.Credit(buyer, base, qty, "trade_credit_buyer:"+orderRef); err != nil {
		return err
	}
	return nil
}

func kindLabel(k orderbook.OrderKind) string {
	if k == orderbook.Market {
		return "Market"
	}
	return "Limit"
}

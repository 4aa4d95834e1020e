package matching

import (
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
)

// The methods in this file are used exclusively by startup recovery
// (snapshot load + WAL replay, see service/replay.go) to reconstruct
// engine state outside the normal validate/lock/match request path.
// None of them emit events — the events being replayed are the ones
// that produced this state the first time around.

// Ledger exposes the shard's ledger for replay/snapshot access.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// BooksByString returns the shard's orderbooks keyed by market ID
// string, for the snapshot writer/loader which doesn't import
// domain/market.
func (e *Engine) BooksByString() map[string]*orderbook.OrderBook {
	out := make(map[string]*orderbook.OrderBook, len(e.books))
	for id, b := range e.books {
		out[string(id)] = b
	}
	return out
}

func (e *Engine) PoolsByString() map[string]*orderbook.Pool {
	out := make(map[string]*orderbook.Pool, len(e.pools))
	for id, p := range e.pools {
		out[string(id)] = p
	}
	return out
}

// AdoptBook installs a book/pool pair built by the snapshot loader
// (which works in plain strings) back into the shard's market-keyed
// maps.
func (e *Engine) AdoptBook(marketID string, book *orderbook.OrderBook, pool *orderbook.Pool) {
	id := market.MarketID(marketID)
	e.books[id] = book
	e.pools[id] = pool
}

// SeqState reports the current event/arrival sequence positions, for
// the snapshot writer.
func (e *Engine) SeqState() (eventSeq, arrivalSeq uint64) {
	return e.eventSeq.Current(), e.arrival.Current()
}

// RestoreSeq resets both sequencers to a recovered position (loaded
// snapshot or end of WAL replay).
func (e *Engine) RestoreSeq(eventSeq, arrivalSeq uint64) {
	e.eventSeq.Reset(eventSeq)
	e.arrival.Reset(arrivalSeq)
}

// ReplayBalance installs a ledger balance directly from a replayed
// BalanceChanged event's post-state.
func (e *Engine) ReplayBalance(user, token string, bal ledger.Balance) {
	e.ledger.Restore(ledger.UserID(user), ledger.TokenID(token), bal)
}

// ReplayInsertOrder re-inserts a resting order reconstructed from a
// replayed OrderRested event.
func (e *Engine) ReplayInsertOrder(marketID string, o *orderbook.Order) {
	id := market.MarketID(marketID)
	e.book(id).Insert(o)
}

// ReplayDecrementMaker applies a replayed trade's quantity to the
// resting head order of the maker side named by the TradeExecuted
// event (MakerSide) — the maker is always the best head on its side
// since matching takes best-first, so makerOrderID is not looked up.
// Pops and retires it if the decrement fully consumes it.
func (e *Engine) ReplayDecrementMaker(marketID, makerOrderID, makerSide string, qty int64) {
	id := market.MarketID(marketID)
	book := e.book(id)
	side := orderbook.ParseSide(makerSide)

	book.DecrementHead(side, qty)
	if head := book.PeekBest(side); head != nil && head.Remaining() == 0 {
		if filled := book.PopFilled(side); filled != nil {
			filled.Status = orderbook.Filled
			e.pool(id).Retire(filled)
		}
	}
}

// ReplayRemoveOrder removes a resting order reconstructed from a
// replayed OrderCancelled event.
func (e *Engine) ReplayRemoveOrder(marketID, orderID string) {
	id := market.MarketID(marketID)
	if o, ok := e.book(id).Remove(orderID); ok {
		e.pool(id).Retire(o)
	}
}

// ReplayHalt marks a market halted from a replayed MarketHalted event.
func (e *Engine) ReplayHalt(marketID, reason string) {
	e.haltMu.Lock()
	e.halted[market.MarketID(marketID)] = reason
	e.haltMu.Unlock()
}

// ReplayUnhalt clears a market halt from a replayed MarketUnhalted
// event, without re-emitting it.
func (e *Engine) ReplayUnhalt(marketID string) {
	e.haltMu.Lock()
	delete(e.halted, market.MarketID(marketID))
	e.haltMu.Unlock()
}

// IsHalted reports whether a market is currently halted and why, for
// admin tooling (cmd/engine --dump-book, health checks).
func (e *Engine) IsHalted(id market.MarketID) (string, bool) {
	return e.isHalted(id)
}

// Package service wires together the shard's ledger, markets,
// orderbooks, durable WAL/outbox, dedup cache, and matching engine
// into a single runnable unit, and drives startup recovery (snapshot
// load + WAL tail replay) before the engine accepts live requests.
package service

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/matching"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
	"github.com/thecurioussailor/exchangecore/infra/wal/entry"
	"github.com/thecurioussailor/exchangecore/snapshot"
)

// Recover loads the most recent snapshot (if any) into the engine and
// replays every WAL record after the snapshot's event seq, reproducing
// ledger balances and resting orders exactly as they stood before the
// shard last stopped. walDir is scanned in full; records at or before
// the snapshot's event seq are skipped.
func Recover(eng *matching.Engine, snapshotPath, walDir string, log *zap.Logger) error {
	books := eng.BooksByString()
	pools := eng.PoolsByString()
	led := eng.Ledger()

	snapEventSeq, snapArrivalSeq, err := snapshot.Load(snapshotPath, books, pools, led)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	for marketID, book := range books {
		eng.AdoptBook(marketID, book, pools[marketID])
	}
	if snapEventSeq > 0 {
		log.Info("snapshot loaded", zap.Uint64("event_seq", snapEventSeq), zap.Uint64("arrival_seq", snapArrivalSeq))
	}

	r := &replayer{eng: eng, log: log, skipThrough: snapEventSeq}
	lastSeq, err := entry.Replay(walDir, r.apply)
	if err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}

	finalEventSeq := snapEventSeq
	finalArrivalSeq := snapArrivalSeq
	if lastSeq > finalEventSeq {
		finalEventSeq = lastSeq
	}
	if r.maxArrivalSeq > finalArrivalSeq {
		finalArrivalSeq = r.maxArrivalSeq
	}
	eng.RestoreSeq(finalEventSeq, finalArrivalSeq)

	log.Info("recovery complete",
		zap.Uint64("event_seq", finalEventSeq),
		zap.Uint64("arrival_seq", finalArrivalSeq),
		zap.Int("records_replayed", r.count))
	return nil
}

type replayer struct {
	eng           *matching.Engine
	log           *zap.Logger
	skipThrough   uint64
	maxArrivalSeq uint64
	count         int
}

func (r *replayer) apply(rec *entry.Record) error {
	if rec.Type != entry.RecordEvent {
		return nil
	}
	if rec.Seq <= r.skipThrough {
		return nil
	}

	var env event.Envelope
	if err := json.Unmarshal(rec.Data, &env); err != nil {
		return fmt.Errorf("decode envelope at seq %d: %w", rec.Seq, err)
	}
	r.count++

	switch env.Kind {
	case event.OrderRested:
		return r.applyOrderRested(env.Payload)
	case event.TradeExecuted:
		return r.applyTradeExecuted(env.Payload)
	case event.OrderCancelled:
		return r.applyOrderCancelled(env.Payload)
	case event.BalanceChanged:
		return r.applyBalanceChanged(env.Payload)
	case event.MarketHalted:
		return r.applyMarketHalted(env.Payload)
	case event.MarketUnhalted:
		return r.applyMarketUnhalted(env.Payload)
	case event.OrderFilled, event.OrderRejected, event.OrderAccepted:
		// Derived/informational only — OrderFilled's effect on the book
		// is already captured by the TradeExecuted(s) that preceded it, a
		// rejected order was never accepted into any state, and
		// OrderAccepted precedes matching so its quantity is the original
		// request, not what ends up resting; OrderRested carries the
		// correct post-match remainder for reconstruction instead.
		return nil
	default:
		r.log.Warn("replay: unknown event kind", zap.String("kind", string(env.Kind)))
		return nil
	}
}

// applyOrderRested reinserts a resting order using the quantity that
// actually ended up in the book, not the order's original requested
// quantity: an order that partially filled before resting must not be
// reinserted at its pre-match size.
func (r *replayer) applyOrderRested(raw json.RawMessage) error {
	var p event.OrderRestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if p.ArrivalSeq > r.maxArrivalSeq {
		r.maxArrivalSeq = p.ArrivalSeq
	}
	o := &orderbook.Order{
		ID:         p.OrderID,
		UserID:     p.UserID,
		Side:       orderbook.ParseSide(p.Side),
		Kind:       orderbook.Limit,
		Price:      p.Price,
		Quantity:   p.Quantity,
		Status:     orderbook.Pending,
		ArrivalSeq: p.ArrivalSeq,
	}
	r.eng.ReplayInsertOrder(p.MarketID, o)
	return nil
}

func (r *replayer) applyTradeExecuted(raw json.RawMessage) error {
	var p event.TradeExecutedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.eng.ReplayDecrementMaker(p.MarketID, p.MakerOrderID, p.MakerSide, p.Quantity)
	return nil
}

func (r *replayer) applyOrderCancelled(raw json.RawMessage) error {
	var p event.OrderCancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.eng.ReplayRemoveOrder(p.MarketID, p.OrderID)
	return nil
}

func (r *replayer) applyBalanceChanged(raw json.RawMessage) error {
	var p event.BalanceChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.eng.ReplayBalance(p.UserID, p.TokenID, ledger.Balance{
		Available: p.PostAvailable,
		Locked:    p.PostLocked,
	})
	return nil
}

func (r *replayer) applyMarketHalted(raw json.RawMessage) error {
	var p event.MarketHaltedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.eng.ReplayHalt(p.MarketID, p.Reason)
	return nil
}

func (r *replayer) applyMarketUnhalted(raw json.RawMessage) error {
	var p event.MarketUnhaltedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	r.eng.ReplayUnhalt(p.MarketID)
	return nil
}

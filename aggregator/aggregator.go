// Package aggregator maintains market-data state — per-market depth,
// 24h ticker, and a recent-trades feed — purely by tailing the durable
// event stream (spec §4.5), never by reading the matching engine's own
// orderbooks directly: the aggregator is just another consumer of the
// same event channel the persistence worker reads. It keeps no
// committed offset: on every start it reads each partition of the
// event topic from the oldest offset the broker still retains.
package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
	busevent "github.com/thecurioussailor/exchangecore/infra/bus/event"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

// Publisher pushes a market-data delta to subscribers — implemented by
// api/ws.Hub. Kept as an interface here so this package never imports
// the websocket transport.
type Publisher interface {
	PublishDepth(marketID string, snap DepthSnapshot)
	PublishTicker(marketID string, snap TickerSnapshot)
	PublishTrade(marketID string, t Trade)

	// ShedSlowest disconnects up to n subscribers, preferring those with
	// the fullest outbound buffers (spec §4.5 backpressure: shed slow
	// subscribers once the event backlog passes the high-water mark).
	ShedSlowest(n int)
}

type Aggregator struct {
	mu      sync.RWMutex
	markets map[string]*marketState

	depthLevels   int
	recentTrades  int
	tickerBuckets int
	tickerBucket  time.Duration
	lagHighWater  int64

	pub   Publisher
	clock util.Clock
	log   *zap.Logger
}

func New(depthLevels, recentTrades, tickerBuckets int, tickerBucket time.Duration, lagHighWater int, pub Publisher, clock util.Clock, log *zap.Logger) *Aggregator {
	return &Aggregator{
		markets:       make(map[string]*marketState),
		depthLevels:   depthLevels,
		recentTrades:  recentTrades,
		tickerBuckets: tickerBuckets,
		tickerBucket:  tickerBucket,
		lagHighWater:  int64(lagHighWater),
		pub:           pub,
		clock:         clock,
		log:           log,
	}
}

func (a *Aggregator) state(marketID string) *marketState {
	a.mu.RLock()
	s, ok := a.markets[marketID]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.markets[marketID]; ok {
		return s
	}
	s = newMarketState(a.depthLevels, a.recentTrades, a.tickerBuckets, a.tickerBucket)
	a.markets[marketID] = s
	return s
}

// Depth reports the current top-N depth for a market. The second
// return is false for a market the aggregator has never seen an event
// for yet — distinct from an empty book, which returns true with
// empty slices.
func (a *Aggregator) Depth(marketID string) (DepthSnapshot, bool) {
	a.mu.RLock()
	s, ok := a.markets[marketID]
	a.mu.RUnlock()
	if !ok {
		return DepthSnapshot{}, false
	}
	return s.depthSnapshot(a.depthLevels), true
}

func (a *Aggregator) Ticker(marketID string) (TickerSnapshot, bool) {
	a.mu.RLock()
	s, ok := a.markets[marketID]
	a.mu.RUnlock()
	if !ok {
		return TickerSnapshot{}, false
	}
	return s.tickerSnapshot(a.clock.Now()), true
}

func (a *Aggregator) RecentTrades(marketID string) ([]Trade, bool) {
	a.mu.RLock()
	s, ok := a.markets[marketID]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.recentTrades(), true
}

// Run drains the event consumer until ctx is cancelled, applying each
// envelope to the relevant market and pushing the resulting delta to
// the publisher. A decode failure on one envelope is logged and
// skipped rather than fatal — the aggregator is best-effort market
// data, not the source of truth the ledger/orderbook replay path is.
func (a *Aggregator) Run(ctx context.Context, consumer *busevent.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-consumer.Errors():
			if !ok {
				continue
			}
			a.log.Error("event consumer error", zap.Error(err))
		case msg, ok := <-consumer.Messages():
			if !ok {
				return nil
			}
			if err := a.applyRaw(msg.Value); err != nil {
				a.log.Error("apply event failed", zap.Error(err))
				continue
			}
			if lag := consumer.Lag(); lag > a.lagHighWater {
				a.log.Warn("aggregator falling behind event stream, shedding slowest subscribers", zap.Int64("lag", lag))
				a.pub.ShedSlowest(1)
			}
		}
	}
}

func (a *Aggregator) applyRaw(raw []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	return a.Apply(env)
}

// Apply is exported so tests (and a future in-process fast path) can
// feed envelopes without going through Kafka.
func (a *Aggregator) Apply(env event.Envelope) error {
	switch env.Kind {
	case event.OrderRested:
		return a.applyOrderRested(env.Payload)
	case event.TradeExecuted:
		return a.applyTradeExecuted(env.Payload)
	case event.OrderCancelled:
		return a.applyOrderCancelled(env.Payload)
	default:
		// Every other kind (OrderAccepted, OrderFilled, OrderRejected,
		// BalanceChanged, MarketHalted/Unhalted) carries nothing the
		// depth/ticker/trade feeds need.
		return nil
	}
}

func (a *Aggregator) applyOrderRested(raw json.RawMessage) error {
	var p event.OrderRestedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	isBid := orderbook.ParseSide(p.Side) == orderbook.Buy
	s := a.state(p.MarketID)
	s.applyRest(isBid, p.Price, p.Quantity)
	a.pub.PublishDepth(p.MarketID, s.depthSnapshot(a.depthLevels))
	return nil
}

func (a *Aggregator) applyOrderCancelled(raw json.RawMessage) error {
	var p event.OrderCancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	if p.RemainingQuantity <= 0 {
		return nil
	}
	isBid := orderbook.ParseSide(p.Side) == orderbook.Buy
	s := a.state(p.MarketID)
	s.applyCancel(isBid, p.Price, p.RemainingQuantity)
	a.pub.PublishDepth(p.MarketID, s.depthSnapshot(a.depthLevels))
	return nil
}

func (a *Aggregator) applyTradeExecuted(raw json.RawMessage) error {
	var p event.TradeExecutedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	makerSide := orderbook.ParseSide(p.MakerSide)
	makerIsBid := makerSide == orderbook.Buy
	takerSide := makerSide.Opposite()

	ts := time.Unix(0, p.TsNanos)
	trade := Trade{
		TradeID:   p.TradeID,
		Price:     p.Price,
		Quantity:  p.Quantity,
		TakerSide: takerSide.String(),
		TsNanos:   p.TsNanos,
	}

	s := a.state(p.MarketID)
	s.applyTrade(ts, makerIsBid, p.Price, p.Quantity, trade)

	a.pub.PublishDepth(p.MarketID, s.depthSnapshot(a.depthLevels))
	a.pub.PublishTicker(p.MarketID, s.tickerSnapshot(a.clock.Now()))
	a.pub.PublishTrade(p.MarketID, trade)
	return nil
}

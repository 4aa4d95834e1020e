package aggregator

import (
	"sync"
	"time"
)

// marketState holds one market's live depth, ticker, and recent-trade
// feeds, each mutated only by the aggregator's single event-consuming
// goroutine. A plain RWMutex guards reads from concurrent HTTP/WS
// handler goroutines — the update rate here is nowhere near the
// matching engine's, so the epoch-based reclaim scheme the orderbook
// itself needs (infra/memory) would be solving a problem this package
// doesn't have.
type marketState struct {
	mu     sync.RWMutex
	depth  *DepthBook
	ticker *Ticker
	trades *tradeRing
	seq    int64 // monotonic, incremented on every depth mutation (spec §4.5)
}

func newMarketState(depthLevels, recentTrades, tickerBuckets int, tickerBucket time.Duration) *marketState {
	return &marketState{
		depth:  newDepthBook(),
		ticker: newTicker(tickerBuckets, tickerBucket),
		trades: newTradeRing(recentTrades),
	}
}

func (m *marketState) applyRest(isBid bool, price, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth.Add(isBid, price, qty)
	m.seq++
}

func (m *marketState) applyCancel(isBid bool, price, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth.Sub(isBid, price, qty)
	m.seq++
}

func (m *marketState) applyTrade(ts time.Time, makerIsBid bool, price, qty int64, trade Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth.Sub(makerIsBid, price, qty)
	m.seq++
	m.ticker.Record(ts, price, qty)
	m.trades.Push(trade)
}

// DepthSnapshot is a point-in-time depth view for a subscriber. Seq is
// a per-market monotonic counter bumped on every depth mutation, so a
// subscriber that misses an update (e.g. during ShedSlowest
// backpressure shedding) can tell from a gap in Seq rather than
// silently working from a stale book (spec §4.5).
type DepthSnapshot struct {
	Seq  int64        `json:"seq"`
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

func (m *marketState) depthSnapshot(levels int) DepthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bids, asks := m.depth.Snapshot(levels)
	return DepthSnapshot{Seq: m.seq, Bids: bids, Asks: asks}
}

func (m *marketState) tickerSnapshot(now time.Time) TickerSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticker.Snapshot(now)
}

func (m *marketState) recentTrades() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trades.Recent()
}

package aggregator_test

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/aggregator"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

// fakePublisher records every push so tests can assert on the deltas
// the aggregator pushed out without standing up a real websocket hub.
type fakePublisher struct {
	depth  []aggregator.DepthSnapshot
	ticker []aggregator.TickerSnapshot
	trades []aggregator.Trade
	shed   int
}

func (f *fakePublisher) PublishDepth(_ string, snap aggregator.DepthSnapshot) { f.depth = append(f.depth, snap) }
func (f *fakePublisher) PublishTicker(_ string, snap aggregator.TickerSnapshot) {
	f.ticker = append(f.ticker, snap)
}
func (f *fakePublisher) PublishTrade(_ string, tr aggregator.Trade) { f.trades = append(f.trades, tr) }
func (f *fakePublisher) ShedSlowest(n int)                          { f.shed += n }

func envelope(t *testing.T, kind event.Kind, payload any) event.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return event.Envelope{Kind: kind, Payload: raw}
}

func newTestAggregator(pub aggregator.Publisher) *aggregator.Aggregator {
	return aggregator.New(10, 10, 5, time.Minute, 1000, pub, util.RealClock{}, zap.NewNop())
}

func TestApplyOrderRestedAddsDepth(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	err := agg.Apply(envelope(t, event.OrderRested, event.OrderRestedPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "BUY", Price: 100, Quantity: 5,
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	snap, ok := agg.Depth("BTC-USDT")
	if !ok {
		t.Fatal("expected a depth snapshot for a market that's received an event")
	}
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 100 || snap.Bids[0].Quantity != 5 {
		t.Fatalf("expected one bid level {100, 5}, got %+v", snap.Bids)
	}
	if len(pub.depth) != 1 {
		t.Fatalf("expected one depth push, got %d", len(pub.depth))
	}
}

func TestApplyOrderCancelledRemovesDepth(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	agg.Apply(envelope(t, event.OrderRested, event.OrderRestedPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "SELL", Price: 100, Quantity: 5,
	}))
	agg.Apply(envelope(t, event.OrderCancelled, event.OrderCancelledPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "SELL", Price: 100, RemainingQuantity: 5,
	}))

	snap, _ := agg.Depth("BTC-USDT")
	if len(snap.Asks) != 0 {
		t.Fatalf("expected the cancelled level to be gone, got %+v", snap.Asks)
	}
}

func TestApplyOrderCancelledIgnoresZeroRemainder(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	err := agg.Apply(envelope(t, event.OrderCancelled, event.OrderCancelledPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "SELL", Price: 100, RemainingQuantity: 0,
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(pub.depth) != 0 {
		t.Error("a fully-filled order's cancel (remaining=0) should never touch depth")
	}
}

func TestApplyTradeExecutedDecrementsMakerAndFeedsTickerAndTrades(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	agg.Apply(envelope(t, event.OrderRested, event.OrderRestedPayload{
		OrderID: "maker1", MarketID: "BTC-USDT", Side: "SELL", Price: 100, Quantity: 10,
	}))
	agg.Apply(envelope(t, event.TradeExecuted, event.TradeExecutedPayload{
		TradeID: "t1", MarketID: "BTC-USDT", MakerOrderID: "maker1", MakerSide: "SELL",
		Price: 100, Quantity: 4, TsNanos: time.Now().UnixNano(),
	}))

	snap, _ := agg.Depth("BTC-USDT")
	if len(snap.Asks) != 1 || snap.Asks[0].Quantity != 6 {
		t.Fatalf("expected maker ask level decremented to 6, got %+v", snap.Asks)
	}

	ticker, ok := agg.Ticker("BTC-USDT")
	if !ok || ticker.Last != 100 || ticker.Volume != 4 {
		t.Fatalf("expected ticker to reflect the trade, got %+v (ok=%v)", ticker, ok)
	}

	trades, ok := agg.RecentTrades("BTC-USDT")
	if !ok || len(trades) != 1 || trades[0].TradeID != "t1" {
		t.Fatalf("expected the trade to appear in the recent-trades feed, got %+v", trades)
	}
	// the maker rested SELL, so the taker crossing it bought — taker
	// side is always the maker's opposite.
	if trades[0].TakerSide != "BUY" {
		t.Errorf("expected taker side BUY against a resting SELL maker, got %s", trades[0].TakerSide)
	}

	if len(pub.depth) != 2 || len(pub.ticker) != 1 || len(pub.trades) != 1 {
		t.Errorf("expected one rest-driven + one trade-driven depth push, one ticker push, one trade push; got depth=%d ticker=%d trades=%d",
			len(pub.depth), len(pub.ticker), len(pub.trades))
	}
	if pub.depth[0].Seq != 1 || pub.depth[1].Seq != 2 {
		t.Fatalf("expected seq to bump on the rest then again on the trade, got %d then %d", pub.depth[0].Seq, pub.depth[1].Seq)
	}
}

// TestDepthSeqIsMonotonicPerMarketAcrossMutationKinds verifies seq
// advances by one on every depth-affecting event (rest, cancel, trade)
// regardless of kind, and that two markets' counters never interfere.
func TestDepthSeqIsMonotonicPerMarketAcrossMutationKinds(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	agg.Apply(envelope(t, event.OrderRested, event.OrderRestedPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "BUY", Price: 100, Quantity: 5,
	}))
	agg.Apply(envelope(t, event.OrderRested, event.OrderRestedPayload{
		OrderID: "o2", MarketID: "ETH-USDT", Side: "BUY", Price: 50, Quantity: 2,
	}))
	agg.Apply(envelope(t, event.OrderCancelled, event.OrderCancelledPayload{
		OrderID: "o1", MarketID: "BTC-USDT", Side: "BUY", Price: 100, RemainingQuantity: 5,
	}))

	btc, ok := agg.Depth("BTC-USDT")
	if !ok || btc.Seq != 2 {
		t.Fatalf("expected BTC-USDT seq=2 after rest+cancel, got %d (ok=%v)", btc.Seq, ok)
	}
	eth, ok := agg.Depth("ETH-USDT")
	if !ok || eth.Seq != 1 {
		t.Fatalf("expected ETH-USDT seq=1, unaffected by BTC-USDT's cancel, got %d (ok=%v)", eth.Seq, ok)
	}

	// a cancel with nothing to do (zero remainder) must not bump seq —
	// it never reaches depth at all.
	agg.Apply(envelope(t, event.OrderCancelled, event.OrderCancelledPayload{
		OrderID: "o3", MarketID: "BTC-USDT", Side: "BUY", Price: 100, RemainingQuantity: 0,
	}))
	btc, _ = agg.Depth("BTC-USDT")
	if btc.Seq != 2 {
		t.Fatalf("expected a zero-remainder cancel to leave seq unchanged at 2, got %d", btc.Seq)
	}
}

func TestDepthUnknownMarketReportsFalse(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	if _, ok := agg.Depth("NEVER-SEEN"); ok {
		t.Error("expected false for a market the aggregator has never observed an event for")
	}
	if _, ok := agg.Ticker("NEVER-SEEN"); ok {
		t.Error("expected false for ticker on an unseen market")
	}
	if _, ok := agg.RecentTrades("NEVER-SEEN"); ok {
		t.Error("expected false for recent trades on an unseen market")
	}
}

func TestApplyIgnoresUninterestingEventKinds(t *testing.T) {
	pub := &fakePublisher{}
	agg := newTestAggregator(pub)

	err := agg.Apply(envelope(t, event.OrderAccepted, event.OrderAcceptedPayload{
		OrderID: "o1", MarketID: "BTC-USDT",
	}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, ok := agg.Depth("BTC-USDT"); ok {
		t.Error("OrderAccepted must never create or touch market depth state")
	}
}

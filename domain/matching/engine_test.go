package matching_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/errkind"
	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/matching"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
	"github.com/thecurioussailor/exchangecore/infra/dedup"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

type recordingSink struct {
	events []event.Kind
}

func (s *recordingSink) Append(kind event.Kind, _ any) error {
	s.events = append(s.events, kind)
	return nil
}

func (s *recordingSink) count(kind event.Kind) int {
	n := 0
	for _, k := range s.events {
		if k == kind {
			n++
		}
	}
	return n
}

const (
	btcUsdt = market.MarketID("BTC-USDT")
	usdt    = "USDT"
	btc     = "BTC"
)

// newTestEngine builds a single-shard engine with one active market
// (1 tick = 1 unit of quote, base has 0 decimals, so price*qty is the
// notional directly) and funds alice/bob with a generous USDT/BTC
// balance for the scenarios below.
func newTestEngine(t *testing.T) (*matching.Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	registry := market.NewRegistry()
	m, err := market.New(btcUsdt, "BTC-USDT", btc, usdt, 0, 1, 1)
	require.NoError(t, err)
	registry.RegisterMarket(m)

	led := ledger.New(sink)
	dedupCache := dedup.New[matching.Response](1024, time.Minute)
	eng := matching.NewEngine(0, registry, led, sink, dedupCache, util.RealClock{}, zap.NewNop())

	require.NoError(t, led.Credit(ledger.UserID("alice"), ledger.TokenID(usdt), 1_000_000, "seed"))
	require.NoError(t, led.Credit(ledger.UserID("bob"), ledger.TokenID(btc), 1_000_000, "seed"))
	return eng, sink
}

func placeLimit(eng *matching.Engine, reqID, user string, side orderbook.Side, price, qty int64) matching.Response {
	return eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: reqID,
		UserID:    user,
		MarketID:  string(btcUsdt),
		Side:      side,
		Kind:      orderbook.Limit,
		Price:     price,
		Quantity:  qty,
	})
}

func TestLimitOrderRestsWhenNothingCrosses(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)

	require.True(t, resp.Accepted)
	require.Equal(t, "Pending", resp.Status)
	require.Equal(t, int64(0), resp.FilledQuantity)
	require.Empty(t, resp.Trades)
}

func TestLimitOrdersMatchAtMakerPrice(t *testing.T) {
	eng, sink := newTestEngine(t)

	sell := placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 5)
	require.True(t, sell.Accepted)
	require.Equal(t, "Pending", sell.Status)

	buy := placeLimit(eng, "r2", "alice", orderbook.Buy, 105, 5)
	require.True(t, buy.Accepted)
	require.Equal(t, "Filled", buy.Status)
	require.Equal(t, int64(5), buy.FilledQuantity)
	require.Len(t, buy.Trades, 1)
	// Trade executes at the maker's resting price (100), not the
	// taker's limit (105) — the taker gets price improvement.
	require.Equal(t, int64(100), buy.Trades[0].Price)
	require.Equal(t, 1, sink.count(event.TradeExecuted))
}

func TestLimitOrderPartialFillThenRests(t *testing.T) {
	eng, _ := newTestEngine(t)
	placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 3)

	buy := placeLimit(eng, "r2", "alice", orderbook.Buy, 100, 10)
	require.True(t, buy.Accepted)
	require.Equal(t, "PartiallyFilled", buy.Status)
	require.Equal(t, int64(3), buy.FilledQuantity)
	require.Equal(t, int64(7), buy.RemainingQuantity)
}

// TestFIFOPriceTimePriority verifies two resting orders at the same
// price fill in arrival order, not insertion-map order.
func TestFIFOPriceTimePriority(t *testing.T) {
	eng, _ := newTestEngine(t)
	first := placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 2)
	second := placeLimit(eng, "r2", "bob", orderbook.Sell, 100, 2)
	require.True(t, first.Accepted)
	require.True(t, second.Accepted)

	taker := placeLimit(eng, "r3", "alice", orderbook.Buy, 100, 2)
	require.True(t, taker.Accepted)
	require.Len(t, taker.Trades, 1)
	require.Equal(t, first.OrderID, taker.Trades[0].CounterOrder)
}

// TestMarketBuySpendsEntireAvailableQuoteBalance verifies a Buy Market
// order locks and bounds its spend by the caller's whole available
// quote balance — there's no per-request notional cap to pass in.
func TestMarketBuySpendsEntireAvailableQuoteBalance(t *testing.T) {
	eng, _ := newTestEngine(t)
	placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 10)

	// Trim alice's USDT down to exactly 500 so the bounded spend is
	// observable against a known available balance.
	require.NoError(t, eng.Ledger().Debit(ledger.UserID("alice"), ledger.TokenID(usdt), 1_000_000-500, "test trim"))

	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r2",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		Side:      orderbook.Buy,
		Kind:      orderbook.Market,
	})
	require.True(t, resp.Accepted)
	require.Equal(t, int64(5), resp.FilledQuantity)
	require.Equal(t, "Filled", resp.Status)
	require.Equal(t, int64(0), engineAvailable(eng, "alice", usdt))
}

// TestMarketBuyUnlocksUnspentRemainder verifies a partial fill (the
// book runs out of resting liquidity before the locked balance is
// exhausted) unlocks whatever wasn't spent back to available.
func TestMarketBuyUnlocksUnspentRemainder(t *testing.T) {
	eng, _ := newTestEngine(t)
	placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 3)

	require.NoError(t, eng.Ledger().Debit(ledger.UserID("alice"), ledger.TokenID(usdt), 1_000_000-500, "test trim"))

	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r2",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		Side:      orderbook.Buy,
		Kind:      orderbook.Market,
	})
	require.True(t, resp.Accepted)
	require.Equal(t, int64(3), resp.FilledQuantity)
	require.Equal(t, "Filled", resp.Status)
	// Spent 300 of the 500 locked; the other 200 returns to available.
	require.Equal(t, int64(200), engineAvailable(eng, "alice", usdt))
}

// TestMarketBuyRejectsZeroAvailableBalance verifies a user with
// nothing available to spend is rejected up front rather than
// accepted and immediately cancelled.
func TestMarketBuyRejectsZeroAvailableBalance(t *testing.T) {
	eng, _ := newTestEngine(t)
	placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 10)
	require.NoError(t, eng.Ledger().Debit(ledger.UserID("alice"), ledger.TokenID(usdt), 1_000_000, "drain"))

	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r2",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		Side:      orderbook.Buy,
		Kind:      orderbook.Market,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.InsufficientAvailable), resp.ErrorKind)
}

func TestMarketSellUnfilledRemainderUnlocked(t *testing.T) {
	eng, _ := newTestEngine(t)
	// no resting bids at all — the market sell can't fill anything.
	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r1",
		UserID:    "bob",
		MarketID:  string(btcUsdt),
		Side:      orderbook.Sell,
		Kind:      orderbook.Market,
		Quantity:  5,
	})
	require.True(t, resp.Accepted)
	require.Equal(t, "Cancelled", resp.Status)
	require.Equal(t, int64(0), resp.FilledQuantity)
}

func TestCancelUnlocksRemainingFunds(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	require.True(t, placed.Accepted)

	before := engineAvailable(eng, "alice", usdt)

	cancelled := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r2",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		OrderID:   placed.OrderID,
	})
	require.True(t, cancelled.Accepted)
	require.Equal(t, "Cancelled", cancelled.Status)

	after := engineAvailable(eng, "alice", usdt)
	require.Greater(t, after, before)
}

func TestCancelRejectsWrongOwner(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	require.True(t, placed.Accepted)

	resp := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r2",
		UserID:    "bob",
		MarketID:  string(btcUsdt),
		OrderID:   placed.OrderID,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.NotOwner), resp.ErrorKind)
}

func TestCancelRejectsUnknownOrder(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r1",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		OrderID:   "does-not-exist",
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.UnknownOrder), resp.ErrorKind)
}

func TestCancelRejectsAlreadyTerminalOrder(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	first := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r2", UserID: "alice", MarketID: string(btcUsdt), OrderID: placed.OrderID,
	})
	require.True(t, first.Accepted)

	second := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r3", UserID: "alice", MarketID: string(btcUsdt), OrderID: placed.OrderID,
	})
	require.False(t, second.Accepted)
	require.Equal(t, string(errkind.OrderTerminal), second.ErrorKind)
}

// TestCancelRejectsFullyFilledOrder verifies a resting order that's
// since matched in full also reports OrderTerminal on cancel, not
// UnknownOrder — fully filled orders leave the live index the same
// way a cancelled order does.
func TestCancelRejectsFullyFilledOrder(t *testing.T) {
	eng, _ := newTestEngine(t)
	resting := placeLimit(eng, "r1", "bob", orderbook.Sell, 100, 5)
	require.True(t, resting.Accepted)

	taker := placeLimit(eng, "r2", "alice", orderbook.Buy, 100, 5)
	require.True(t, taker.Accepted)
	require.Equal(t, "Filled", taker.Status)

	resp := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r3", UserID: "bob", MarketID: string(btcUsdt), OrderID: resting.OrderID,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.OrderTerminal), resp.ErrorKind)
}

// TestCancelRejectsTerminalOrderByWrongOwnerAsNotOwner verifies
// ownership is still checked before exposing terminal state to a
// caller who never owned the order.
func TestCancelRejectsTerminalOrderByWrongOwnerAsNotOwner(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	cancelled := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r2", UserID: "alice", MarketID: string(btcUsdt), OrderID: placed.OrderID,
	})
	require.True(t, cancelled.Accepted)

	resp := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r3", UserID: "bob", MarketID: string(btcUsdt), OrderID: placed.OrderID,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.NotOwner), resp.ErrorKind)
}

// TestDedupReplaysCachedResponse verifies a repeated RequestID within
// the window returns the original response instead of re-executing —
// a second execution would double-lock funds and emit a second
// OrderAccepted.
func TestDedupReplaysCachedResponse(t *testing.T) {
	eng, sink := newTestEngine(t)
	first := placeLimit(eng, "dup-1", "alice", orderbook.Buy, 100, 5)
	second := placeLimit(eng, "dup-1", "alice", orderbook.Buy, 100, 5)

	require.Equal(t, first, second)
	require.Equal(t, 1, sink.count(event.OrderAccepted))
}

func TestLookupUnknownRequestFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Lookup(matching.LookupRequest{UserID: "alice", RequestID: "never-submitted"})
	require.Error(t, err)
	require.Equal(t, errkind.UnknownRequest, errkind.Of(err))
}

func TestLookupReturnsCachedResponseWithinWindow(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)

	resp, err := eng.Lookup(matching.LookupRequest{UserID: "alice", RequestID: "r1"})
	require.NoError(t, err)
	require.Equal(t, placed, resp)
}

func TestValidationRejectsTickMisalignedPrice(t *testing.T) {
	// a market whose tick size is 5 rejects price=101 as misaligned.
	registry := market.NewRegistry()
	m, err := market.New(btcUsdt, "BTC-USDT", btc, usdt, 0, 1, 5)
	require.NoError(t, err)
	registry.RegisterMarket(m)
	led := ledger.New(nil)
	require.NoError(t, led.Credit(ledger.UserID("alice"), ledger.TokenID(usdt), 1_000_000, "seed"))
	eng := matching.NewEngine(0, registry, led, nil, dedup.New[matching.Response](16, time.Minute), util.RealClock{}, zap.NewNop())

	resp := placeLimit(eng, "r1", "alice", orderbook.Buy, 101, 5)
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.TickMisaligned), resp.ErrorKind)
}

func TestValidationRejectsZeroQuantity(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r1",
		UserID:    "alice",
		MarketID:  string(btcUsdt),
		Side:      orderbook.Buy,
		Kind:      orderbook.Limit,
		Price:     100,
		Quantity:  0,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.InvalidRequest), resp.ErrorKind)
}

func TestPlaceOrderRejectsUnknownMarket(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp := eng.PlaceOrder(matching.PlaceOrderRequest{
		RequestID: "r1",
		UserID:    "alice",
		MarketID:  "NOPE-USDT",
		Side:      orderbook.Buy,
		Kind:      orderbook.Limit,
		Price:     100,
		Quantity:  5,
	})
	require.False(t, resp.Accepted)
	require.Equal(t, string(errkind.UnknownMarket), resp.ErrorKind)
}

func engineAvailable(eng *matching.Engine, user, token string) int64 {
	return eng.Ledger().Snapshot(ledger.UserID(user), ledger.TokenID(token)).Available
}

func TestHaltedMarketRejectsNewOrdersAndCancels(t *testing.T) {
	eng, _ := newTestEngine(t)
	placed := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	require.True(t, placed.Accepted)

	eng.ReplayHalt(string(btcUsdt), "simulated fatal error")
	reason, halted := eng.IsHalted(btcUsdt)
	require.True(t, halted)
	require.Equal(t, "simulated fatal error", reason)

	rejected := placeLimit(eng, "r2", "bob", orderbook.Sell, 100, 5)
	require.False(t, rejected.Accepted)
	require.Equal(t, string(errkind.MarketHalted), rejected.ErrorKind)

	cancelled := eng.CancelOrder(matching.CancelOrderRequest{
		RequestID: "r3", UserID: "alice", MarketID: string(btcUsdt), OrderID: placed.OrderID,
	})
	require.False(t, cancelled.Accepted)
	require.Equal(t, string(errkind.MarketHalted), cancelled.ErrorKind)
}

func TestUnhaltClearsHaltedState(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.ReplayHalt(string(btcUsdt), "simulated fatal error")

	eng.Unhalt(btcUsdt)
	_, halted := eng.IsHalted(btcUsdt)
	require.False(t, halted)

	resp := placeLimit(eng, "r1", "alice", orderbook.Buy, 100, 5)
	require.True(t, resp.Accepted)
}

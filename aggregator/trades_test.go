package aggregator

import "testing"

func TestTradeRingRecentBeforeFull(t *testing.T) {
	r := newTradeRing(5)
	r.Push(Trade{TradeID: "t1"})
	r.Push(Trade{TradeID: "t2"})

	recent := r.Recent()
	if len(recent) != 2 || recent[0].TradeID != "t1" || recent[1].TradeID != "t2" {
		t.Fatalf("expected [t1 t2] oldest-first, got %+v", recent)
	}
}

func TestTradeRingWrapsOnceFull(t *testing.T) {
	r := newTradeRing(3)
	r.Push(Trade{TradeID: "t1"})
	r.Push(Trade{TradeID: "t2"})
	r.Push(Trade{TradeID: "t3"})
	r.Push(Trade{TradeID: "t4"}) // overwrites t1

	recent := r.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected capacity-bounded length 3, got %d", len(recent))
	}
	want := []string{"t2", "t3", "t4"}
	for i, w := range want {
		if recent[i].TradeID != w {
			t.Fatalf("expected %v oldest-to-newest, got %+v", want, recent)
		}
	}
}

func TestTradeRingZeroCapacityIsNoop(t *testing.T) {
	r := newTradeRing(0)
	r.Push(Trade{TradeID: "t1"})
	if len(r.Recent()) != 0 {
		t.Error("expected a zero-capacity ring to discard every push")
	}
}

func TestTradeRingEmptyReturnsEmptySlice(t *testing.T) {
	r := newTradeRing(4)
	if len(r.Recent()) != 0 {
		t.Error("expected no trades from a fresh ring")
	}
}

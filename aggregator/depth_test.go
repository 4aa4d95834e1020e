package aggregator

import "testing"

func TestDepthBookAddAggregatesAtPrice(t *testing.T) {
	d := newDepthBook()
	d.Add(true, 100, 3)
	d.Add(true, 100, 2)

	bids, _ := d.Snapshot(10)
	if len(bids) != 1 || bids[0].Quantity != 5 {
		t.Fatalf("expected one level of qty 5, got %+v", bids)
	}
}

func TestDepthBookSubRemovesLevelAtZero(t *testing.T) {
	d := newDepthBook()
	d.Add(false, 100, 5)
	d.Sub(false, 100, 5)

	_, asks := d.Snapshot(10)
	if len(asks) != 0 {
		t.Fatalf("expected level to disappear once quantity hits zero, got %+v", asks)
	}
}

func TestDepthBookSubClampsBelowZero(t *testing.T) {
	d := newDepthBook()
	d.Add(true, 100, 3)
	d.Sub(true, 100, 10) // over-subtract: must clear, not go negative

	bids, _ := d.Snapshot(10)
	if len(bids) != 0 {
		t.Fatalf("expected level cleared after over-subtraction, got %+v", bids)
	}
}

func TestDepthBookSnapshotOrdering(t *testing.T) {
	d := newDepthBook()
	d.Add(true, 95, 1)
	d.Add(true, 100, 1)
	d.Add(true, 90, 1)
	d.Add(false, 110, 1)
	d.Add(false, 105, 1)
	d.Add(false, 120, 1)

	bids, asks := d.Snapshot(10)
	if bids[0].Price != 100 || bids[1].Price != 95 || bids[2].Price != 90 {
		t.Fatalf("expected bids sorted best-first (descending), got %+v", bids)
	}
	if asks[0].Price != 105 || asks[1].Price != 110 || asks[2].Price != 120 {
		t.Fatalf("expected asks sorted best-first (ascending), got %+v", asks)
	}
}

func TestDepthBookSnapshotRespectsLevelLimit(t *testing.T) {
	d := newDepthBook()
	for _, p := range []int64{100, 99, 98, 97} {
		d.Add(true, p, 1)
	}
	bids, _ := d.Snapshot(2)
	if len(bids) != 2 {
		t.Fatalf("expected snapshot capped at 2 levels, got %d", len(bids))
	}
}

func TestDepthBookBidsAndAsksAreIndependent(t *testing.T) {
	d := newDepthBook()
	d.Add(true, 100, 5)
	d.Add(false, 100, 7)

	bids, asks := d.Snapshot(10)
	if bids[0].Quantity != 5 || asks[0].Quantity != 7 {
		t.Fatalf("expected bid/ask quantities at the same price to stay independent, got bids=%+v asks=%+v", bids, asks)
	}
}

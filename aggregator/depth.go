package aggregator

import "sort"

// DepthBook tracks per-price resting quantity for one market, kept
// current purely from the durable event stream — OrderRested adds,
// TradeExecuted and OrderCancelled subtract — never by reading the
// engine's in-process orderbook. Bids are keyed descending by price,
// asks ascending, matching the priority order the matching engine
// itself walks.
type DepthBook struct {
	bids map[int64]int64
	asks map[int64]int64
}

func newDepthBook() *DepthBook {
	return &DepthBook{
		bids: make(map[int64]int64),
		asks: make(map[int64]int64),
	}
}

func (d *DepthBook) side(isBid bool) map[int64]int64 {
	if isBid {
		return d.bids
	}
	return d.asks
}

// Add records a newly-resting order's remaining quantity.
func (d *DepthBook) Add(isBid bool, price, qty int64) {
	m := d.side(isBid)
	m[price] += qty
	if m[price] <= 0 {
		delete(m, price)
	}
}

// Sub removes quantity from a price level — a trade fill or a cancel.
// Clears the level entirely once it would go to zero or below, since a
// negative resting quantity can never be real.
func (d *DepthBook) Sub(isBid bool, price, qty int64) {
	m := d.side(isBid)
	remaining := m[price] - qty
	if remaining <= 0 {
		delete(m, price)
		return
	}
	m[price] = remaining
}

// PriceLevel is one (price, quantity) row in a depth snapshot.
type PriceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Snapshot returns up to levels rows per side, bids sorted best
// (highest) first, asks sorted best (lowest) first.
func (d *DepthBook) Snapshot(levels int) (bids, asks []PriceLevel) {
	bids = sortedLevels(d.bids, levels, true)
	asks = sortedLevels(d.asks, levels, false)
	return bids, asks
}

func sortedLevels(m map[int64]int64, levels int, descending bool) []PriceLevel {
	out := make([]PriceLevel, 0, len(m))
	for price, qty := range m {
		out = append(out, PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if levels > 0 && len(out) > levels {
		out = out[:levels]
	}
	return out
}

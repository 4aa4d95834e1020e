package orderbook

// indexEntry locates a resting order's price level within the priced
// queues, the secondary hash index spec §4.2 requires for cancellation.
type indexEntry struct {
	side  Side
	price int64
}

// terminalEntry records a since-evicted order's owner and final status,
// so a later cancel attempt against that order_id can report
// OrderTerminal instead of UnknownOrder — the live index alone can't
// tell "never existed" apart from "existed, now Filled/Cancelled",
// since both cases leave no trace in index.
type terminalEntry struct {
	userID string
	status Status
}

// OrderBook is the per-market structure: two priced FIFO sides plus a
// secondary order_id index. It owns no matching logic — the matching
// algorithm (price-time priority, settlement) lives in the matching
// engine and drives this structure through Insert/PeekBest/
// DecrementHead/PopFilled/Remove. Single-writer: the owning engine
// shard is the only goroutine that mutates a given OrderBook (spec §5).
type OrderBook struct {
	bids *RBTree
	asks *RBTree

	index    map[string]indexEntry   // order_id -> (side, price)
	terminal map[string]terminalEntry // order_id -> (owner, final status), kept past eviction
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:     NewRBTree(),
		asks:     NewRBTree(),
		index:    make(map[string]indexEntry),
		terminal: make(map[string]terminalEntry),
	}
}

// MarkTerminal records orderID's owner and final status once it has
// reached Filled or Cancelled, whether or not it was ever resting in
// this book (a Market order, or a Limit order filled in full on
// arrival, never appears in index at all).
func (b *OrderBook) MarkTerminal(orderID, userID string, status Status) {
	b.terminal[orderID] = terminalEntry{userID: userID, status: status}
}

// TerminalStatus reports the owner and status previously recorded via
// MarkTerminal for orderID, if any.
func (b *OrderBook) TerminalStatus(orderID string) (userID string, status Status, ok bool) {
	e, ok := b.terminal[orderID]
	return e.userID, e.status, ok
}

func (b *OrderBook) sideTree(s Side) *RBTree {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Insert adds a resting order to its side at its price level.
func (b *OrderBook) Insert(o *Order) {
	lvl := b.sideTree(o.Side).GetOrCreate(o.Price)
	lvl.Enqueue(o)
	b.index[o.ID] = indexEntry{side: o.Side, price: o.Price}
}

// BestBid returns the highest bid price, and whether one exists.
func (b *OrderBook) BestBid() (int64, bool) {
	lvl := b.bids.BestMax()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest ask price, and whether one exists.
func (b *OrderBook) BestAsk() (int64, bool) {
	lvl := b.asks.BestMin()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// PeekBest returns the head order of the best level on a side, or nil
// if that side is empty.
func (b *OrderBook) PeekBest(side Side) *Order {
	lvl := b.BestLevel(side)
	if lvl == nil {
		return nil
	}
	return lvl.Head()
}

// BestLevel exposes the best PriceLevel itself (used by the matching
// engine to decrement/pop without a second lookup).
func (b *OrderBook) BestLevel(side Side) *PriceLevel {
	if side == Buy {
		return b.bids.BestMax()
	}
	return b.asks.BestMin()
}

// DecrementHead subtracts qty from the best level's head order.
func (b *OrderBook) DecrementHead(side Side, qty int64) {
	lvl := b.BestLevel(side)
	if lvl == nil {
		return
	}
	lvl.DecrementHead(qty)
}

// PopFilled removes the head of the best level on a side once its
// remaining quantity has reached zero, tearing down the price level
// if it is now empty.
func (b *OrderBook) PopFilled(side Side) *Order {
	tree := b.sideTree(side)
	lvl := b.BestLevel(side)
	if lvl == nil {
		return nil
	}
	o := lvl.PopHead()
	if o != nil {
		delete(b.index, o.ID)
	}
	if lvl.Empty() {
		tree.Remove(lvl.Price)
	}
	return o
}

// Remove cancels a resting order. The secondary index gives its side
// and price; the order itself is then found by scanning that price
// level's queue, so the cost grows with the number of orders resting
// at that price.
func (b *OrderBook) Remove(orderID string) (*Order, bool) {
	entry, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	tree := b.sideTree(entry.side)
	lvl := tree.Find(entry.price)
	if lvl == nil {
		delete(b.index, orderID)
		return nil, false
	}

	var found *Order
	for o := lvl.Head(); o != nil; o = o.Next() {
		if o.ID == orderID {
			found = o
			break
		}
	}
	if found == nil {
		delete(b.index, orderID)
		return nil, false
	}

	lvl.Remove(found)
	delete(b.index, orderID)
	if lvl.Empty() {
		tree.Remove(lvl.Price)
	}
	return found, true
}

// Contains reports whether an order_id currently rests in the book.
func (b *OrderBook) Contains(orderID string) bool {
	_, ok := b.index[orderID]
	return ok
}

// BidsWalk/AsksWalk traverse price levels best-to-worst (used by
// snapshots and the cmd/engine --dump-book listing).
func (b *OrderBook) BidsWalk(fn func(*PriceLevel)) { b.bids.walkDesc(fn) }
func (b *OrderBook) AsksWalk(fn func(*PriceLevel)) { b.asks.walkAsc(fn) }

// PriceLevelView is a read-only snapshot of one price level's
// aggregate quantity, for depth serving.
type PriceLevelView struct {
	Price int64
	Qty   int64
}

func (b *OrderBook) BidLevels(limit int) []PriceLevelView {
	out := make([]PriceLevelView, 0, limit)
	b.bids.walkDescLimit(limit, func(l *PriceLevel) {
		out = append(out, PriceLevelView{Price: l.Price, Qty: l.TotalQty})
	})
	return out
}

func (b *OrderBook) AskLevels(limit int) []PriceLevelView {
	out := make([]PriceLevelView, 0, limit)
	b.asks.walkAscLimit(limit, func(l *PriceLevel) {
		out = append(out, PriceLevelView{Price: l.Price, Qty: l.TotalQty})
	})
	return out
}

// Crossed reports the violation of spec §4.2's invariant: best bid <
// best ask whenever both sides are non-empty.
func (b *OrderBook) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid >= ask
}

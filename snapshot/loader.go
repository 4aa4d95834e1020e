package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
)

// Load restores a previously written snapshot into fresh per-market
// books/pools and the ledger, returning the event/arrival sequence it
// was taken at so the caller can replay only the entry WAL records
// after that point. Returns (0, 0, nil) if no snapshot file exists yet
// — a snapshot is an optimization, not a requirement for correctness.
func Load(path string, books map[string]*orderbook.OrderBook, pools map[string]*orderbook.Pool, led *ledger.Ledger) (eventSeq, arrivalSeq uint64, err error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return 0, 0, nil
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return 0, 0, err
	}

	for marketID, entries := range s.Markets {
		book, ok := books[marketID]
		if !ok {
			book = orderbook.NewOrderBook()
			books[marketID] = book
		}
		pool, ok := pools[marketID]
		if !ok {
			pool = orderbook.NewPool()
			pools[marketID] = pool
		}
		for _, e := range entries {
			o := pool.New()
			o.ID = e.ID
			o.UserID = e.UserID
			o.Side = orderbook.Side(e.Side)
			o.Kind = orderbook.OrderKind(e.Kind)
			o.Price = e.Price
			o.Quantity = e.Quantity
			o.Filled = e.Filled
			o.Status = orderbook.Status(e.Status)
			o.ArrivalSeq = e.ArrivalSeq
			book.Insert(o)
		}
	}

	for _, b := range s.Balances {
		led.Restore(ledger.UserID(b.UserID), ledger.TokenID(b.TokenID), ledger.Balance{
			Available: b.Available,
			Locked:    b.Locked,
		})
	}

	return s.EventSeq, s.ArrivalSeq, nil
}

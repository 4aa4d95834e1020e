package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

type Writer struct {
	Dir   string
	Clock util.Clock
}

// Write walks every market's live orderbook and the full ledger,
// encoding the result as one gob file. It takes no lock and enters no
// Reader epoch, so it runs on the goroutine that mutates the books
// (Shard.Run calls it there, between requests).
func (w *Writer) Write(eventSeq, arrivalSeq uint64, books map[string]*orderbook.OrderBook, led *ledger.Ledger) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	s := Snapshot{
		EventSeq:   eventSeq,
		ArrivalSeq: arrivalSeq,
		CreatedAt:  w.Clock.Now().UnixNano(),
		Markets:    make(map[string][]OrderEntry, len(books)),
	}

	for marketID, book := range books {
		entries := make([]OrderEntry, 0, 256)
		collect := func(lvl *orderbook.PriceLevel) {
			for o := lvl.Head(); o != nil; o = o.Next() {
				entries = append(entries, OrderEntry{
					ID:         o.ID,
					UserID:     o.UserID,
					Side:       int(o.Side),
					Kind:       int(o.Kind),
					Price:      o.Price,
					Quantity:   o.Quantity,
					Filled:     o.Filled,
					Status:     int(o.Status),
					ArrivalSeq: o.ArrivalSeq,
				})
			}
		}
		book.BidsWalk(collect)
		book.AsksWalk(collect)
		s.Markets[marketID] = entries
	}

	for _, e := range led.All() {
		s.Balances = append(s.Balances, BalanceEntry{
			UserID:    string(e.UserID),
			TokenID:   string(e.TokenID),
			Available: e.Balance.Available,
			Locked:    e.Balance.Locked,
		})
	}

	tmp := filepath.Join(w.Dir, "snapshot.bin.tmp")
	final := filepath.Join(w.Dir, "snapshot.bin")

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Atomic rename: a reader never sees a half-written snapshot file.
	return os.Rename(tmp, final)
}

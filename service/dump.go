package service

import (
	"fmt"
	"io"

	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/matching"
	"github.com/thecurioussailor/exchangecore/domain/orderbook"
)

// DumpBook writes a human-readable bids/asks listing for one market's
// resting orders to w, for operator diagnosis (cmd/engine --dump-book).
func DumpBook(eng *matching.Engine, marketID string, w io.Writer) {
	books := eng.BooksByString()
	book, ok := books[marketID]
	if !ok {
		fmt.Fprintf(w, "market %s has no orderbook on this shard\n", marketID)
		return
	}

	if reason, halted := eng.IsHalted(market.MarketID(marketID)); halted {
		fmt.Fprintf(w, "market %s is HALTED: %s\n", marketID, reason)
	}

	fmt.Fprintf(w, "asks (%s):\n", marketID)
	book.AsksWalk(func(lvl *orderbook.PriceLevel) {
		for o := lvl.Head(); o != nil; o = o.Next() {
			printOrder(w, o)
		}
	})

	fmt.Fprintf(w, "bids (%s):\n", marketID)
	book.BidsWalk(func(lvl *orderbook.PriceLevel) {
		for o := lvl.Head(); o != nil; o = o.Next() {
			printOrder(w, o)
		}
	})
}

func printOrder(w io.Writer, o *orderbook.Order) {
	fmt.Fprintf(w, "  %s  %s  price=%d qty=%d filled=%d status=%s arrival=%d\n",
		o.ID, o.Side, o.Price, o.Quantity, o.Filled, o.Status, o.ArrivalSeq)
}

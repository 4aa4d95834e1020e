package aggregator

import "time"

// tickerBucket aggregates trades within one bucket interval (default
// one minute). Zero value (Trades == 0) means the bucket is empty and
// contributes nothing to a Ticker snapshot.
type tickerBucket struct {
	start  int64 // bucket start, unix nanos, truncated to the bucket size
	open   int64
	high   int64
	low    int64
	close  int64
	volume int64
	trades int
}

// Ticker keeps a fixed-size ring of buckets covering a rolling window
// (24h by default, at one-minute resolution — 1440 buckets), so a
// snapshot query is O(buckets) rather than rescanning every trade ever
// seen. Grounded on the teacher's own fixed-capacity ring buffer idiom
// (infra/memory/retire_ring.go), repurposed here from retired-order
// recycling to time-bucketed trade aggregation.
type Ticker struct {
	buckets    []tickerBucket
	bucketSize time.Duration
}

func newTicker(numBuckets int, bucketSize time.Duration) *Ticker {
	return &Ticker{
		buckets:    make([]tickerBucket, numBuckets),
		bucketSize: bucketSize,
	}
}

func (t *Ticker) bucketStart(ts time.Time) int64 {
	size := t.bucketSize.Nanoseconds()
	return ts.UnixNano() / size * size
}

func (t *Ticker) index(start int64) int {
	size := t.bucketSize.Nanoseconds()
	slot := (start / size) % int64(len(t.buckets))
	if slot < 0 {
		slot += int64(len(t.buckets))
	}
	return int(slot)
}

// Record folds one trade into its bucket, resetting a stale slot that
// has rolled out of the window and back around the ring.
func (t *Ticker) Record(ts time.Time, price, qty int64) {
	start := t.bucketStart(ts)
	idx := t.index(start)
	b := &t.buckets[idx]

	if b.start != start {
		*b = tickerBucket{start: start, open: price, high: price, low: price, close: price}
	}
	if price > b.high {
		b.high = price
	}
	if price < b.low || b.low == 0 {
		b.low = price
	}
	b.close = price
	b.volume += qty
	b.trades++
}

// TickerSnapshot is the 24h rollup returned to a subscriber.
type TickerSnapshot struct {
	Last      int64 `json:"last"`
	High      int64 `json:"high_24h"`
	Low       int64 `json:"low_24h"`
	Volume    int64 `json:"volume_24h"`
	ChangeBps int64 `json:"change_bps_24h"`
}

// Snapshot folds every live bucket in the window into a single rollup.
// A bucket whose start has fallen out of the window (older than
// now-window) is skipped rather than cleared eagerly, since Record
// already overwrites any slot once its wall-clock bucket comes back
// around.
func (t *Ticker) Snapshot(now time.Time) TickerSnapshot {
	windowStart := now.Add(-time.Duration(len(t.buckets)) * t.bucketSize).UnixNano()

	var snap TickerSnapshot
	var open int64
	var earliest, latest int64 = -1, -1

	for _, b := range t.buckets {
		if b.trades == 0 || b.start < windowStart {
			continue
		}
		if snap.High == 0 || b.high > snap.High {
			snap.High = b.high
		}
		if snap.Low == 0 || b.low < snap.Low {
			snap.Low = b.low
		}
		snap.Volume += b.volume
		if earliest == -1 || b.start < earliest {
			earliest = b.start
			open = b.open
		}
		if b.start > latest {
			latest = b.start
			snap.Last = b.close
		}
	}

	if open > 0 {
		snap.ChangeBps = (snap.Last - open) * 10_000 / open
	}
	return snap
}

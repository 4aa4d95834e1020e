// Package exit is the durable outbox the engine's events fan out
// through on their way to Kafka (the market-data aggregator reads them
// from there): every committed event is written here keyed by its
// global seq, and each consumer of the outbox (jobs/broadcaster, under
// the cursor name "kafka") tracks its own resumable offset as a cursor
// row, so a restarted consumer
// resumes exactly where it left off instead of re-delivering or
// skipping (spec: "consumer-tracked resumable offsets"). Backed by
// cockroachdb/pebble, same as the teacher's own per-order outbox this
// package replaces — pebble is already the KV engine the rest of the
// pack (and this project) uses for anything needing durable,
// crash-safe key/value state without running a separate database.
package exit

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
)

const (
	eventPrefix  = "evt/"
	cursorPrefix = "cur/"
)

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability matters: this IS the outbox
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put durably records an event's payload against its seq. Called
// synchronously from the engine's event sink right after the primary
// event-sourcing WAL append succeeds.
func (o *Outbox) Put(seq uint64, payload []byte) error {
	return o.db.Set(eventKey(seq), payload, pebble.Sync)
}

// ScanFrom iterates outbox entries with seq > fromSeq in ascending
// order, stopping when fn returns an error or the outbox is exhausted.
// Consumers call this with their last-acked cursor to resume.
func (o *Outbox) ScanFrom(fromSeq uint64, fn func(seq uint64, payload []byte) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(fromSeq + 1),
		UpperBound: []byte(eventPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseEventKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(seq, append([]byte(nil), iter.Value()...)); err != nil {
			return err
		}
	}
	return iter.Error()
}

// CursorGet returns a consumer's last-acked seq, or 0 if it has never
// checkpointed (replay from the very start of the outbox).
func (o *Outbox) CursorGet(consumer string) (uint64, error) {
	val, closer, err := o.db.Get(cursorKey(consumer))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt cursor for consumer %q", consumer)
	}
	return binary.BigEndian.Uint64(val), nil
}

// CursorSet persists a consumer's progress. Must be called only after
// the consumer has durably delivered everything up to and including
// seq (e.g. the Kafka producer only advances once SendMessage acks).
func (o *Outbox) CursorSet(consumer string, seq uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return o.db.Set(cursorKey(consumer), buf, pebble.Sync)
}

// Compact deletes outbox entries at or below the minimum cursor across
// every named consumer — nothing downstream still needs them replayed.
func (o *Outbox) Compact(consumers []string) error {
	if len(consumers) == 0 {
		return nil
	}
	min, err := o.CursorGet(consumers[0])
	if err != nil {
		return err
	}
	for _, c := range consumers[1:] {
		cur, err := o.CursorGet(c)
		if err != nil {
			return err
		}
		if cur < min {
			min = cur
		}
	}
	if min == 0 {
		return nil
	}
	return o.db.DeleteRange(eventKey(0), eventKey(min+1), pebble.Sync)
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, seq))
}

func parseEventKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), eventPrefix+"%020d", &seq)
	return seq, err
}

func cursorKey(consumer string) []byte {
	return []byte(cursorPrefix + consumer)
}

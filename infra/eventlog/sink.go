// Package eventlog wires the engine's event.Sink interface to the two
// durable stores behind it: the entry WAL (the append-only, replayable
// event-sourcing log) and the exit outbox (the fan-out point consumers
// resume from). Every Append does both: the entry WAL write is what
// makes the event durable and replay-safe, the outbox write is what
// lets the Kafka broadcaster publish it independently of the engine's
// own pace; the market-data aggregator reads it from Kafka.
package eventlog

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/event"
	"github.com/thecurioussailor/exchangecore/infra/sequence"
	"github.com/thecurioussailor/exchangecore/infra/wal/entry"
	"github.com/thecurioussailor/exchangecore/infra/wal/exit"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

type Sink struct {
	wal    *entry.WAL
	outbox *exit.Outbox
	seq    *sequence.Sequencer
	shard  int
	clock  util.Clock
	log    *zap.Logger
}

func NewSink(wal *entry.WAL, outbox *exit.Outbox, seq *sequence.Sequencer, shard int, clock util.Clock, log *zap.Logger) *Sink {
	return &Sink{wal: wal, outbox: outbox, seq: seq, shard: shard, clock: clock, log: log}
}

func (s *Sink) Append(kind event.Kind, payload any) error {
	seqN := s.seq.Next()

	env, err := event.Encode(seqN, s.clock.Now().UnixNano(), s.shard, kind, payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := s.wal.Append(entry.NewRecord(entry.RecordEvent, seqN, raw)); err != nil {
		return err
	}

	if s.outbox != nil {
		if err := s.outbox.Put(seqN, raw); err != nil {
			// The event is already durable in the entry WAL — replay
			// will reconstruct state even if the outbox write below
			// failed. Consumers just won't see it until the next
			// successful Put for a later seq triggers a gap-fill scan,
			// so this is logged rather than treated as fatal.
			s.log.Error("outbox put failed", zap.Uint64("seq", seqN), zap.Error(err))
		}
	}

	return nil
}

// CurrentSeq exposes the sequencer for replay bootstrapping.
func (s *Sink) CurrentSeq() uint64 { return s.seq.Current() }

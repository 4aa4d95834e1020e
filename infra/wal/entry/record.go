// Package entry is the engine's durable event-sourcing log: every
// event.Envelope the matching engine emits is appended here before the
// caller can consider it committed, so replaying this log from seq 0
// reconstructs ledger and orderbook state exactly (spec: "event replay
// must reconstruct state exactly").
package entry

import "time"

// RecordType used to distinguish frame kinds at the WAL layer.
// RecordEvent is the only kind written today — every domain event
// (OrderAccepted, TradeExecuted, BalanceChanged, ...) carries its own
// discriminator inside the JSON payload (event.Envelope.Kind), so the
// WAL frame itself doesn't need to. RecordCheckpoint is defined but
// never written, and service replay ignores every non-event record;
// recovery finds its starting point from the snapshot's own event seq.
type RecordType uint8

const (
	RecordEvent RecordType = iota
	RecordCheckpoint
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

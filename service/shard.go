package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/ledger"
	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/domain/matching"
	"github.com/thecurioussailor/exchangecore/infra/bus/request"
	"github.com/thecurioussailor/exchangecore/infra/dedup"
	"github.com/thecurioussailor/exchangecore/infra/eventlog"
	"github.com/thecurioussailor/exchangecore/infra/sequence"
	"github.com/thecurioussailor/exchangecore/infra/wal/entry"
	"github.com/thecurioussailor/exchangecore/infra/wal/exit"
	"github.com/thecurioussailor/exchangecore/params"
	"github.com/thecurioussailor/exchangecore/pkg/util"
	"github.com/thecurioussailor/exchangecore/snapshot"
)

// Shard owns one matching.Engine and the durable plumbing around it:
// the request bus consumer that feeds it, the entry WAL + exit outbox
// its event sink writes to, and the periodic snapshot writer that
// bounds how much WAL this shard must replay after a restart.
type Shard struct {
	cfg    params.Config
	log    *zap.Logger
	clock  util.Clock
	engine *matching.Engine

	entryWAL *entry.WAL
	outbox   *exit.Outbox
	consumer *request.Consumer

	snapshotDir string
}

// NewShard wires every dependency for one engine shard and runs
// startup recovery (snapshot load + WAL replay) before returning, so
// the returned Shard is immediately ready to drain its request bus.
func NewShard(cfg params.Config, registry *market.Registry, log *zap.Logger) (*Shard, error) {
	clock := util.RealClock{}

	shardEntryDir := filepath.Join(cfg.WAL.EntryDir, fmt.Sprintf("shard-%d", cfg.Engine.ShardID))
	entryWAL, err := entry.Open(entry.Config{
		Dir:             shardEntryDir,
		SegmentSize:     cfg.WAL.SegmentSize,
		SegmentDuration: cfg.WAL.SegmentDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("open entry wal: %w", err)
	}

	shardExitDir := filepath.Join(cfg.WAL.ExitDir, fmt.Sprintf("shard-%d", cfg.Engine.ShardID))
	outbox, err := exit.Open(shardExitDir)
	if err != nil {
		return nil, fmt.Errorf("open exit outbox: %w", err)
	}

	seq := sequence.New(0)
	sink := eventlog.NewSink(entryWAL, outbox, seq, cfg.Engine.ShardID, clock, log)

	led := ledger.New(sink)
	dedupCache := dedup.New[matching.Response](cfg.Dedup.MaxEntries, cfg.Dedup.TTL)

	eng := matching.NewEngine(cfg.Engine.ShardID, registry, led, sink, dedupCache, clock, log)

	snapshotDir := filepath.Join(cfg.Engine.SnapshotDir, fmt.Sprintf("shard-%d", cfg.Engine.ShardID))
	snapshotPath := filepath.Join(snapshotDir, "snapshot.bin")
	if err := Recover(eng, snapshotPath, shardEntryDir, log); err != nil {
		return nil, fmt.Errorf("recover shard %d: %w", cfg.Engine.ShardID, err)
	}

	// The sink's own sequencer must continue from wherever recovery
	// left the engine, not from 0 — otherwise the next emitted event
	// would collide with already-written WAL seqs.
	recoveredEventSeq, _ := eng.SeqState()
	seq.Reset(recoveredEventSeq)

	consumer := request.NewConsumer(cfg.Bus.KafkaBrokers, cfg.Bus.RequestTopic, cfg.Bus.RequestGroup)

	return &Shard{
		cfg:          cfg,
		log:          log,
		clock:        clock,
		engine:       eng,
		entryWAL:     entryWAL,
		outbox:       outbox,
		consumer:     consumer,
		snapshotDir:  snapshotDir,
	}, nil
}

// Engine exposes the underlying matching engine, e.g. for the
// one-shot admin operations in cmd/engine.
func (s *Shard) Engine() *matching.Engine { return s.engine }

// Run drains the request bus until ctx is cancelled, dispatching each
// request to the engine and committing the consumer offset only after
// the engine has durably processed it (spec §5: requests are
// committed after, never before, their effects are durable).
//
// Snapshots are taken on this same goroutine, between requests, rather
// than off a separate ticker: the orderbook's Order records have no
// lock of their own, so walking them for a snapshot is only safe from
// the single goroutine that is also the engine's sole mutator.
func (s *Shard) Run(ctx context.Context) error {
	lastSnapshot := s.clock.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := s.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("request bus read failed", zap.Error(err))
			continue
		}

		var env matching.RequestEnvelope
		if err := decodeRequest(msg.Value, &env); err != nil {
			s.log.Error("malformed request envelope", zap.Error(err))
			if err := s.consumer.Commit(ctx, msg); err != nil {
				s.log.Error("commit malformed request", zap.Error(err))
			}
			continue
		}

		if _, err := s.engine.Dispatch(env); err != nil {
			s.log.Error("request dispatch failed", zap.Error(err), zap.String("kind", string(env.Kind)))
		}

		if err := s.consumer.Commit(ctx, msg); err != nil {
			s.log.Error("commit request offset failed", zap.Error(err))
		}

		if now := s.clock.Now(); now.Sub(lastSnapshot) >= s.cfg.Engine.SnapshotEach {
			if err := s.writeSnapshot(); err != nil {
				s.log.Error("snapshot write failed", zap.Error(err))
			}
			lastSnapshot = now
		}
	}
}

func (s *Shard) writeSnapshot() error {
	eventSeq, arrivalSeq := s.engine.SeqState()
	w := snapshot.Writer{Dir: s.snapshotDir, Clock: s.clock}
	return w.Write(eventSeq, arrivalSeq, s.engine.BooksByString(), s.engine.Ledger())
}

func decodeRequest(raw []byte, env *matching.RequestEnvelope) error {
	return json.Unmarshal(raw, env)
}

// Close releases the shard's durable stores and bus connections. The
// in-flight request bus read, if any, is left to the caller's ctx
// cancellation to unblock.
func (s *Shard) Close() error {
	if err := s.consumer.Close(); err != nil {
		s.log.Error("close request consumer", zap.Error(err))
	}
	if err := s.entryWAL.Close(); err != nil {
		s.log.Error("close entry wal", zap.Error(err))
	}
	if err := s.outbox.Close(); err != nil {
		s.log.Error("close outbox", zap.Error(err))
	}
	return nil
}

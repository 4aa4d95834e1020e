// Package broadcaster drains the engine's outbox to Kafka: a single
// consumer ("kafka") scanning forward from its persisted cursor,
// publishing each event envelope, and only advancing the cursor once
// sarama confirms the broker accepted it. A crash between publish and
// cursor-advance simply re-publishes on restart — downstream consumers
// of the Kafka topic are expected to dedupe on envelope seq.
package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/infra/wal/exit"
)

const consumerName = "kafka"

type Broadcaster struct {
	outbox   *exit.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(outbox *exit.Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := b.drainOnce(); err != nil {
					b.log.Error("broadcaster drain failed", zap.Error(err))
				}
			}
		}
	}()
}

func (b *Broadcaster) drainOnce() error {
	cursor, err := b.outbox.CursorGet(consumerName)
	if err != nil {
		return err
	}

	lastSent := cursor
	scanErr := b.outbox.ScanFrom(cursor, func(seq uint64, payload []byte) error {
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			// Stop here; retry from lastSent on the next tick.
			return err
		}
		lastSent = seq
		return nil
	})

	if lastSent > cursor {
		if err := b.outbox.CursorSet(consumerName, lastSent); err != nil {
			return err
		}
	}
	return scanErr
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

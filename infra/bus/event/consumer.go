// Package event wraps the engine→aggregator event channel's consuming
// side: a sarama consumer tailing every partition of the event topic
// the broadcaster publishes to (jobs/broadcaster), independent of and
// never competing with the persistence worker's own consumption of the
// same topic — Kafka fan-out, not a shared queue. Grounded on the same
// sarama config shape jobs/broadcaster.go already builds for the
// producer side of this topic.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
)

type Consumer struct {
	consumer sarama.Consumer
	messages chan *sarama.ConsumerMessage
	errors   chan error

	mu     sync.Mutex
	parts  []sarama.PartitionConsumer
	lagSum int64
}

func NewConsumer(brokers []string, topic string) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	sc, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	partitions, err := sc.Partitions(topic)
	if err != nil {
		sc.Close()
		return nil, err
	}

	c := &Consumer{
		consumer: sc,
		messages: make(chan *sarama.ConsumerMessage, 256),
		errors:   make(chan error, 16),
	}

	for _, p := range partitions {
		pc, err := sc.ConsumePartition(topic, p, sarama.OffsetOldest)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.parts = append(c.parts, pc)
		go c.pump(pc)
	}

	return c, nil
}

func (c *Consumer) pump(pc sarama.PartitionConsumer) {
	for {
		select {
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			lag := pc.HighWaterMarkOffset() - msg.Offset - 1
			if lag < 0 {
				lag = 0
			}
			atomic.StoreInt64(&c.lagSum, lag)
			c.messages <- msg
		case err, ok := <-pc.Errors():
			if !ok {
				continue
			}
			c.errors <- err
		}
	}
}

func (c *Consumer) Messages() <-chan *sarama.ConsumerMessage { return c.messages }
func (c *Consumer) Errors() <-chan error                     { return c.errors }

// Lag reports the distance between the highest offset the broker has
// and the offset just consumed, as observed on whichever partition
// delivered a message most recently; the lags of the other partitions
// are not added in. Approximate by design — good enough
// to trip the aggregator's lag-high-water warning, not a precise
// committed-offset accounting.
func (c *Consumer) Lag() int64 { return atomic.LoadInt64(&c.lagSum) }

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pc := range c.parts {
		pc.AsyncClose()
	}
	return c.consumer.Close()
}

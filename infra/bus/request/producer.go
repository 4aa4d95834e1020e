// Package request wraps the gateway→engine request channel: a
// kafka-go producer on the submitting side and a group-consuming
// reader on the engine side, partitioned so all requests for a given
// market land on the same partition and are therefore delivered to the
// engine in submission order (spec: "durable, ordered request bus").
package request

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer is grounded on infra/kafka/producer.go, generalized to hash
// on market_id so every request for a market lands on one partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send publishes one request envelope keyed by market_id.
func (p *Producer) Send(ctx context.Context, marketID string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(marketID),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

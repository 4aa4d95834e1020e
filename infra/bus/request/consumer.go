package request

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Consumer is the engine-side reader: a consumer-group reader whose
// committed offset IS the resumable cursor spec asks for on this side
// of the bus — kafka-go tracks it natively, so the engine doesn't need
// its own cursor store for inbound requests the way it does for the
// outbound event outbox.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}
}

// Next blocks until the next request envelope is available, returning
// the fetched message (its Value holds the envelope's raw bytes). The
// caller commits by calling Commit after the
// request has been durably processed (event appended), never before.
func (c *Consumer) Next(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	return c.reader.CommitMessages(ctx, msg)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer wraps kafka-go Reader with explicit fetch/commit so callers own
// their at-least-once semantics.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewConsumer constructs a Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafkago.FirstOffset,
		}),
	}
}

// Fetch blocks until a message is available or ctx is done. The message is
// not committed; pass it to Commit once it has been fully processed.
func (c *Consumer) Fetch(ctx context.Context) (kafkago.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit marks messages as processed for the consumer group.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

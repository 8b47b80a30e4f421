package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// MessageHandler processes one message. Errors are retried; wrap an error
// with resilience.Permanent to give up on the message immediately.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Reader is the part of *kafka.Reader the consume loop uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const fetchBackoff = time.Second

// Consumer dispatches messages of one topic to a handler. A message is
// committed once the handler succeeded or gave up; a message whose handling
// was interrupted by shutdown stays uncommitted and is redelivered.
type Consumer struct {
	reader    Reader
	handler   MessageHandler
	retry     resilience.RetryConfig
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler, resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	})
}

func newConsumer(r Reader, topic string, handler MessageHandler, retry resilience.RetryConfig) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   retry,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-time.After(fetchBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		if !c.process(ctx, msg) {
			c.logger.Info("consumer stopping mid-message, left uncommitted", "offset", msg.Offset)
			return nil
		}
	}
}

// process handles msg and commits it. It reports false when ctx ended
// before the handler was done.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	logger := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	logger.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	err := resilience.Retry(ctx, "kafka-handler", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		logger.Error("message dropped", "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Error("failed to commit message", "error", err)
	}
	return true
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.reader.Close() })
	return c.closeErr
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

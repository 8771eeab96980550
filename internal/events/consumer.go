package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultHandleAttempts = 3
	defaultRetryBackoff   = 200 * time.Millisecond
)

// CartEventHandler applies one cart event. A returned error is retried a few
// times; after that the event is logged and committed so the partition keeps
// moving.
type CartEventHandler func(ctx context.Context, event CartLineChanged) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartEventConsumer struct {
	reader       messageReader
	logger       *zap.Logger
	maxAttempts  int
	retryBackoff time.Duration
}

func NewCartEventConsumer(brokers, topic, groupID string, logger *zap.Logger) *CartEventConsumer {
	return newCartEventConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers: splitBrokers(brokers),
		GroupID: groupID,
		Topic:   topic,
	}), logger)
}

func newCartEventConsumer(reader messageReader, logger *zap.Logger) *CartEventConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartEventConsumer{
		reader:       reader,
		logger:       logger,
		maxAttempts:  defaultHandleAttempts,
		retryBackoff: defaultRetryBackoff,
	}
}

// Run consumes until ctx is cancelled. Undecodable messages are committed and
// skipped.
func (c *CartEventConsumer) Run(ctx context.Context, handle CartEventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		event, err := DecodeCartLineChanged(msg.Value)
		if err != nil {
			c.logger.Warn("Skipping malformed cart event",
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		} else if err := c.handle(ctx, handle, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Dropping cart event after retries",
				zap.String("event_id", event.EventID),
				zap.String("cart_id", event.CartID),
				zap.Int64("offset", msg.Offset),
				zap.Int("attempts", c.maxAttempts),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit cart event", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *CartEventConsumer) handle(ctx context.Context, handle CartEventHandler, event CartLineChanged) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = handle(ctx, event); err == nil {
			return nil
		}
		c.logger.Warn("Failed to apply cart event",
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *CartEventConsumer) Close() error {
	return c.reader.Close()
}

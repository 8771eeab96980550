package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

type KafkaLockProducer struct {
	writer  *kafka.Writer
	brokers []string
	logger  *zap.Logger
}

func NewKafkaLockProducer(brokers, topic string, logger *zap.Logger) *KafkaLockProducer {
	addrs := splitBrokers(brokers)
	return &KafkaLockProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addrs...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		brokers: addrs,
		logger:  logger,
	}
}

// PublishLockChanged writes the event keyed by cart so per-cart order holds.
func (p *KafkaLockProducer) PublishLockChanged(ctx context.Context, event PromotionLockChanged) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal lock event", zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   cartKey(event.CartID),
		Value: eventBytes,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish lock event",
			zap.String("event_id", event.EventID),
			zap.String("cart_id", event.CartID),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Lock event published",
		zap.String("event_id", event.EventID),
		zap.String("cart_id", event.CartID),
		zap.String("transition", string(event.Transition)))
	return nil
}

// HealthCheck dials the first reachable broker.
func (p *KafkaLockProducer) HealthCheck(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return ErrNoBrokers
	}
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return lastErr
}

func (p *KafkaLockProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

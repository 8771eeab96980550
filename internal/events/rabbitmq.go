package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ChannelPool hands out pre-declared channels on one AMQP connection.
type ChannelPool struct {
	conn      *amqp.Connection
	channels  chan *amqp.Channel
	mu        sync.Mutex
	closed    bool
	queueName string
}

func NewChannelPool(url, queueName string, size int) (*ChannelPool, error) {
	if size <= 0 {
		size = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pool := &ChannelPool{
		conn:      conn,
		channels:  make(chan *amqp.Channel, size),
		queueName: queueName,
	}
	for i := 0; i < size; i++ {
		ch, err := pool.createChannel()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.channels <- ch
	}
	return pool, nil
}

func (p *ChannelPool) createChannel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(
		p.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return ch, nil
}

func (p *ChannelPool) get(ctx context.Context) (*amqp.Channel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, errors.New("channel pool is closed")
		}
		if ch.IsClosed() {
			return p.createChannel()
		}
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ChannelPool) put(ch *amqp.Channel) {
	if ch == nil || ch.IsClosed() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		ch.Close()
	}
}

func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.channels)
	for ch := range p.channels {
		ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// RabbitLockPublisher sends lock events to a durable queue.
type RabbitLockPublisher struct {
	pool   *ChannelPool
	logger *zap.Logger
}

func NewRabbitLockPublisher(pool *ChannelPool, logger *zap.Logger) *RabbitLockPublisher {
	return &RabbitLockPublisher{pool: pool, logger: logger}
}

func (p *RabbitLockPublisher) PublishLockChanged(ctx context.Context, event PromotionLockChanged) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal lock event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ch, err := p.pool.get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.put(ch)

	err = ch.PublishWithContext(ctx,
		"",               // exchange
		p.pool.queueName, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Timestamp:    event.Timestamp,
			Headers:      amqp.Table{"cart_key": string(cartKey(event.CartID))},
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish lock event: %w", err)
	}

	p.logger.Debug("Lock event published to RabbitMQ",
		zap.String("event_id", event.EventID),
		zap.String("cart_id", event.CartID))
	return nil
}

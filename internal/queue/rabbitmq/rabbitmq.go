// Package rabbitmq implements the work queue on RabbitMQ with manual
// acknowledgment and a prefetch of one.
package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue"
)

// DefaultQueue is the queue name used when none is configured.
const DefaultQueue = "batches"

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// Config controls the connection.
type Config struct {
	URL   string
	Queue string
}

// Client owns a channel bound to one durable queue.
type Client struct {
	conn   *amqp.Connection
	ch     Channel
	queue  string
	logger *zap.Logger

	closed      atomic.Bool
	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// Dial connects to the broker and declares the queue. Connection failures
// surface here so the process fails at startup.
func Dial(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue.rabbitmq.url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c, err := New(ch, cfg.Queue, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	c.conn = conn
	return c, nil
}

// New wraps an open channel and declares the durable queue.
func New(ch Channel, queueName string, logger *zap.Logger) (*Client, error) {
	if ch == nil {
		return nil, fmt.Errorf("channel is required")
	}
	if queueName == "" {
		queueName = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %q: %w", queueName, err)
	}
	return &Client{ch: ch, queue: queueName, logger: logger}, nil
}

// Publish sends body to the queue through the default exchange.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	if err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{Body: body}); err != nil {
		return fmt.Errorf("publish to %q: %w", c.queue, err)
	}
	return nil
}

func (c *Client) startConsuming() error {
	c.consumeOnce.Do(func() {
		if err := c.ch.Qos(1, 0, false); err != nil {
			c.consumeErr = fmt.Errorf("set qos: %w", err)
			return
		}
		deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
		if err != nil {
			c.consumeErr = fmt.Errorf("consume %q: %w", c.queue, err)
			return
		}
		c.deliveries = deliveries
	})
	return c.consumeErr
}

// Receive returns the next delivery. At most one delivery is unacknowledged
// per client.
func (c *Client) Receive(ctx context.Context) (pipeline.Delivery, error) {
	if err := c.startConsuming(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("receive canceled: %w", ctx.Err())
	case d, ok := <-c.deliveries:
		if !ok {
			if c.closed.Load() {
				return nil, queue.ErrClosed
			}
			return nil, fmt.Errorf("rabbitmq deliveries on %q stopped: %w", c.queue, queue.ErrConnectionLost)
		}
		return &delivery{d: d}, nil
	}
}

// Close closes the channel and, when dialed, the connection.
func (c *Client) Close() error {
	c.closed.Store(true)
	if err := c.ch.Close(); err != nil {
		c.logger.Warn("close rabbitmq channel", zap.Error(err))
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

type delivery struct {
	d amqp.Delivery
}

func (d *delivery) ID() string   { return strconv.FormatUint(d.d.DeliveryTag, 10) }
func (d *delivery) Body() []byte { return d.d.Body }

func (d *delivery) Ack(context.Context) error {
	if err := d.d.Ack(false); err != nil {
		return fmt.Errorf("ack delivery %d: %w", d.d.DeliveryTag, err)
	}
	return nil
}

func (d *delivery) Nack(_ context.Context, requeue bool) error {
	if err := d.d.Nack(false, requeue); err != nil {
		return fmt.Errorf("nack delivery %d: %w", d.d.DeliveryTag, err)
	}
	return nil
}

// Package pubsub implements the work queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
	"github.com/JakeFAU/cc-text-pipeline/internal/queue"
)

// Publisher publishes batches to a topic.
type Publisher struct {
	topic *pubsub.Topic
}

// NewPublisher verifies that topicID exists.
func NewPublisher(ctx context.Context, client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("queue.pubsub.topic_id is required")
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{topic: topic}, nil
}

// Publish sends body and waits for the server to accept it.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: body})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %q: %w", p.topic.ID(), err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *Publisher) Close() error {
	p.topic.Stop()
	return nil
}

// Consumer adapts the callback-based Receive API to a pull loop with one
// outstanding message.
type Consumer struct {
	sub    *pubsub.Subscription
	logger *zap.Logger

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	messages  chan *pubsub.Message
	done      chan struct{}
	recvErr   error
}

// NewConsumer verifies that subscriptionID exists.
func NewConsumer(ctx context.Context, client *pubsub.Client, subscriptionID string, logger *zap.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if subscriptionID == "" {
		return nil, fmt.Errorf("queue.pubsub.subscription_id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscription(subscriptionID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub subscription %q: %w", subscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub subscription %q does not exist", subscriptionID)
	}
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1

	rctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		sub:      sub,
		logger:   logger,
		ctx:      rctx,
		cancel:   cancel,
		messages: make(chan *pubsub.Message),
		done:     make(chan struct{}),
	}, nil
}

func (c *Consumer) start() {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			err := c.sub.Receive(c.ctx, func(ctx context.Context, msg *pubsub.Message) {
				select {
				case c.messages <- msg:
				case <-ctx.Done():
					msg.Nack()
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("pubsub receive stopped", zap.Error(err))
				c.recvErr = err
			}
		}()
	})
}

// Receive returns the next message.
func (c *Consumer) Receive(ctx context.Context) (pipeline.Delivery, error) {
	c.start()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("receive canceled: %w", ctx.Err())
	case msg := <-c.messages:
		return &delivery{msg: msg}, nil
	case <-c.done:
		if c.recvErr != nil {
			return nil, fmt.Errorf("pubsub receive: %w", c.recvErr)
		}
		return nil, queue.ErrClosed
	}
}

// Close stops receiving and waits for the receive loop to exit.
func (c *Consumer) Close() error {
	c.cancel()
	c.start()
	<-c.done
	return nil
}

type delivery struct {
	msg *pubsub.Message
}

func (d *delivery) ID() string   { return d.msg.ID }
func (d *delivery) Body() []byte { return d.msg.Data }

func (d *delivery) Ack(context.Context) error {
	d.msg.Ack()
	return nil
}

// Nack always makes the message eligible for redelivery; Pub/Sub has no
// drop-on-nack, so poison messages rely on a dead-letter policy.
func (d *delivery) Nack(_ context.Context, _ bool) error {
	d.msg.Nack()
	return nil
}

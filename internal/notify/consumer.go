package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/quickshow-booking/internal/logging"
)

// Handler processes one decoded notification event.
type Handler interface {
	Handle(ctx context.Context, eventType string, body []byte) error
}

// Consumer reads the notification queue and hands each message to a
// Handler.  Messages are acked on success and rejected without requeue on
// failure, so a poison message never loops.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handler  Handler
}

// NewConsumer returns a Consumer for queue on the broker at url.
func NewConsumer(url, queue string, h Handler) *Consumer {
	return &Consumer{url: url, queue: queue, prefetch: 50, handler: h}
}

// Run connects and consumes until ctx is cancelled.  Dial failures and
// dropped connections are retried with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).WithField("queue", c.queue)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			b.Reset()
			err = c.consumeLoop(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
		}
		wait := b.NextBackOff()
		log.WithError(err).WithField("retry_in", wait.String()).Warn("notification consumer disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("set QoS failed")
	}
	if err := declareQueue(ch, c.queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process dispatches one delivery and settles it.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"event_type": d.Type,
		"message_id": d.MessageId,
	})
	if d.Redelivered {
		log = log.WithField("redelivered", true)
	}
	if err := c.handler.Handle(logging.ToContext(ctx, log), d.Type, d.Body); err != nil {
		log.WithError(err).Error("notification handling failed")
		_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
		return
	}
	_ = d.Ack(false)
}

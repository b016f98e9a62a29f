package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer delivers FileMessages from a queue to a jobs.JobHandler. Every
// delivery is settled exactly once: Ack on success, Nack without requeue on
// any failure so a poison message cannot loop.
type Consumer struct {
	ch       channel
	queue    string
	prefetch int
	tag      string
	log      zerolog.Logger

	wg sync.WaitGroup
}

// NewConsumer opens a channel on conn, declares queue and applies prefetch.
func NewConsumer(conn *amqp.Connection, queue string, prefetch int, log zerolog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	c, err := newConsumer(ch, queue, prefetch, log)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return c, nil
}

func newConsumer(ch channel, queue string, prefetch int, log zerolog.Logger) (*Consumer, error) {
	if err := declareQueue(ch, queue); err != nil {
		return nil, err
	}
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &Consumer{
		ch:       ch,
		queue:    queue,
		prefetch: prefetch,
		tag:      "statement-relay-" + uuid.NewString(),
		log:      log.With().Str("queue", queue).Logger(),
	}, nil
}

// Start implements jobs.Consumer. Deliveries are handled one at a time;
// scale out by running more consumers.
func (c *Consumer) Start(ctx context.Context, handler jobs.JobHandler) error {
	msgs, err := c.ch.Consume(
		c.queue,
		c.tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info().Int("prefetch", c.prefetch).Msg("Waiting for messages")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.Warn().Msg("Delivery channel closed")
					return
				}
				c.handleDelivery(ctx, d, handler)
			}
		}
	}()

	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler jobs.JobHandler) {
	var msg jobs.FileMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("Dropping undecodable message")
		c.settle(d, err)
		return
	}

	log := logger.WithJob(c.log, msg.JobID, msg.FileHash, msg.Filename)
	if msg.OrgID != "" {
		log = log.With().Str("org_id", msg.OrgID).Logger()
	}
	log.Info().Bool("redelivered", d.Redelivered).Msg("Received message")

	job := jobs.NewParseStatementJob(msg)
	job.Status = jobs.JobStatusRunning

	err := handler(logger.WithContext(ctx, log), job)
	c.settle(d, err)
}

func (c *Consumer) settle(d amqp.Delivery, err error) {
	if err != nil {
		if nerr := d.Nack(false, false); nerr != nil {
			c.log.Error().Err(nerr).Uint64("delivery_tag", d.DeliveryTag).Msg("Failed to nack message")
		}
		return
	}
	if aerr := d.Ack(false); aerr != nil {
		c.log.Error().Err(aerr).Uint64("delivery_tag", d.DeliveryTag).Msg("Failed to ack message")
	}
}

// Stop implements jobs.Consumer. It cancels the subscription and waits for
// the in-flight delivery to finish.
func (c *Consumer) Stop(ctx context.Context) error {
	if err := c.ch.Cancel(c.tag, false); err != nil {
		c.log.Warn().Err(err).Msg("Failed to cancel consumer")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the consumer's channel. The connection belongs to the caller.
func (c *Consumer) Close() error {
	return c.ch.Close()
}

var _ jobs.Consumer = (*Consumer)(nil)

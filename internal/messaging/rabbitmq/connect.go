// Package rabbitmq carries statement jobs in and parsed statements out over
// AMQP 0-9-1.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// channel is the subset of *amqp.Channel used here.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type DialOptions struct {
	URL      string
	Attempts int
	Delay    time.Duration
}

// Dial connects to the broker, retrying up to opts.Attempts times.
func Dial(ctx context.Context, opts DialOptions, log zerolog.Logger) (*amqp.Connection, error) {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(opts.URL)
		if err == nil {
			log.Info().Int("attempt", i).Msg("Connected to RabbitMQ")
			return conn, nil
		}

		log.Warn().Err(err).Int("attempt", i).Int("max_attempts", attempts).Msg("Failed to connect to RabbitMQ")
		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, err)
}

// declareQueue declares a durable, non-exclusive queue.
func declareQueue(ch channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

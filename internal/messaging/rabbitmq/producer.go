package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/jobs"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const contentTypeJSON = "application/json"

// Producer publishes parsed statements to the forward queue and new jobs to
// the parse queue.
type Producer struct {
	ch           channel
	parseQueue   string
	forwardQueue string
	log          zerolog.Logger

	mu sync.Mutex
}

// NewProducer opens a channel on conn and declares both queues.
func NewProducer(conn *amqp.Connection, parseQueue, forwardQueue string, log zerolog.Logger) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newProducer(ch, parseQueue, forwardQueue, log)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func newProducer(ch channel, parseQueue, forwardQueue string, log zerolog.Logger) (*Producer, error) {
	for _, q := range []string{parseQueue, forwardQueue} {
		if q == "" {
			continue
		}
		if err := declareQueue(ch, q); err != nil {
			return nil, err
		}
	}
	return &Producer{ch: ch, parseQueue: parseQueue, forwardQueue: forwardQueue, log: log}, nil
}

// Forward implements pipeline.Forwarder.
func (p *Producer) Forward(ctx context.Context, record *domain.StatementRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal statement: %w", err)
	}
	if err := p.publish(ctx, p.forwardQueue, record.JobID, body); err != nil {
		return err
	}

	p.log.Debug().
		Str("job_id", record.JobID).
		Str("queue", p.forwardQueue).
		Int("bytes", len(body)).
		Msg("Statement forwarded")
	return nil
}

// PublishParseStatement implements jobs.Publisher.
func (p *Producer) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	body, err := json.Marshal(job.Message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.publish(ctx, p.parseQueue, job.GetID(), body); err != nil {
		return err
	}

	p.log.Info().
		Str("job_id", job.GetID()).
		Str("file_hash", job.Message.FileHash).
		Str("queue", p.parseQueue).
		Int64("file_size", job.Message.FileSize).
		Msg("Job published")
	return nil
}

func (p *Producer) publish(ctx context.Context, queue, messageID string, body []byte) error {
	if queue == "" {
		return fmt.Errorf("no queue configured")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	return nil
}

// Close implements jobs.Publisher. The connection belongs to the caller.
func (p *Producer) Close() error {
	return p.ch.Close()
}

var _ jobs.Publisher = (*Producer)(nil)

package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by PublishParseStatement and Start after Stop.
var ErrQueueClosed = errors.New("queue is closed")

// Config tunes a Queue.
type Config struct {
	// BufferSize is how many jobs can wait before PublishParseStatement blocks.
	BufferSize int
	// Workers is the number of concurrent handlers.
	Workers int
	// MaxRetries applies to jobs published without their own limit. Relay jobs
	// use 0: a failed unit is dropped, not redelivered.
	MaxRetries int
	// RetryBackoff is multiplied by the retry count before re-enqueueing.
	RetryBackoff time.Duration
}

// DefaultConfig returns the settings the api server uses.
func DefaultConfig() Config {
	return Config{
		BufferSize:   100,
		Workers:      5,
		MaxRetries:   0,
		RetryBackoff: time.Second,
	}
}

// Queue runs statement jobs in-process on a fixed worker pool. It stands in
// for the parse_ready queue when the api server relays uploads itself; every
// status change is mirrored into the job store so /api/jobs can report it.
type Queue struct {
	cfg   Config
	store jobs.JobStore
	log   zerolog.Logger

	pending chan *jobs.ParseStatementJob
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue returns a queue that is accepting jobs but has no workers until
// Start. store may be nil.
func NewQueue(cfg Config, store jobs.JobStore, log zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}
	return &Queue{
		cfg:     cfg,
		store:   store,
		log:     log.With().Str("component", "job_queue").Logger(),
		pending: make(chan *jobs.ParseStatementJob, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// PublishParseStatement fills in the job id, status, creation time and retry
// limit when unset, records the job as pending and hands it to a worker. It
// blocks while the buffer is full.
func (q *Queue) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	if job.Message.JobID == "" {
		job.Message.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.cfg.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return err
		}
	}

	select {
	case q.pending <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Start launches cfg.Workers goroutines feeding jobs to handler until ctx is
// cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, handler)
	}
	q.log.Debug().Int("workers", q.cfg.Workers).Msg("Job workers started")
	return nil
}

func (q *Queue) work(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case job := <-q.pending:
			q.run(ctx, job, handler)
		}
	}
}

// run executes one attempt and decides whether the job completes, fails or
// goes back on the queue.
func (q *Queue) run(ctx context.Context, job *jobs.ParseStatementJob, handler jobs.JobHandler) {
	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	q.save(ctx, job)

	err := handler(ctx, job)

	finished := time.Now()
	job.CompletedAt = &finished

	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case job.RetryCount < job.MaxRetries:
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		job.RetryCount++
		q.scheduleRetry(ctx, job)
	default:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	}

	q.log.Debug().
		Str("job_id", job.GetID()).
		Str("status", string(job.Status)).
		Int("retry_count", job.RetryCount).
		Dur("duration", finished.Sub(started)).
		Msg("Job attempt finished")

	q.save(ctx, job)
}

// scheduleRetry re-publishes a copy of job after a linear backoff; the
// original stays with the worker that is still recording it.
func (q *Queue) scheduleRetry(ctx context.Context, job *jobs.ParseStatementJob) {
	next := *job
	next.Status = jobs.JobStatusPending
	next.StartedAt = nil
	next.CompletedAt = nil

	backoff := time.Duration(job.RetryCount) * q.cfg.RetryBackoff
	time.AfterFunc(backoff, func() {
		if err := q.PublishParseStatement(ctx, &next); err != nil {
			q.log.Warn().Err(err).Str("job_id", next.GetID()).Msg("Dropping retry")
		}
	})
}

// save mirrors job into the store. Status tracking is best effort and never
// fails the job.
func (q *Queue) save(ctx context.Context, job *jobs.ParseStatementJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Warn().Err(err).Str("job_id", job.GetID()).Str("status", string(job.Status)).Msg("Failed to record job status")
	}
}

// Stop refuses new jobs and waits for in-flight ones. Jobs still buffered are
// abandoned. It is safe to call more than once.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		if n := len(q.pending); n > 0 {
			q.log.Warn().Int("abandoned", n).Msg("Job queue stopped with jobs still buffered")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/statement-relay/internal/blobstore"
	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/rs/zerolog"
)

// Relay drives one FileMessage through materialize, parse, stamp and forward,
// releasing any staged blob exactly once afterwards.
type Relay struct {
	store           blobstore.Store
	forwarder       Forwarder
	recorder        RunRecorder
	forwardAttempts int
	log             zerolog.Logger
	now             func() time.Time
}

// Option configures a Relay.
type Option func(*Relay)

// WithRunRecorder records a RunReport for every processed message.
func WithRunRecorder(rec RunRecorder) Option {
	return func(r *Relay) { r.recorder = rec }
}

// WithForwardAttempts bounds how often a parsed record is sent downstream.
func WithForwardAttempts(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.forwardAttempts = n
		}
	}
}

// NewRelay builds a relay. store may be nil when only inline messages are
// expected.
func NewRelay(store blobstore.Store, forwarder Forwarder, log zerolog.Logger, opts ...Option) *Relay {
	r := &Relay{
		store:           store,
		forwarder:       forwarder,
		forwardAttempts: 1,
		log:             log,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process runs one unit of work. On failure no record is returned; the error
// is the first step failure, unchanged apart from ErrForwardFailed wrapping.
func (r *Relay) Process(ctx context.Context, msg *jobs.FileMessage) (*domain.StatementRecord, error) {
	log := logger.WithJob(r.log, msg.JobID, msg.FileHash, msg.Filename)
	ctx = logger.WithContext(ctx, log)

	started := r.now()
	state := NewPipelineState(msg)

	err := r.run(ctx, state)

	report := r.report(state, started, err)
	r.record(ctx, log, report)

	if err != nil {
		log.Error().
			Err(err).
			Str("stage", string(state.FailedAt)).
			Str("source", report.SourceVariant).
			Msg("Statement relay failed")
		return nil, err
	}

	log.Info().
		Str("source", report.SourceVariant).
		Str("org_id", state.Record.OrgID).
		Int("transactions", len(state.Record.Transactions)).
		Dur("duration", report.FinishedAt.Sub(started)).
		Msg("Statement relayed")

	return state.Record, nil
}

// HandleJob adapts Process to jobs.JobHandler.
func (r *Relay) HandleJob(ctx context.Context, job jobs.Job) error {
	parseJob, ok := job.(*jobs.ParseStatementJob)
	if !ok {
		return fmt.Errorf("unexpected job type: %T", job)
	}
	_, err := r.Process(ctx, &parseJob.Message)
	return err
}

func (r *Relay) run(ctx context.Context, state *PipelineState) error {
	defer state.release(ctx)
	return NewRelayPipeline(r.store, r.forwarder, r.forwardAttempts).Execute(ctx, state)
}

func (r *Relay) report(state *PipelineState, started time.Time, err error) *domain.RunReport {
	report := &domain.RunReport{
		JobID:      state.Message.JobID,
		FileHash:   state.Message.FileHash,
		Filename:   state.Message.Filename,
		Stage:      domain.StageComplete,
		StartedAt:  started,
		FinishedAt: r.now(),
	}
	if state.Source != nil {
		report.SourceVariant = state.Source.Variant()
	}
	if state.Record != nil {
		report.OrgID = state.Record.OrgID
		report.StatementDate = state.Record.StatementDate
		report.TransactionCount = len(state.Record.Transactions)
	}
	if err != nil {
		report.Stage = domain.StageFailed
		report.FailedAt = state.FailedAt
		report.Error = err.Error()
	}
	return report
}

func (r *Relay) record(ctx context.Context, log zerolog.Logger, report *domain.RunReport) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordRun(ctx, report); err != nil {
		log.Warn().Err(err).Msg("Failed to record run")
	}
}

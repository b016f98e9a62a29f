package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-relay/internal/blobstore"
	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/parser"
)

// ErrForwardFailed wraps every failure to hand the record downstream.
var ErrForwardFailed = errors.New("forward failed")

// PipelineStep represents a single step in the relay pipeline.
type PipelineStep interface {
	// Stage is the stage reached once Execute succeeds.
	Stage() domain.Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Message *jobs.FileMessage
	Source  Source
	Bytes   []byte
	Record  *domain.StatementRecord

	// Stage is the last stage reached; FailedAt is set when a step fails.
	Stage    domain.Stage
	FailedAt domain.Stage

	materialized bool
}

// NewPipelineState starts a unit of work at StageReceived.
func NewPipelineState(msg *jobs.FileMessage) *PipelineState {
	return &PipelineState{Message: msg, Stage: domain.StageReceived}
}

// release frees the source if, and only if, its bytes were obtained.
func (s *PipelineState) release(ctx context.Context) {
	if s.materialized && s.Source != nil {
		s.Source.Release(ctx)
	}
}

// Step 1: MaterializeStep selects the source variant and obtains the bytes.
type MaterializeStep struct {
	Store blobstore.Store
}

func (s *MaterializeStep) Stage() domain.Stage { return domain.StageBytesMaterialized }

func (s *MaterializeStep) Execute(ctx context.Context, state *PipelineState) error {
	src, err := NewSource(state.Message, s.Store)
	if err != nil {
		return err
	}
	state.Source = src

	data, err := src.Materialize(ctx)
	if err != nil {
		return err
	}
	state.Bytes = data
	state.materialized = true
	return nil
}

// Step 2: ParseStep turns the bytes into a statement record.
type ParseStep struct{}

func (s *ParseStep) Stage() domain.Stage { return domain.StageParsed }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	record, err := parser.ParseBytes(state.Bytes)
	if err != nil {
		return err
	}
	state.Record = record
	return nil
}

// Step 3: StampStep copies the correlation identifiers onto the record.
// It does not advance the stage.
type StampStep struct{}

func (s *StampStep) Stage() domain.Stage { return domain.StageParsed }

func (s *StampStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Record.Stamp(state.Message.JobID, state.Message.FileHash)
	return nil
}

// Step 4: ForwardStep sends the record downstream, re-sending the same
// record up to Attempts times.
type ForwardStep struct {
	Forwarder Forwarder
	Attempts  int
}

func (s *ForwardStep) Stage() domain.Stage { return domain.StageForwarded }

func (s *ForwardStep) Execute(ctx context.Context, state *PipelineState) error {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = s.Forwarder.Forward(ctx, state.Record); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if i < attempts {
			l := logger.FromContext(ctx)
			l.Warn().Err(err).Int("attempt", i).Msg("Forward failed, retrying")
		}
	}
	return fmt.Errorf("%w: %w", ErrForwardFailed, err)
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			state.FailedAt = step.Stage()
			return err
		}
		state.Stage = step.Stage()
	}
	return nil
}

// NewRelayPipeline creates the standard materialize, parse, stamp, forward
// pipeline.
func NewRelayPipeline(store blobstore.Store, forwarder Forwarder, forwardAttempts int) *Pipeline {
	return NewPipeline(
		&MaterializeStep{Store: store},
		&ParseStep{},
		&StampStep{},
		&ForwardStep{Forwarder: forwarder, Attempts: forwardAttempts},
	)
}

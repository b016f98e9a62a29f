package pipeline

import (
	"context"

	"github.com/dvloznov/statement-relay/internal/domain"
)

// Forwarder hands a finished record to the downstream consumer.
type Forwarder interface {
	Forward(ctx context.Context, record *domain.StatementRecord) error
}

// RunRecorder persists the outcome of one unit of work.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *domain.RunReport) error
}

package pipeline

import (
	"context"

	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/rs/zerolog"
)

// LogForwarder logs a summary of each record instead of publishing it. Used
// when no broker is configured.
type LogForwarder struct {
	log zerolog.Logger
}

func NewLogForwarder(log zerolog.Logger) *LogForwarder {
	return &LogForwarder{log: log}
}

func (f *LogForwarder) Forward(ctx context.Context, record *domain.StatementRecord) error {
	event := f.log.Info().
		Str("job_id", record.JobID).
		Str("file_hash", record.FileHash).
		Str("org_id", record.OrgID).
		Str("current_balance", record.CurrentBalance.StringFixed(domain.AmountPlaces)).
		Int("transactions", len(record.Transactions))
	if record.StatementDate != nil {
		event = event.Str("statement_date", *record.StatementDate)
	}
	event.Msg("Statement ready")
	return nil
}

var _ Forwarder = (*LogForwarder)(nil)

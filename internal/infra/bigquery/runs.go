package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-relay/internal/domain"
)

const (
	runsTable = "statement_runs"

	statementDateLayout = "02/01/2006"
	maxErrorLen         = 2000
)

// RunRow is one row of <dataset>.statement_runs.
type RunRow struct {
	JobID    string `bigquery:"job_id"`    // REQUIRED
	FileHash string `bigquery:"file_hash"` // REQUIRED

	Filename      string `bigquery:"filename"`       // NULLABLE
	SourceVariant string `bigquery:"source_variant"` // NULLABLE
	OrgID         string `bigquery:"org_id"`         // NULLABLE

	StatementDate    bigquery.NullDate `bigquery:"statement_date"` // NULLABLE
	TransactionCount int64             `bigquery:"transaction_count"`

	Status       string `bigquery:"status"`        // COMPLETE or FAILED
	FailedStage  string `bigquery:"failed_stage"`  // NULLABLE
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	StartedTS  time.Time `bigquery:"started_ts"`  // REQUIRED
	FinishedTS time.Time `bigquery:"finished_ts"` // REQUIRED
}

// RunRowFromReport converts a report into its ledger row. Unparseable
// statement dates are stored as NULL.
func RunRowFromReport(r *domain.RunReport) *RunRow {
	row := &RunRow{
		JobID:            r.JobID,
		FileHash:         r.FileHash,
		Filename:         r.Filename,
		SourceVariant:    r.SourceVariant,
		OrgID:            r.OrgID,
		TransactionCount: int64(r.TransactionCount),
		Status:           "COMPLETE",
		StartedTS:        r.StartedAt,
		FinishedTS:       r.FinishedAt,
	}

	if r.StatementDate != nil {
		if t, err := time.Parse(statementDateLayout, *r.StatementDate); err == nil {
			row.StatementDate = bigquery.NullDate{Date: civil.DateOf(t), Valid: true}
		}
	}

	if !r.Succeeded() {
		row.Status = "FAILED"
		row.FailedStage = string(r.FailedAt)
		row.ErrorMessage = r.Error
		if len(row.ErrorMessage) > maxErrorLen {
			row.ErrorMessage = row.ErrorMessage[:maxErrorLen]
		}
	}

	return row
}

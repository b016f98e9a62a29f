package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/logger"
	"google.golang.org/api/iterator"
)

// RunLedger appends one row per processed statement to statement_runs.
type RunLedger struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewRunLedger creates a ledger with its own BigQuery client.
func NewRunLedger(ctx context.Context, project, dataset string) (*RunLedger, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewRunLedger: creating client: %w", err)
	}
	return &RunLedger{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (l *RunLedger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// EnsureTable creates statement_runs from the RunRow schema when missing.
func (l *RunLedger) EnsureTable(ctx context.Context) error {
	table := l.client.Dataset(l.dataset).Table(runsTable)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	}

	schema, err := bigquery.InferSchema(RunRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "started_ts",
		},
	}
	if err := table.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureTable: creating %s.%s: %w", l.dataset, runsTable, err)
	}

	lg := logger.FromContext(ctx)
	lg.Info().Str("table", runsTable).Msg("Created run ledger table")
	return nil
}

// RecordRun implements pipeline.RunRecorder with a streaming insert.
func (l *RunLedger) RecordRun(ctx context.Context, report *domain.RunReport) error {
	row := RunRowFromReport(report)

	inserter := l.client.Dataset(l.dataset).Table(runsTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("RecordRun: inserting row for job %s: %w", report.JobID, err)
	}
	return nil
}

// ListRecentRuns returns up to limit rows, newest first.
func (l *RunLedger) ListRecentRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := l.client.Query(fmt.Sprintf(`
		SELECT
			job_id,
			file_hash,
			filename,
			source_variant,
			org_id,
			statement_date,
			transaction_count,
			status,
			failed_stage,
			error_message,
			started_ts,
			finished_ts
		FROM `+"`%s.%s.%s`"+`
		ORDER BY started_ts DESC
		LIMIT @limit
	`, l.project, l.dataset, runsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var rows []*RunRow
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}

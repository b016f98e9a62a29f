package domain

import "time"

// Stage is a position in the lifecycle of one unit of work.
type Stage string

const (
	StageReceived          Stage = "received"
	StageBytesMaterialized Stage = "bytes_materialized"
	StageParsed            Stage = "parsed"
	StageForwarded         Stage = "forwarded"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

// RunReport summarises one unit of work after it terminated.
type RunReport struct {
	JobID            string
	FileHash         string
	Filename         string
	SourceVariant    string
	OrgID            string
	StatementDate    *string
	TransactionCount int

	// Stage is StageComplete or StageFailed; FailedAt names the stage that
	// was being entered when the failure happened.
	Stage    Stage
	FailedAt Stage
	Error    string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the unit of work reached StageComplete.
func (r *RunReport) Succeeded() bool {
	return r.Stage == StageComplete
}

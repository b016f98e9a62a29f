package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeParseStatement represents a statement parse-and-forward job.
	JobTypeParseStatement JobType = "parse_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// FileMessage is the inbound unit of work as it travels on the parse queue.
// Exactly one of FileContent (base64) or RedisKey is expected; when both are
// set the inline content wins.
type FileMessage struct {
	JobID       string `json:"job_id"`
	FileHash    string `json:"file_hash"`
	Filename    string `json:"filename,omitempty"`
	FileContent string `json:"file_content,omitempty"`
	RedisKey    string `json:"redis_key,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	OrgID       string `json:"org_id,omitempty"`
}

// HasInlineContent reports whether the message carries the file bytes itself.
func (m *FileMessage) HasInlineContent() bool {
	return m.FileContent != ""
}

// HasReference reports whether the message points into the blob store.
func (m *FileMessage) HasReference() bool {
	return m.RedisKey != ""
}

// ParseStatementJob tracks one FileMessage through the relay.
type ParseStatementJob struct {
	// Message is the payload as received or published.
	Message FileMessage `json:"message"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// NewParseStatementJob wraps msg in a pending job.
func NewParseStatementJob(msg FileMessage) *ParseStatementJob {
	return &ParseStatementJob{
		Message:   msg,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ParseStatementJob) GetID() string {
	return j.Message.JobID
}

// GetType implements the Job interface.
func (j *ParseStatementJob) GetType() JobType {
	return JobTypeParseStatement
}

// GetStatus implements the Job interface.
func (j *ParseStatementJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// Implemented by the in-memory queue and the RabbitMQ producer.
type Publisher interface {
	// PublishParseStatement publishes a statement parsing job.
	PublishParseStatement(ctx context.Context, job *ParseStatementJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// A returned error marks the job failed; whether it is retried is up to the
// consumer.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ParseStatementJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ParseStatementJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ParseStatementJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// FileHash filters jobs by file fingerprint.
	FileHash string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

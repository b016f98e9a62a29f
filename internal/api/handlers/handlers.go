package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dvloznov/statement-relay/internal/api/middleware"
	"github.com/dvloznov/statement-relay/internal/checksum"
	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxUploadBytes caps a statement upload.
	DefaultMaxUploadBytes = 32 << 20

	formFile  = "file"
	formOrgID = "org_id"
)

// ParseFunc parses an uploaded extract synchronously.
type ParseFunc func(ctx context.Context, r io.Reader) (*domain.StatementRecord, error)

// StatementsHandler handles statement upload endpoints.
type StatementsHandler struct {
	parse          ParseFunc
	publisher      jobs.Publisher
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(parse ParseFunc, publisher jobs.Publisher, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		parse:          parse,
		publisher:      publisher,
		maxUploadBytes: DefaultMaxUploadBytes,
		log:            log,
	}
}

// Upload handles POST /api/statement/upload. The extract is parsed in the
// request; any failure yields a generic 500 and no partial data.
func (h *StatementsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	file, filename, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	record, err := h.parse(ctx, file)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to parse uploaded statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to parse statement")
		return
	}

	log.Info().
		Str("filename", filename).
		Str("org_id", record.OrgID).
		Int("transactions", len(record.Transactions)).
		Msg("Statement parsed")

	middleware.WriteJSON(w, http.StatusOK, record)
}

// Enqueue handles POST /api/statements. The file travels inline in the job
// message and is relayed asynchronously.
func (h *StatementsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	file, filename, ok := h.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read upload")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	msg := jobs.FileMessage{
		JobID:       uuid.NewString(),
		FileHash:    checksum.BytesChecksum(data),
		Filename:    filename,
		FileContent: base64.StdEncoding.EncodeToString(data),
		FileSize:    int64(len(data)),
		OrgID:       r.FormValue(formOrgID),
	}
	job := jobs.NewParseStatementJob(msg)

	if err := h.publisher.PublishParseStatement(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue statement job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue statement")
		return
	}

	jobLog := logger.WithJob(log, msg.JobID, msg.FileHash, filename)
	jobLog.Info().Int64("file_size", msg.FileSize).Msg("Statement job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":    msg.JobID,
		"file_hash": msg.FileHash,
		"status":    string(job.Status),
	})
}

func (h *StatementsHandler) formFile(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile(formFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return nil, "", false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Multipart field 'file' is required")
		return nil, "", false
	}
	return file, filepath.Base(header.Filename), true
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, jobView(job))
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		FileHash: query.Get("file_hash"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	views := make([]*jobs.ParseStatementJob, 0, len(jobsList))
	for _, j := range jobsList {
		views = append(views, jobView(j))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"count": len(views),
	})
}

// jobView strips the file body, which can be megabytes of base64.
func jobView(job *jobs.ParseStatementJob) *jobs.ParseStatementJob {
	v := *job
	v.Message.FileContent = ""
	return &v
}

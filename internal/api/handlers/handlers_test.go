package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/statement-relay/internal/checksum"
	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/jobs/inmemory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPublisher captures published jobs without running them.
type recordingPublisher struct {
	jobs []*jobs.ParseStatementJob
	err  error
}

func (p *recordingPublisher) PublishParseStatement(ctx context.Context, job *jobs.ParseStatementJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func multipartRequest(t *testing.T, target, field, filename string, content []byte, extra map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range extra {
		require.NoError(t, w.WriteField(k, v))
	}
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func stubParse(record *domain.StatementRecord, err error) ParseFunc {
	return func(ctx context.Context, r io.Reader) (*domain.StatementRecord, error) {
		if _, rerr := io.ReadAll(r); rerr != nil {
			return nil, rerr
		}
		return record, err
	}
}

func TestUpload(t *testing.T) {
	record := domain.NewStatementRecord()
	record.OrgID = "ORG1"
	record.CurrentBalance = domain.MustAmount("12.5")

	tests := []struct {
		name       string
		field      string
		parseErr   error
		wantStatus int
		wantBody   string
	}{
		{name: "parsed", field: "file", wantStatus: http.StatusOK, wantBody: `"orgId":"ORG1"`},
		{name: "missing file", field: "", wantStatus: http.StatusBadRequest, wantBody: "file"},
		{name: "wrong field name", field: "document", wantStatus: http.StatusBadRequest},
		{name: "parse failure", field: "file", parseErr: errors.New("line 3: bad amount"), wantStatus: http.StatusInternalServerError, wantBody: "Failed to parse statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatementsHandler(stubParse(record, tt.parseErr), &recordingPublisher{}, zerolog.Nop())

			req := multipartRequest(t, "/api/statement/upload", tt.field, "extract.txt", []byte("1|x"), nil)
			rec := httptest.NewRecorder()
			h.Upload(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.parseErr != nil {
				assert.NotContains(t, rec.Body.String(), "bad amount")
			}
		})
	}
}

func TestUpload_AmountsAreFixedPrecision(t *testing.T) {
	record := domain.NewStatementRecord()
	record.CurrentBalance = domain.MustAmount("12.5")
	h := NewStatementsHandler(stubParse(record, nil), &recordingPublisher{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "/api/statement/upload", "file", "extract.txt", []byte("x"), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"currentBalance":12.500`)
}

func TestUpload_TooLarge(t *testing.T) {
	h := NewStatementsHandler(stubParse(domain.NewStatementRecord(), nil), &recordingPublisher{}, zerolog.Nop())
	h.maxUploadBytes = 16

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "/api/statement/upload", "file", "extract.txt", bytes.Repeat([]byte("x"), 1024), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEnqueue(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewStatementsHandler(stubParse(nil, nil), pub, zerolog.Nop())

	content := []byte("1|ORG1|x|1")
	req := multipartRequest(t, "/api/statements", "file", "../../etc/extract.txt", content, map[string]string{"org_id": "ORG1"})
	rec := httptest.NewRecorder()
	h.Enqueue(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])
	assert.Equal(t, checksum.BytesChecksum(content), resp["file_hash"])
	assert.Equal(t, string(jobs.JobStatusPending), resp["status"])

	require.Len(t, pub.jobs, 1)
	msg := pub.jobs[0].Message
	assert.Equal(t, resp["job_id"], msg.JobID)
	assert.Equal(t, "extract.txt", msg.Filename)
	assert.Equal(t, "ORG1", msg.OrgID)
	assert.Equal(t, int64(len(content)), msg.FileSize)
	assert.True(t, msg.HasInlineContent())
	assert.Empty(t, msg.RedisKey)

	decoded, err := base64.StdEncoding.DecodeString(msg.FileContent)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestEnqueue_Errors(t *testing.T) {
	h := NewStatementsHandler(stubParse(nil, nil), &recordingPublisher{err: errors.New("queue is closed")}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Enqueue(rec, multipartRequest(t, "/api/statements", "file", "a.txt", []byte("x"), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.Enqueue(rec, multipartRequest(t, "/api/statements", "", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobsHandler(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	first := jobs.NewParseStatementJob(jobs.FileMessage{JobID: "j1", FileHash: "h1", FileContent: "eA=="})
	second := jobs.NewParseStatementJob(jobs.FileMessage{JobID: "j2", FileHash: "h2"})
	require.NoError(t, store.SaveJob(ctx, first))
	require.NoError(t, store.SaveJob(ctx, second))

	h := NewJobsHandler(store, zerolog.Nop())

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil), "j1")

		require.Equal(t, http.StatusOK, rec.Code)
		var got jobs.ParseStatementJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "j1", got.GetID())
		assert.Empty(t, got.Message.FileContent)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil), "nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list by file hash", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?file_hash=h2", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Jobs  []jobs.ParseStatementJob `json:"jobs"`
			Count int                      `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "j2", resp.Jobs[0].GetID())
	})

	t.Run("list all", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=bogus", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
	})

	stored, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "eA==", stored.Message.FileContent)
}

// brokenStore fails every lookup with something other than a miss.
type brokenStore struct{ *inmemory.Store }

func (brokenStore) GetJob(ctx context.Context, jobID string) (*jobs.ParseStatementJob, error) {
	return nil, errors.New("backend timeout")
}

func TestJobsHandler_StoreErrorIsNotNotFound(t *testing.T) {
	h := NewJobsHandler(brokenStore{inmemory.NewStore()}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/j1", nil), "j1")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "backend timeout")
}

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, seed := range []struct {
		id, hash string
		status   jobs.JobStatus
	}{
		{"a", "h1", jobs.JobStatusCompleted},
		{"b", "h2", jobs.JobStatusFailed},
		{"c", "h1", jobs.JobStatusCompleted},
		{"d", "h3", jobs.JobStatusPending},
	} {
		job := &jobs.ParseStatementJob{
			Message:   jobs.FileMessage{JobID: seed.id, FileHash: seed.hash},
			Status:    seed.status,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.SaveJob(context.Background(), job))
	}
	return s
}

func ids(list []*jobs.ParseStatementJob) []string {
	out := make([]string, 0, len(list))
	for _, j := range list {
		out = append(out, j.GetID())
	}
	return out
}

func TestStore_SaveRequiresID(t *testing.T) {
	err := NewStore().SaveJob(context.Background(), &jobs.ParseStatementJob{})
	assert.Error(t, err)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := seedStore(t)

	job, err := s.GetJob(context.Background(), "a")
	require.NoError(t, err)
	job.Status = jobs.JobStatusFailed

	again, err := s.GetJob(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, again.Status)

	_, err = s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	s := seedStore(t)

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"d", "c", "b", "a"}},
		{name: "by hash", filter: jobs.JobFilter{FileHash: "h1"}, want: []string{"c", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusFailed}, want: []string{"b"}},
		{name: "limit", filter: jobs.JobFilter{Limit: 2}, want: []string{"d", "c"}},
		{name: "offset", filter: jobs.JobFilter{Offset: 3}, want: []string{"a"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	s := seedStore(t)

	require.NoError(t, s.UpdateJobStatus(context.Background(), "d", jobs.JobStatusFailed, "boom"))
	job, err := s.GetJob(context.Background(), "d")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)

	err = s.UpdateJobStatus(context.Background(), "missing", jobs.JobStatusFailed, "")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithMaxJobs(2))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		job := jobs.NewParseStatementJob(jobs.FileMessage{JobID: id})
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, job))
	}

	_, err := s.GetJob(ctx, "first")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	got, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, ids(got))

	// Updating a known job never evicts.
	job, err := s.GetJob(ctx, "second")
	require.NoError(t, err)
	job.Status = jobs.JobStatusCompleted
	require.NoError(t, s.SaveJob(ctx, job))

	got, err = s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

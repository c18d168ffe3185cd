package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.IngestJob {
	t.Helper()
	var got *jobs.IngestJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_CompletesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)
	require.NoError(t, q.Start(ctx, func(_ context.Context, job *jobs.IngestJob) error {
		job.Summary = nil
		return nil
	}))
	defer q.Close()

	job := &jobs.IngestJob{Type: jobs.JobTypeIngestFile, Source: "a.xlsx"}
	require.NoError(t, q.PublishIngest(ctx, job))

	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(func(int) time.Duration { return time.Millisecond }))

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, *jobs.IngestJob) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.IngestJob{}
	require.NoError(t, q.PublishIngest(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueue_PermanentFailureIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(func(int) time.Duration { return time.Millisecond }))

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, *jobs.IngestJob) error {
		calls.Add(1)
		return jobs.Permanent(errors.New("schema validation failed"))
	}))
	defer q.Close()

	job := &jobs.IngestJob{Type: jobs.JobTypeIngestFile, Source: "bad.xlsx"}
	require.NoError(t, q.PublishIngest(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "schema validation failed", done.Error)
	assert.Equal(t, 0, done.RetryCount)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := NewQueue(1, NewStore())
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.Error(t, q.PublishIngest(context.Background(), &jobs.IngestJob{}))
	assert.Error(t, q.Start(context.Background(), func(context.Context, *jobs.IngestJob) error { return nil }))
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	for i, j := range []jobs.IngestJob{
		{JobID: "a", Type: jobs.JobTypeIngestAll, Status: jobs.JobStatusCompleted},
		{JobID: "b", Type: jobs.JobTypeIngestFile, Status: jobs.JobStatusFailed},
		{JobID: "c", Type: jobs.JobTypeIngestFile, Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, &j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"by type", jobs.JobFilter{Type: jobs.JobTypeIngestFile}, []string{"c", "b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 2}, []string{"a"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_GetAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.IngestJob{}))

	_, err := s.GetJob(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, ""), domain.ErrNotFound))

	job := &jobs.IngestJob{JobID: "x", Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))
	job.Status = jobs.JobStatusRunning

	got, err := s.GetJob(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusPending, got.Status, "store keeps its own copy")

	require.NoError(t, s.UpdateJobStatus(ctx, "x", jobs.JobStatusFailed, "boom"))
	got, err = s.GetJob(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

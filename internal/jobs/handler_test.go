package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/ingest"
)

type fakeIngester struct {
	one    ingest.Result
	all    ingest.Summary
	allErr error

	gotPath  string
	gotDir   string
	gotForce bool
}

func (f *fakeIngester) IngestOne(_ context.Context, path string, force bool) ingest.Result {
	f.gotPath, f.gotForce = path, force
	return f.one
}

func (f *fakeIngester) IngestAll(_ context.Context, rawDir string, force bool) (ingest.Summary, error) {
	f.gotDir, f.gotForce = rawDir, force
	return f.all, f.allErr
}

func TestIngestHandler_File(t *testing.T) {
	tests := []struct {
		name      string
		result    ingest.Result
		wantErr   bool
		processed int
		skipped   int
		failed    int
	}{
		{
			name:      "written",
			result:    ingest.Result{File: "a.xlsx", Success: true, RowsWritten: 2},
			processed: 1,
		},
		{
			name:      "already processed",
			result:    ingest.Result{File: "a.xlsx", Success: true, Reason: ingest.ReasonAlreadyProcessed},
			processed: 1,
			skipped:   1,
		},
		{
			name:    "schema failure",
			result:  ingest.Result{File: "a.xlsx", Reason: ingest.ReasonSchema},
			wantErr: true,
			failed:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{one: tt.result}
			h := NewIngestHandler(ing, "raw", zerolog.Nop())
			job := &IngestJob{JobID: "j1", Type: JobTypeIngestFile, Source: "a.xlsx", Force: true}

			err := h(context.Background(), job)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsPermanent(err))
				assert.Contains(t, err.Error(), tt.result.Reason)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, filepath.Join("raw", "a.xlsx"), ing.gotPath)
			assert.True(t, ing.gotForce)
			require.NotNil(t, job.Summary)
			assert.Equal(t, tt.processed, job.Summary.Processed)
			assert.Equal(t, tt.skipped, job.Summary.Skipped)
			assert.Equal(t, tt.failed, job.Summary.Failed)
		})
	}
}

func TestIngestHandler_FileWithoutSource(t *testing.T) {
	h := NewIngestHandler(&fakeIngester{}, "raw", zerolog.Nop())
	err := h(context.Background(), &IngestJob{JobID: "j1", Type: JobTypeIngestFile})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestIngestHandler_FileSources(t *testing.T) {
	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{source: "a.xlsx", want: filepath.Join("data/raw", "a.xlsx")},
		{source: "2024/a.xlsx", want: filepath.Join("data/raw", "2024/a.xlsx")},
		{source: "gs://finance/raw/a.xlsx", want: "gs://finance/raw/a.xlsx"},
		{source: "/etc/ledger.xlsx", wantErr: true},
		{source: "../ledger.xlsx", wantErr: true},
		{source: "2024/../../ledger.xlsx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			ing := &fakeIngester{one: ingest.Result{File: "a.xlsx", Success: true}}
			h := NewIngestHandler(ing, "data/raw", zerolog.Nop())

			err := h(context.Background(), &IngestJob{JobID: "j1", Type: JobTypeIngestFile, Source: tt.source})

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsPermanent(err))
				assert.Empty(t, ing.gotPath, "ingester must not be called")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ing.gotPath)
		})
	}
}

func TestIngestHandler_All(t *testing.T) {
	ing := &fakeIngester{all: ingest.Summary{Processed: 2, Failed: 1}}
	h := NewIngestHandler(ing, "data/raw", zerolog.Nop())
	job := &IngestJob{JobID: "j1"}

	require.NoError(t, h(context.Background(), job))
	assert.Equal(t, "data/raw", ing.gotDir)
	require.NotNil(t, job.Summary)
	assert.Equal(t, 1, job.Summary.Failed)

	ing.allErr = errors.New("disk gone")
	err := h(context.Background(), &IngestJob{JobID: "j2", Type: JobTypeIngestAll})
	require.Error(t, err)
	assert.False(t, IsPermanent(err), "discovery failures are retried")
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, base))
	assert.False(t, IsPermanent(base))
}

func TestIngestJob_GetType(t *testing.T) {
	assert.Equal(t, JobTypeIngestAll, (&IngestJob{}).GetType())
	assert.Equal(t, JobTypeIngestFile, (&IngestJob{Type: JobTypeIngestFile}).GetType())
}

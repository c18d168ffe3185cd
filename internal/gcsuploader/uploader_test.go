package gcsuploader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

func TestExtractFilenameFromGCSURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"gs://bucket/raw/export_2024.xlsx", "export_2024.xlsx"},
		{"gs://bucket/export.xlsx", "export.xlsx"},
		{"gs://bucket", "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFilenameFromGCSURI(tt.uri))
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://finance/raw/2024/export.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "finance", bucket)
	assert.Equal(t, "raw/2024/export.xlsx", object)

	for _, bad := range []string{"s3://finance/x.xlsx", "gs://finance", "gs://finance/", "gs:///x.xlsx"} {
		_, _, err := ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

type fakeUploader struct {
	objects []string
	fail    map[string]bool
}

func (f *fakeUploader) UploadFile(_ context.Context, bucket, object, _ string) error {
	if f.fail[object] {
		return errors.New("permission denied")
	}
	f.objects = append(f.objects, bucket+"/"+object)
	return nil
}

var _ Uploader = (*fakeUploader)(nil)

func newWarehouse(t *testing.T) *warehouse.Store {
	t.Helper()
	store, err := warehouse.New(t.TempDir())
	require.NoError(t, err)

	tbl := table.New(table.Column{Name: "Omschrijving", Type: table.String})
	require.NoError(t, tbl.AppendRow("x"))
	_, err = store.WriteSnapshot(context.Background(), tbl, "financial_transactions_a.parquet",
		warehouse.Meta{CreatedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, store.AppendLog("a.xlsx", "financial_transactions_a.parquet", 1))
	return store
}

func TestMirror(t *testing.T) {
	store := newWarehouse(t)
	up := &fakeUploader{}

	res, err := Mirror(context.Background(), up, store, "finance", "warehouse", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"finance/warehouse/financial_transactions_a.parquet",
		"finance/warehouse/ingestion_log.txt",
	}, up.objects)
	assert.Len(t, res.Objects, 2)
	assert.Empty(t, res.Failed)
}

func TestMirror_ContinuesAfterFailure(t *testing.T) {
	store := newWarehouse(t)
	up := &fakeUploader{fail: map[string]bool{"financial_transactions_a.parquet": true}}

	res, err := Mirror(context.Background(), up, store, "finance", "", zerolog.Nop())
	require.Error(t, err)

	assert.Equal(t, []string{"financial_transactions_a.parquet"}, res.Failed)
	assert.Equal(t, []string{"ingestion_log.txt"}, res.Objects)
}

func TestMirror_RequiresBucket(t *testing.T) {
	_, err := Mirror(context.Background(), &fakeUploader{}, newWarehouse(t), "", "warehouse", zerolog.Nop())
	assert.Error(t, err)
}

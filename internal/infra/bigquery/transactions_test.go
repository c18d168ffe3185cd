package bigquery

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

var exportedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func consolidated(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New(schema.Full()...)
	tbl.AppendRecord(map[string]any{
		schema.LedgerAccountCode: "80",
		schema.BookingDate:       "2024-01-05",
		schema.BookingNumber:     int64(7),
		schema.Debit:             999.0,
		schema.Description:       "rent",
		schema.SourceFile:        "jan.xlsx",
		schema.LoadedAt:          time.Date(2024, 1, 6, 8, 0, 0, 0, time.UTC),
		schema.DataVersion:       int64(1704528000),
	})
	tbl.AppendRecord(map[string]any{
		schema.LedgerAccountCode: "81",
		schema.BookingDate:       "2024-01-07",
		schema.SourceFile:        "feb.xlsx",
	})
	tbl.AppendRecord(map[string]any{
		schema.LedgerAccountCode: "82",
		schema.SourceFile:        "feb.xlsx",
	})
	return tbl
}

func TestRowsFromTable(t *testing.T) {
	rows := RowsFromTable(consolidated(t), "exp-1", exportedAt)
	require.Len(t, rows, 2, "rows without a booking date are skipped")

	first := rows[0]
	assert.Equal(t, "exp-1", first.ExportID)
	assert.Equal(t, exportedAt, first.ExportedAt)
	assert.Equal(t, "80", first.LedgerAccountCode)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 5}, first.BookingDate)
	assert.Equal(t, bigquery.NullInt64{Int64: 7, Valid: true}, first.BookingNumber)
	assert.Equal(t, bigquery.NullFloat64{Float64: 999, Valid: true}, first.Debit)
	assert.Equal(t, bigquery.NullString{StringVal: "rent", Valid: true}, first.Description)
	assert.True(t, first.LoadedAt.Valid)
	assert.Equal(t, int64(1704528000), first.DataVersion.Int64)

	second := rows[1]
	assert.False(t, second.Debit.Valid)
	assert.False(t, second.BookingNumber.Valid)
	assert.False(t, second.Description.Valid)
	assert.False(t, second.LoadedAt.Valid)
	assert.False(t, second.DataVersion.Valid)
}

func TestCounts(t *testing.T) {
	rows := RowsFromTable(consolidated(t), "exp-1", exportedAt)
	expected := ExpectedCounts(rows)
	assert.Equal(t, map[string]int64{"jan.xlsx": 1, "feb.xlsx": 1}, expected)

	tests := []struct {
		name   string
		actual map[string]int64
		want   []CountMismatch
	}{
		{"all match", map[string]int64{"jan.xlsx": 1, "feb.xlsx": 1}, nil},
		{"missing rows", map[string]int64{"jan.xlsx": 1}, []CountMismatch{{SourceFile: "feb.xlsx", Expected: 1}}},
		{"unexpected source", map[string]int64{"jan.xlsx": 1, "feb.xlsx": 1, "x.xlsx": 3}, []CountMismatch{{SourceFile: "x.xlsx", Actual: 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareCounts(expected, tt.actual))
		})
	}
}

func TestFinancialTransactionRowSchema(t *testing.T) {
	sch, err := bigquery.InferSchema(FinancialTransactionRow{})
	require.NoError(t, err)

	types := map[string]bigquery.FieldType{}
	for _, f := range sch {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bigquery.DateFieldType, types["booking_date"])
	assert.Equal(t, bigquery.FloatFieldType, types["debit"])
	assert.Equal(t, bigquery.IntegerFieldType, types["booking_number"])
	assert.Equal(t, bigquery.TimestampFieldType, types["loaded_ts"])
	assert.Len(t, sch, 24)
}

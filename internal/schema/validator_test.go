package schema

import (
	"bytes"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

var fixedNow = time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

func rawExtract(t *testing.T, cols ...string) *table.Table {
	t.Helper()
	defs := make([]table.Column, len(cols))
	for i, c := range cols {
		defs[i] = table.Column{Name: c, Type: table.String}
	}
	return table.New(defs...)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    bool
		logged  string
	}{
		{
			name:    "core columns only",
			columns: []string{LedgerAccountCode, BookingDate, Debit, Credit},
			want:    true,
			logged:  "Optional columns missing",
		},
		{
			name:    "extra columns are accepted",
			columns: []string{LedgerAccountCode, BookingDate, Debit, Credit, "Kostenplaats"},
			want:    true,
			logged:  "Kostenplaats",
		},
		{
			name:    "missing credit",
			columns: []string{LedgerAccountCode, BookingDate, Debit},
			want:    false,
			logged:  Credit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			v := NewValidator(zerolog.New(buf))

			got := v.Validate(rawExtract(t, tt.columns...), nil)

			assert.Equal(t, tt.want, got)
			assert.Contains(t, buf.String(), tt.logged)
		})
	}
}

func TestMissingCore(t *testing.T) {
	tbl := rawExtract(t, LedgerAccountCode, Debit)
	assert.Equal(t, []string{BookingDate, Credit}, MissingCore(tbl))
}

func TestCleanAndTransform_DropsRowsWithoutDate(t *testing.T) {
	raw := rawExtract(t, LedgerAccountCode, BookingDate, Debit, Credit, "Extra")
	require.NoError(t, raw.AppendRow("80", "2024-01-05", "100", "", "a"))
	require.NoError(t, raw.AppendRow("80", "", "50", "", "b"))
	require.NoError(t, raw.AppendRow("81", "2024-01-06", "200", "", "c"))
	require.NoError(t, raw.AppendRow("82", "garbage", "1", "", "d"))

	v := NewValidator(zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))
	out := v.CleanAndTransform(raw, "grootboek.xlsx")

	require.Equal(t, 2, out.Len())
	assert.Equal(t, 4, raw.Len(), "input must not be modified")
	for i := 0; i < out.Len(); i++ {
		assert.False(t, out.Row(i).IsNull(BookingDate))
	}

	for _, c := range Full() {
		col, ok := out.Column(c.Name)
		require.True(t, ok, c.Name)
		assert.Equal(t, c.Type, col.Type, c.Name)
	}
	assert.True(t, out.Has("Extra"))

	assert.Equal(t, civil.Date{Year: 2024, Month: time.January, Day: 5}, out.Value(0, BookingDate))
	assert.Equal(t, 100.0, out.Value(0, Debit))
	assert.Nil(t, out.Value(0, Credit))
	assert.Nil(t, out.Value(0, Balance))
	assert.Equal(t, fixedNow, out.Value(0, LoadedAt))
	assert.Equal(t, "grootboek.xlsx", out.Value(1, SourceFile))
	assert.Equal(t, fixedNow.Unix(), out.Value(1, DataVersion))
}

func TestCleanAndTransform_NonStrictNumbers(t *testing.T) {
	raw := rawExtract(t, LedgerAccountCode, BookingDate, Debit, Credit, BookingNumber)
	require.NoError(t, raw.AppendRow("80", "05-01-2024", "1.234,50", "n/a", "17"))

	out := NewValidator(zerolog.Nop()).CleanAndTransform(raw, "x.xlsx")

	require.Equal(t, 1, out.Len())
	assert.Equal(t, 1234.5, out.Value(0, Debit))
	assert.Nil(t, out.Value(0, Credit))
	assert.Equal(t, int64(17), out.Value(0, BookingNumber))
}

func TestRecordFromRow(t *testing.T) {
	raw := rawExtract(t, LedgerAccountCode, BookingDate, Debit, Credit, BookingNumber)
	require.NoError(t, raw.AppendRow("80", "2024-01-05", "100", "", "3"))
	out := NewValidator(zerolog.Nop(), WithClock(func() time.Time { return fixedNow })).CleanAndTransform(raw, "a.xlsx")

	rec := RecordFromRow(out.Row(0))

	assert.Equal(t, "80", rec.LedgerAccountCode)
	require.NotNil(t, rec.Debit)
	assert.Equal(t, 100.0, *rec.Debit)
	assert.Nil(t, rec.Credit)
	require.NotNil(t, rec.BookingNumber)
	assert.Equal(t, int64(3), *rec.BookingNumber)
	assert.Equal(t, fixedNow, rec.LoadedAt)
	assert.Equal(t, "a.xlsx", rec.SourceFile)
	assert.Len(t, Records(out), 1)
}

func TestApplyFilter(t *testing.T) {
	tbl := table.New(
		table.Column{Name: LedgerAccountCode, Type: table.String},
		table.Column{Name: BookingDate, Type: table.Date},
	)
	require.NoError(t, tbl.AppendRow("80", "2024-01-05"))
	require.NoError(t, tbl.AppendRow("81", "2024-05-06"))
	require.NoError(t, tbl.AppendRow("80", "2023-11-30"))

	tests := []struct {
		name   string
		filter domain.FilterState
		want   int
	}{
		{"empty", domain.FilterState{}, 3},
		{"year", domain.FilterState{Years: []int{2024}}, 2},
		{"quarter", domain.FilterState{Quarters: []int{2}}, 1},
		{"account and year", domain.FilterState{Accounts: []string{"80"}, Years: []int{2024}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyFilter(tbl, tt.filter).Len())
		})
	}
}

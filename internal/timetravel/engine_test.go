package timetravel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

var (
	t1 = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
)

type txn struct {
	account string
	date    string
	number  int64
	debit   float64
	loaded  time.Time
}

func ledger(t *testing.T, rows ...txn) *table.Table {
	t.Helper()
	tbl := table.New(
		table.Column{Name: schema.LedgerAccountCode, Type: table.String},
		table.Column{Name: schema.BookingDate, Type: table.Date},
		table.Column{Name: schema.BookingNumber, Type: table.Int64},
		table.Column{Name: schema.Debit, Type: table.Float64},
		table.Column{Name: schema.LoadedAt, Type: table.Timestamp},
	)
	for _, r := range rows {
		require.NoError(t, tbl.AppendRow(r.account, r.date, r.number, r.debit, r.loaded))
	}
	return tbl
}

func newStore(t *testing.T) *warehouse.Store {
	t.Helper()
	s, err := warehouse.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func write(t *testing.T, s *warehouse.Store, name string, at time.Time, tbl *table.Table) string {
	t.Helper()
	_, err := s.WriteSnapshot(context.Background(), tbl, name, warehouse.Meta{CreatedAt: at, SourceFile: name + ".xlsx"})
	require.NoError(t, err)
	return name
}

func threeVersions(t *testing.T) (*warehouse.Store, []string) {
	t.Helper()
	s := newStore(t)
	names := []string{
		write(t, s, "financial_transactions_v1.parquet", t1, ledger(t, txn{"80", "2024-01-05", 1, 100, t1})),
		write(t, s, "financial_transactions_v2.parquet", t2, ledger(t,
			txn{"80", "2024-01-05", 1, 100, t2}, txn{"81", "2024-01-06", 2, 0.5, t2})),
		write(t, s, "financial_transactions_v3.parquet", t3, ledger(t,
			txn{"80", "2024-01-05", 1, 100, t3}, txn{"81", "2024-01-06", 2, 0.5, t3}, txn{"82", "2024-01-07", 3, 10, t3})),
	}
	return s, names
}

func TestQueryAtTimestamp_Monotonic(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)
	e := New(s)

	tests := []struct {
		name string
		at   time.Time
		want string
		rows int
	}{
		{"exactly t1", t1, names[0], 1},
		{"between t1 and t2", t1.Add(23 * time.Hour), names[0], 1},
		{"exactly t2", t2, names[1], 2},
		{"just before t3", t3.Add(-time.Microsecond), names[1], 2},
		{"after t3", t3.Add(48 * time.Hour), names[2], 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, tbl, err := e.QueryAtTimestamp(ctx, tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.FileName)
			assert.Equal(t, tt.rows, tbl.Len())
		})
	}

	_, _, err := e.QueryAtTimestamp(ctx, t1.Add(-time.Second))
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestQueryAtDate_EndOfDay(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)
	e := New(s, WithLocation(time.UTC))

	snap, _, err := e.QueryAtDate(ctx, civil.Date{Year: 2024, Month: time.January, Day: 6})
	require.NoError(t, err)
	assert.Equal(t, names[1], snap.FileName)

	_, _, err = e.QueryAtDate(ctx, civil.Date{Year: 2024, Month: time.January, Day: 4})
	assert.True(t, errors.Is(err, domain.ErrNoData))
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(civil.Date{Year: 2024, Month: time.March, Day: 31}, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 999999000, time.UTC), got)
}

func TestLatestData(t *testing.T) {
	ctx := context.Background()

	_, _, err := New(newStore(t)).LatestData(ctx)
	assert.True(t, errors.Is(err, domain.ErrNoData))

	s, names := threeVersions(t)
	snap, tbl, err := New(s).LatestData(ctx)
	require.NoError(t, err)
	assert.Equal(t, names[2], snap.FileName)
	assert.Equal(t, 3, tbl.Len())
}

func TestCreateConsolidatedView_LatestLoadWins(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	v1 := write(t, s, "financial_transactions_v1.parquet", t1, ledger(t,
		txn{"80", "2024-01-05", 1, 100, t1},
		txn{"81", "2024-01-03", 2, 5, t1},
	))
	v2 := write(t, s, "financial_transactions_v2.parquet", t2, ledger(t,
		txn{"80", "2024-01-05", 1, 999, t2},
	))

	for _, order := range [][]string{{v1, v2}, {v2, v1}} {
		out, err := New(s).CreateConsolidatedView(ctx, order)
		require.NoError(t, err)

		require.Equal(t, 2, out.Len())
		assert.Equal(t, "81", out.Value(0, schema.LedgerAccountCode))
		assert.Equal(t, "80", out.Value(1, schema.LedgerAccountCode))
		assert.Equal(t, 999.0, out.Value(1, schema.Debit))
	}
}

func TestCreateConsolidatedView_NoKeyColumnsKeepsAll(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	noKey := func() *table.Table {
		tbl := table.New(table.Column{Name: "Omschrijving", Type: table.String})
		require.NoError(t, tbl.AppendRow("same"))
		return tbl
	}
	a := write(t, s, "financial_transactions_a.parquet", t1, noKey())
	b := write(t, s, "financial_transactions_b.parquet", t2, noKey())

	out, err := New(s).CreateConsolidatedView(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestCreateConsolidatedView_SkipsBadVersions(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "financial_transactions_bad.parquet"), []byte("junk"), 0o644))

	out, err := New(s).CreateConsolidatedView(ctx, []string{
		names[0], "financial_transactions_bad.parquet", "financial_transactions_missing.parquet",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	empty, err := New(s).CreateConsolidatedView(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestGetChangesSince(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)
	e := New(s)

	changes, err := e.GetChangesSince(ctx, names[0])
	require.NoError(t, err)

	require.Len(t, changes.NewerVersions, 2)
	assert.Equal(t, names[2], changes.NewerVersions[0].Snapshot.FileName)
	assert.Equal(t, names[1], changes.NewerVersions[1].Snapshot.FileName)
	assert.Equal(t, 3, changes.NewerVersions[0].Rows)
	assert.Equal(t, "110.5", changes.NewerVersions[0].TotalDebit.String())
	require.NotNil(t, changes.NewerVersions[0].DateRange)
	assert.Equal(t, "2024-01-07", changes.NewerVersions[0].DateRange.Max.String())

	latest, err := e.GetChangesSince(ctx, names[2])
	require.NoError(t, err)
	assert.Empty(t, latest.NewerVersions)

	_, err = e.GetChangesSince(ctx, "financial_transactions_unknown.parquet")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCompareVersions(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)

	wide := ledger(t, txn{"80", "2024-02-01", 9, 1, t3})
	wide.SetConstant(table.Column{Name: "Btwcode", Type: table.String}, "H")
	extra := write(t, s, "financial_transactions_wide.parquet", t3.Add(time.Hour), wide)

	cmp, err := New(s).CompareVersions(ctx, names[0], extra)
	require.NoError(t, err)

	assert.Equal(t, 0, cmp.RowChange)
	assert.Equal(t, []string{"Btwcode"}, cmp.NewColumns)
	assert.Empty(t, cmp.RemovedColumns)
	assert.Len(t, cmp.CommonColumns, 5)
	require.NotNil(t, cmp.DateRangeA)
	require.NotNil(t, cmp.DateRangeB)
	assert.Equal(t, "2024-01-05", cmp.DateRangeA.Min.String())
	assert.Equal(t, "2024-02-01", cmp.DateRangeB.Max.String())

	cmp, err = New(s).CompareVersions(ctx, names[0], names[2])
	require.NoError(t, err)
	assert.Equal(t, 2, cmp.RowChange)

	_, err = New(s).CompareVersions(ctx, names[0], "financial_transactions_missing.parquet")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	s, names := threeVersions(t)

	// A hand-placed file without an account column is never filtered by account.
	noAccount := table.New(table.Column{Name: schema.BookingDate, Type: table.Date})
	require.NoError(t, noAccount.AppendRow("2024-01-05"))
	write(t, s, "financial_transactions_manual.parquet", t1.Add(-time.Hour), noAccount)

	out, err := New(s).AuditTrail(ctx, AuditFilter{Account: "81"})
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, "financial_transactions_manual.parquet", out.Value(0, schema.VersionFile))
	assert.Equal(t, names[1], out.Value(1, schema.VersionFile))
	assert.Equal(t, names[2], out.Value(2, schema.VersionFile))
	assert.Equal(t, t2, out.Value(1, schema.VersionCreated))
	assert.Equal(t, "81", out.Value(2, schema.LedgerAccountCode))
}

func TestAuditTrail_DateBounds(t *testing.T) {
	ctx := context.Background()
	s, _ := threeVersions(t)
	from := civil.Date{Year: 2024, Month: time.January, Day: 6}
	to := civil.Date{Year: 2024, Month: time.January, Day: 6}

	out, err := New(s).AuditTrail(ctx, AuditFilter{From: &from, To: &to})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	for i := 0; i < out.Len(); i++ {
		d, ok := out.Row(i).Date(schema.BookingDate)
		require.True(t, ok)
		assert.Equal(t, from, d)
	}
}

func TestAuditTrail_NoMatches(t *testing.T) {
	s, _ := threeVersions(t)

	out, err := New(s).AuditTrail(context.Background(), AuditFilter{Account: "999"})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Len())
	assert.True(t, out.Has(schema.VersionFile))
}

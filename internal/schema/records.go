package schema

import (
	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

// RecordFromRow maps one table row onto a FinancialRecord. Absent or null
// cells leave the field at its zero value.
func RecordFromRow(r table.Row) domain.FinancialRecord {
	str := func(name string) string {
		s, _ := r.String(name)
		return s
	}
	intPtr := func(name string) *int64 {
		if n, ok := r.Int(name); ok {
			return &n
		}
		return nil
	}
	floatPtr := func(name string) *float64 {
		if f, ok := r.Float(name); ok {
			return &f
		}
		return nil
	}

	rec := domain.FinancialRecord{
		AdministrationCode: str(AdministrationCode),
		AdministrationName: str(AdministrationName),
		LedgerAccountCode:  str(LedgerAccountCode),
		LedgerAccountName:  str(LedgerAccountName),
		Code:               str(Code),
		BookingNumber:      intPtr(BookingNumber),
		Period:             str(Period),
		Code1:              str(Code1),
		Code2:              str(Code2),
		Description:        str(Description),
		Debit:              floatPtr(Debit),
		Credit:             floatPtr(Credit),
		Balance:            floatPtr(Balance),
		VATAmount:          floatPtr(VATAmount),
		VATCode:            str(VATCode),
		BookingStatus:      str(BookingStatus),
		Number:             intPtr(Number),
		InvoiceNumber:      str(InvoiceNumber),
		SourceFile:         str(SourceFile),
	}
	if d, ok := r.Date(BookingDate); ok {
		rec.BookingDate = d
	}
	if ts, ok := r.Time(LoadedAt); ok {
		rec.LoadedAt = ts
	}
	if v, ok := r.Int(DataVersion); ok {
		rec.DataVersion = v
	}
	return rec
}

// Records converts every row of t.
func Records(t *table.Table) []domain.FinancialRecord {
	out := make([]domain.FinancialRecord, t.Len())
	for i := range out {
		out[i] = RecordFromRow(t.Row(i))
	}
	return out
}

// ApplyFilter keeps the rows matching f. Date selections drop rows without
// a booking date; an empty filter returns t unchanged.
func ApplyFilter(t *table.Table, f domain.FilterState) *table.Table {
	if f.IsEmpty() {
		return t
	}
	return t.Filter(func(r table.Row) bool {
		d, hasDate := r.Date(BookingDate)
		if !hasDate && (len(f.Years) > 0 || len(f.Months) > 0 || len(f.Quarters) > 0) {
			return false
		}
		if hasDate && !f.MatchesDate(d) {
			return false
		}
		account, _ := r.String(LedgerAccountCode)
		return f.MatchesAccount(account)
	})
}

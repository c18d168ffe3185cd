package timetravel

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

// DateRange is the earliest and latest booking date in a table.
type DateRange struct {
	Min civil.Date `json:"min"`
	Max civil.Date `json:"max"`
}

// VersionSummary describes one snapshot's contents.
type VersionSummary struct {
	Snapshot    domain.Snapshot `json:"snapshot"`
	Rows        int             `json:"rows"`
	DateRange   *DateRange      `json:"date_range,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// Summarize computes row count, booking date range and debit/credit
// totals, rounded to cents.
func Summarize(s domain.Snapshot, t *table.Table) VersionSummary {
	sum := VersionSummary{
		Snapshot:    s,
		Rows:        t.Len(),
		DateRange:   dateRangeOf(t),
		TotalDebit:  columnTotal(t, schema.Debit),
		TotalCredit: columnTotal(t, schema.Credit),
	}
	return sum
}

func dateRangeOf(t *table.Table) *DateRange {
	lo, hi, ok := t.DateRange(schema.BookingDate)
	if !ok {
		return nil
	}
	return &DateRange{Min: lo, Max: hi}
}

func columnTotal(t *table.Table, name string) decimal.Decimal {
	total := decimal.Zero
	if !t.Has(name) {
		return total
	}
	for i := 0; i < t.Len(); i++ {
		if f, ok := t.Row(i).Float(name); ok {
			total = total.Add(decimal.NewFromFloat(f))
		}
	}
	return total.Round(2)
}

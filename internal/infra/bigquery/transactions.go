package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/finance-warehouse/internal/domain"
)

// FinancialTransactionRow is one consolidated ledger line in the mart table.
type FinancialTransactionRow struct {
	ExportID   string    `bigquery:"export_id"`   // REQUIRED
	ExportedAt time.Time `bigquery:"exported_ts"` // REQUIRED

	AdministrationCode bigquery.NullString `bigquery:"administration_code"`
	AdministrationName bigquery.NullString `bigquery:"administration_name"`

	LedgerAccountCode string              `bigquery:"ledger_account_code"` // REQUIRED
	LedgerAccountName bigquery.NullString `bigquery:"ledger_account_name"`

	Code          bigquery.NullString `bigquery:"code"`
	BookingNumber bigquery.NullInt64  `bigquery:"booking_number"`
	BookingDate   civil.Date          `bigquery:"booking_date"` // REQUIRED
	Period        bigquery.NullString `bigquery:"period"`
	Code1         bigquery.NullString `bigquery:"code1"`
	Code2         bigquery.NullString `bigquery:"code2"`
	Description   bigquery.NullString `bigquery:"description"`

	Debit     bigquery.NullFloat64 `bigquery:"debit"`
	Credit    bigquery.NullFloat64 `bigquery:"credit"`
	Balance   bigquery.NullFloat64 `bigquery:"balance"`
	VATAmount bigquery.NullFloat64 `bigquery:"vat_amount"`

	VATCode       bigquery.NullString `bigquery:"vat_code"`
	BookingStatus bigquery.NullString `bigquery:"booking_status"`
	Number        bigquery.NullInt64  `bigquery:"number"`
	InvoiceNumber bigquery.NullString `bigquery:"invoice_number"`

	LoadedAt    bigquery.NullTimestamp `bigquery:"loaded_ts"`
	SourceFile  string                 `bigquery:"source_file"` // REQUIRED
	DataVersion bigquery.NullInt64     `bigquery:"data_version"`
}

// RowFromRecord maps a ledger record onto the mart schema.
func RowFromRecord(r domain.FinancialRecord, exportID string, exportedAt time.Time) *FinancialTransactionRow {
	row := &FinancialTransactionRow{
		ExportID:           exportID,
		ExportedAt:         exportedAt.UTC(),
		AdministrationCode: nullString(r.AdministrationCode),
		AdministrationName: nullString(r.AdministrationName),
		LedgerAccountCode:  r.LedgerAccountCode,
		LedgerAccountName:  nullString(r.LedgerAccountName),
		Code:               nullString(r.Code),
		BookingNumber:      nullInt(r.BookingNumber),
		BookingDate:        r.BookingDate,
		Period:             nullString(r.Period),
		Code1:              nullString(r.Code1),
		Code2:              nullString(r.Code2),
		Description:        nullString(r.Description),
		Debit:              nullFloat(r.Debit),
		Credit:             nullFloat(r.Credit),
		Balance:            nullFloat(r.Balance),
		VATAmount:          nullFloat(r.VATAmount),
		VATCode:            nullString(r.VATCode),
		BookingStatus:      nullString(r.BookingStatus),
		Number:             nullInt(r.Number),
		InvoiceNumber:      nullString(r.InvoiceNumber),
		SourceFile:         r.SourceFile,
	}
	if !r.LoadedAt.IsZero() {
		row.LoadedAt = bigquery.NullTimestamp{Timestamp: r.LoadedAt.UTC(), Valid: true}
	}
	if r.DataVersion != 0 {
		row.DataVersion = bigquery.NullInt64{Int64: r.DataVersion, Valid: true}
	}
	return row
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullInt(p *int64) bigquery.NullInt64 {
	if p == nil {
		return bigquery.NullInt64{}
	}
	return bigquery.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) bigquery.NullFloat64 {
	if p == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *p, Valid: true}
}

package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// FinancialRecord is one accounting transaction line inside a snapshot.
// Nullable source fields are pointers; BookingDate is always set because
// rows without a booking date never survive cleaning.
type FinancialRecord struct {
	AdministrationCode string     `json:"CodeAdministratie,omitempty"`
	AdministrationName string     `json:"NaamAdministratie,omitempty"`
	LedgerAccountCode  string     `json:"CodeGrootboekrekening"`
	LedgerAccountName  string     `json:"NaamGrootboekrekening,omitempty"`
	Code               string     `json:"Code,omitempty"`
	BookingNumber      *int64     `json:"Boekingsnummer,omitempty"`
	BookingDate        civil.Date `json:"Boekdatum"`
	Period             string     `json:"Periode,omitempty"`
	Code1              string     `json:"Code1,omitempty"`
	Code2              string     `json:"Code2,omitempty"`
	Description        string     `json:"Omschrijving,omitempty"`
	Debit              *float64   `json:"Debet,omitempty"`
	Credit             *float64   `json:"Credit,omitempty"`
	Balance            *float64   `json:"Saldo,omitempty"`
	VATAmount          *float64   `json:"Btwbedrag,omitempty"`
	VATCode            string     `json:"Btwcode,omitempty"`
	BookingStatus      string     `json:"Boekingsstatus,omitempty"`
	Number             *int64     `json:"Nummer,omitempty"`
	InvoiceNumber      string     `json:"Factuurnummer,omitempty"`

	LoadedAt    time.Time `json:"_loaded_at"`
	SourceFile  string    `json:"_source_file"`
	DataVersion int64     `json:"_data_version"`
}

// BusinessKey identifies the same real-world transaction across snapshots.
type BusinessKey struct {
	LedgerAccountCode string
	BookingDate       civil.Date
	BookingNumber     int64
	HasBookingNumber  bool
}

// Key returns the record's business identity.
func (r FinancialRecord) Key() BusinessKey {
	k := BusinessKey{LedgerAccountCode: r.LedgerAccountCode, BookingDate: r.BookingDate}
	if r.BookingNumber != nil {
		k.BookingNumber = *r.BookingNumber
		k.HasBookingNumber = true
	}
	return k
}

// Package schema holds the canonical column contract for financial
// transaction extracts and the validator that coerces raw extracts into it.
package schema

import "github.com/dvloznov/finance-warehouse/internal/table"

// Canonical column names as they appear in the accounting package export.
const (
	AdministrationCode = "CodeAdministratie"
	AdministrationName = "NaamAdministratie"
	LedgerAccountCode  = "CodeGrootboekrekening"
	LedgerAccountName  = "NaamGrootboekrekening"
	Code               = "Code"
	BookingNumber      = "Boekingsnummer"
	BookingDate        = "Boekdatum"
	Period             = "Periode"
	Code1              = "Code1"
	Code2              = "Code2"
	Description        = "Omschrijving"
	Debit              = "Debet"
	Credit             = "Credit"
	Balance            = "Saldo"
	VATAmount          = "Btwbedrag"
	VATCode            = "Btwcode"
	BookingStatus      = "Boekingsstatus"
	Number             = "Nummer"
	InvoiceNumber      = "Factuurnummer"
)

// Ingestion metadata columns appended to every cleaned extract.
const (
	LoadedAt    = "_loaded_at"
	SourceFile  = "_source_file"
	DataVersion = "_data_version"
)

// Columns added by the audit trail to say where a row came from.
const (
	VersionFile    = "_version_file"
	VersionCreated = "_version_created"
)

// Canonical is the 19-column record contract with target types.
var Canonical = []table.Column{
	{Name: AdministrationCode, Type: table.String},
	{Name: AdministrationName, Type: table.String},
	{Name: LedgerAccountCode, Type: table.String},
	{Name: LedgerAccountName, Type: table.String},
	{Name: Code, Type: table.String},
	{Name: BookingNumber, Type: table.Int64},
	{Name: BookingDate, Type: table.Date},
	{Name: Period, Type: table.String},
	{Name: Code1, Type: table.String},
	{Name: Code2, Type: table.String},
	{Name: Description, Type: table.String},
	{Name: Debit, Type: table.Float64},
	{Name: Credit, Type: table.Float64},
	{Name: Balance, Type: table.Float64},
	{Name: VATAmount, Type: table.Float64},
	{Name: VATCode, Type: table.String},
	{Name: BookingStatus, Type: table.String},
	{Name: Number, Type: table.Int64},
	{Name: InvoiceNumber, Type: table.String},
}

// Metadata lists the ingestion metadata columns.
var Metadata = []table.Column{
	{Name: LoadedAt, Type: table.Timestamp},
	{Name: SourceFile, Type: table.String},
	{Name: DataVersion, Type: table.Int64},
}

// CoreColumns must be present for an extract to be ingested at all.
var CoreColumns = []string{LedgerAccountCode, BookingDate, Debit, Credit}

// BusinessKey identifies the same transaction across snapshots.
var BusinessKey = []string{LedgerAccountCode, BookingDate, BookingNumber}

// CanonicalNames returns the names of the canonical columns in order.
func CanonicalNames() []string {
	names := make([]string, len(Canonical))
	for i, c := range Canonical {
		names[i] = c.Name
	}
	return names
}

// Full returns the canonical columns followed by the metadata columns.
func Full() []table.Column {
	out := make([]table.Column, 0, len(Canonical)+len(Metadata))
	out = append(out, Canonical...)
	return append(out, Metadata...)
}

package ingest

import (
	"context"
	"database/sql"
	"fmt"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

// MigrationSource is the fixed _source_file of migrated rows.
const MigrationSource = "migration_from_existing_db"

const migrationQuery = `
SELECT
    CAST(CodeAdministratie AS VARCHAR)     AS CodeAdministratie,
    CAST(NaamAdministratie AS VARCHAR)     AS NaamAdministratie,
    CAST(CodeGrootboekrekening AS VARCHAR) AS CodeGrootboekrekening,
    CAST(NaamGrootboekrekening AS VARCHAR) AS NaamGrootboekrekening,
    CAST(Code AS VARCHAR)                  AS Code,
    TRY_CAST(Boekingsnummer AS BIGINT)     AS Boekingsnummer,
    TRY_CAST(Boekdatum AS DATE)            AS Boekdatum,
    CAST(Periode AS VARCHAR)               AS Periode,
    CAST(Code1 AS VARCHAR)                 AS Code1,
    CAST(Code2 AS VARCHAR)                 AS Code2,
    CAST(Omschrijving AS VARCHAR)          AS Omschrijving,
    TRY_CAST(Debet AS DOUBLE)              AS Debet,
    TRY_CAST(Credit AS DOUBLE)             AS Credit,
    TRY_CAST(Saldo AS DOUBLE)              AS Saldo,
    TRY_CAST(Btwbedrag AS DOUBLE)          AS Btwbedrag,
    CAST(Btwcode AS VARCHAR)               AS Btwcode,
    CAST(Boekingsstatus AS VARCHAR)        AS Boekingsstatus,
    TRY_CAST(Nummer AS BIGINT)             AS Nummer,
    CAST(Factuurnummer AS VARCHAR)         AS Factuurnummer
FROM financial_transactions
ORDER BY Boekdatum, Boekingsnummer`

// OpenLegacy opens the legacy DuckDB database at path.
func OpenLegacy(path string) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("OpenLegacy: create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// MigrateExistingData copies the legacy financial_transactions table into
// a single snapshot named warehouse.ConsolidatedFile. It neither reads nor
// writes the ingestion log, so running it twice replaces the file.
func (i *Ingester) MigrateExistingData(ctx context.Context, db *sql.DB) (domain.Snapshot, error) {
	rows, err := db.QueryContext(ctx, migrationQuery)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("MigrateExistingData: query: %w", err)
	}
	defer rows.Close()

	t := table.New(schema.Canonical...)
	values := make([]any, len(schema.Canonical))
	ptrs := make([]any, len(values))
	for k := range values {
		ptrs[k] = &values[k]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Snapshot{}, fmt.Errorf("MigrateExistingData: scan: %w", err)
		}
		if err := t.AppendRow(values...); err != nil {
			return domain.Snapshot{}, fmt.Errorf("MigrateExistingData: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("MigrateExistingData: rows: %w", err)
	}

	now := i.store.Now()
	t.SetConstant(table.Column{Name: schema.LoadedAt, Type: table.Timestamp}, now)
	t.SetConstant(table.Column{Name: schema.SourceFile, Type: table.String}, MigrationSource)
	t.SetConstant(table.Column{Name: schema.DataVersion, Type: table.Int64}, int64(1))

	snap, err := i.store.WriteSnapshot(ctx, t, warehouse.ConsolidatedFile, warehouse.Meta{
		CreatedAt:   now,
		SourceFile:  MigrationSource,
		DataVersion: 1,
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("MigrateExistingData: %w", err)
	}

	i.log.Info().
		Int("rows", t.Len()).
		Str("snapshot", snap.FileName).
		Msg("Migrated legacy data")
	return snap, nil
}

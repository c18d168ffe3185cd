package ingest

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

func TestMigrateExistingData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	db, err := OpenLegacy("")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `CREATE TABLE financial_transactions (
		CodeAdministratie VARCHAR, NaamAdministratie VARCHAR,
		CodeGrootboekrekening VARCHAR, NaamGrootboekrekening VARCHAR,
		Code VARCHAR, Boekingsnummer VARCHAR, Boekdatum VARCHAR, Periode VARCHAR,
		Code1 VARCHAR, Code2 VARCHAR, Omschrijving VARCHAR,
		Debet VARCHAR, Credit VARCHAR, Saldo VARCHAR, Btwbedrag VARCHAR,
		Btwcode VARCHAR, Boekingsstatus VARCHAR, Nummer VARCHAR, Factuurnummer VARCHAR)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO financial_transactions
		(CodeGrootboekrekening, Boekingsnummer, Boekdatum, Debet, Credit, Omschrijving) VALUES
		('81', '7', '2024-01-06', '200.50', NULL, 'later'),
		('80', '3', '2024-01-05', '100', '0', 'earlier')`)
	require.NoError(t, err)

	snap, err := f.ing.MigrateExistingData(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, warehouse.ConsolidatedFile, snap.FileName)
	assert.Equal(t, int64(2), snap.RowCount)
	assert.Equal(t, MigrationSource, snap.SourceFileName)
	assert.Equal(t, int64(1), snap.DataVersion)

	tbl, err := f.store.ReadSnapshot(ctx, snap.FileName)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "earlier", tbl.Value(0, schema.Description))
	assert.Equal(t, int64(3), tbl.Value(0, schema.BookingNumber))
	assert.Equal(t, 200.5, tbl.Value(1, schema.Debit))
	assert.Nil(t, tbl.Value(1, schema.Credit))
	assert.Equal(t, MigrationSource, tbl.Value(1, schema.SourceFile))
	assert.Equal(t, int64(1), tbl.Value(1, schema.DataVersion))

	_, err = os.Stat(f.store.LogPath())
	assert.True(t, os.IsNotExist(err), "migration must not touch the ingestion log")
}

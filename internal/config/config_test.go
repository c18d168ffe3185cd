package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"WAREHOUSE_DIR", "RAW_DIR", "GCS_BUCKET", "BQ_PROJECT_ID", "LOG_LEVEL", "API_PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("WAREHOUSE_DIR", filepath.Join(dir, "wh"))

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{".xlsx", ".xls"}, cfg.Ingestion.Extensions)
	assert.Equal(t, "ingestion_log.txt", cfg.Ingestion.LogFile)
	assert.Equal(t, 1, cfg.API.Workers)
	assert.DirExists(t, filepath.Join(dir, "wh"))
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "warehouse.yaml")
	yml := `
catalog:
  warehouse: ` + filepath.Join(dir, "from-file") + `
ingestion:
  raw_dir: extracts
  extensions: ["XLSX"]
bigquery:
  dataset: mart
api:
  workers: 2
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("API_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "from-file"), cfg.Catalog.Warehouse)
	assert.Equal(t, "extracts", cfg.Ingestion.RawDir)
	assert.Equal(t, []string{".xlsx"}, cfg.Ingestion.Extensions)
	assert.Equal(t, "ingestion_log.txt", cfg.Ingestion.LogFile)
	assert.Equal(t, "mart", cfg.BigQuery.Dataset)
	assert.Equal(t, "financial_transactions", cfg.BigQuery.Table)
	assert.Equal(t, "9090", cfg.API.Port)
	assert.Equal(t, 2, cfg.API.Workers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty warehouse", func(c *Config) { c.Catalog.Warehouse = " " }, true},
		{"log file with directory", func(c *Config) { c.Ingestion.LogFile = filepath.Join("a", "b.txt") }, true},
		{"no extensions", func(c *Config) { c.Ingestion.Extensions = nil }, true},
		{"zero workers", func(c *Config) { c.API.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

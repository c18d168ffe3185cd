// Package config loads the warehouse configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "warehouse.yaml"

type Config struct {
	Catalog   CatalogConfig   `yaml:"catalog"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Legacy    LegacyConfig    `yaml:"legacy"`
	GCS       GCSConfig       `yaml:"gcs"`
	BigQuery  BigQueryConfig  `yaml:"bigquery"`
	API       APIConfig       `yaml:"api"`
	LogLevel  string          `yaml:"log_level"`
}

type CatalogConfig struct {
	Warehouse string `yaml:"warehouse"`
}

type IngestionConfig struct {
	RawDir     string   `yaml:"raw_dir"`
	Extensions []string `yaml:"extensions"`
	LogFile    string   `yaml:"log_file"`
}

type LegacyConfig struct {
	DuckDBPath string `yaml:"duckdb_path"`
}

type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
	Table     string `yaml:"table"`
}

type APIConfig struct {
	Port    string `yaml:"port"`
	Workers int    `yaml:"workers"`
}

func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{Warehouse: filepath.Join("data", "iceberg", "warehouse")},
		Ingestion: IngestionConfig{
			RawDir:     filepath.Join("data", "raw"),
			Extensions: []string{".xlsx", ".xls"},
			LogFile:    "ingestion_log.txt",
		},
		Legacy:   LegacyConfig{DuckDBPath: filepath.Join("data", "warehouse", "financial_data.db")},
		GCS:      GCSConfig{Prefix: "warehouse"},
		BigQuery: BigQueryConfig{Dataset: "finance", Table: "financial_transactions"},
		API:      APIConfig{Port: "8080", Workers: 1},
		LogLevel: "info",
	}
}

// Load reads path over the defaults, applies environment overrides and
// creates the warehouse directory. A missing or empty file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("Load: read %s: %w", path, err)
	case len(strings.TrimSpace(string(b))) > 0:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("Load: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Catalog.Warehouse, 0o755); err != nil {
		return nil, fmt.Errorf("Load: create warehouse: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"WAREHOUSE_DIR", &c.Catalog.Warehouse},
		{"RAW_DIR", &c.Ingestion.RawDir},
		{"GCS_BUCKET", &c.GCS.Bucket},
		{"BQ_PROJECT_ID", &c.BigQuery.ProjectID},
		{"LOG_LEVEL", &c.LogLevel},
		{"API_PORT", &c.API.Port},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Catalog.Warehouse) == "" {
		return fmt.Errorf("catalog.warehouse cannot be empty")
	}
	if strings.TrimSpace(c.Ingestion.LogFile) == "" {
		return fmt.Errorf("ingestion.log_file cannot be empty")
	}
	if strings.ContainsRune(c.Ingestion.LogFile, os.PathSeparator) {
		return fmt.Errorf("ingestion.log_file must be a file name, got %q", c.Ingestion.LogFile)
	}
	if len(c.Ingestion.Extensions) == 0 {
		return fmt.Errorf("ingestion.extensions cannot be empty")
	}
	for i, ext := range c.Ingestion.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			return fmt.Errorf("ingestion.extensions contains an empty entry")
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Ingestion.Extensions[i] = ext
	}
	if c.API.Workers < 1 {
		return fmt.Errorf("api.workers must be >= 1")
	}
	return nil
}

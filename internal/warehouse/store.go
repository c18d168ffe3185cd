// Package warehouse persists snapshot files and the append-only ingestion
// log inside one warehouse directory.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

const (
	// SnapshotPrefix starts every snapshot file name.
	SnapshotPrefix = "financial_transactions"
	// SnapshotExt is the snapshot file extension.
	SnapshotExt = ".parquet"
	// ConsolidatedFile is the migrated or hand-consolidated snapshot.
	ConsolidatedFile = "financial_transactions_iceberg.parquet"
	// DefaultLogFile is the ingestion log name inside the warehouse.
	DefaultLogFile = "ingestion_log.txt"

	snapshotTimeLayout = "20060102_150405"
)

// Meta is stored in a snapshot footer. Zero fields are filled at write
// time: CreatedAt with the store clock, DataVersion with CreatedAt in Unix
// seconds.
type Meta struct {
	CreatedAt   time.Time
	SourceFile  string
	DataVersion int64
}

// Store owns a warehouse directory.
type Store struct {
	dir     string
	logFile string
	log     zerolog.Logger
	now     func() time.Time
	mem     memory.Allocator
}

// Option configures a Store.
type Option func(*Store)

// WithLogFile overrides the ingestion log file name.
func WithLogFile(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.logFile = name
		}
	}
}

// WithClock replaces time.Now for snapshot metadata and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens the warehouse at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:     dir,
		logFile: DefaultLogFile,
		log:     zerolog.Nop(),
		now:     time.Now,
		mem:     memory.DefaultAllocator,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("New: create warehouse %s: %w", dir, err)
	}
	return s, nil
}

// Dir returns the warehouse directory.
func (s *Store) Dir() string { return s.dir }

// LogPath returns the ingestion log path.
func (s *Store) LogPath() string { return filepath.Join(s.dir, s.logFile) }

// Now returns the store clock reading.
func (s *Store) Now() time.Time { return s.now() }

// SnapshotFileName builds financial_transactions_<stem>_<YYYYMMDD_HHMMSS>.parquet
// for a source extract ingested at at.
func SnapshotFileName(sourceFileName string, at time.Time) string {
	base := filepath.Base(sourceFileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s_%s%s", SnapshotPrefix, stem, at.Format(snapshotTimeLayout), SnapshotExt)
}

// IsSnapshotFile reports whether name follows the snapshot naming pattern.
func IsSnapshotFile(name string) bool {
	return strings.HasSuffix(name, SnapshotExt) &&
		strings.Contains(name, SnapshotPrefix) &&
		!strings.HasPrefix(name, ".")
}

// resolve maps a snapshot file name to its path, rejecting anything that
// is not a plain file name inside the warehouse.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%q: %w", name, domain.ErrNotFound)
	}
	return filepath.Join(s.dir, name), nil
}

// WriteSnapshot writes t as warehouse/fileName. The file appears
// atomically; an existing file with the same name is replaced.
func (s *Store) WriteSnapshot(ctx context.Context, t *table.Table, fileName string, meta Meta) (domain.Snapshot, error) {
	path, err := s.resolve(fileName)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("WriteSnapshot: %w", err)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.DataVersion == 0 {
		meta.DataVersion = meta.CreatedAt.Unix()
	}

	data, err := encodeParquet(t, meta, s.mem)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("WriteSnapshot: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return domain.Snapshot{}, fmt.Errorf("WriteSnapshot: %w", err)
	}

	s.log.Info().
		Str("snapshot", fileName).
		Str("source_file", meta.SourceFile).
		Int("rows", t.Len()).
		Msg("Snapshot written")

	return s.Describe(ctx, fileName)
}

// WriteFile writes t as a Parquet file at an arbitrary path, outside any
// warehouse. Query results exported by the CLIs go through here.
func WriteFile(path string, t *table.Table, meta Meta) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	data, err := encodeParquet(t, meta, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Remove deletes a snapshot file.
func (s *Store) Remove(fileName string) error {
	path, err := s.resolve(fileName)
	if err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}

// Describe stats one snapshot and reads its footer. Files whose footer
// carries no created_at fall back to the modification time.
func (s *Store) Describe(_ context.Context, fileName string) (domain.Snapshot, error) {
	path, err := s.resolve(fileName)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("Describe: %w", err)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Snapshot{}, fmt.Errorf("Describe: %s: %w", fileName, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("Describe: %w", err)
	}

	snap := domain.Snapshot{
		ID:         strings.TrimSuffix(fileName, SnapshotExt),
		FileName:   fileName,
		FilePath:   path,
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
		SizeBytes:  info.Size(),
	}

	f, err := os.Open(path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("Describe: %w", err)
	}
	defer f.Close()

	ft, err := readFooter(f)
	if err != nil {
		s.log.Warn().Err(err).Str("snapshot", fileName).Msg("Unreadable snapshot footer")
		return snap, nil
	}
	snap.RowCount = ft.rows
	snap.SourceFileName = ft.sourceFile
	snap.DataVersion = ft.dataVersion
	if ft.hasCreated {
		snap.CreatedAt = ft.createdAt
	}
	return snap, nil
}

// ListSnapshots returns every snapshot in the warehouse, newest first by
// CreatedAt. Ties are broken by file name, descending.
func (s *Store) ListSnapshots(ctx context.Context) ([]domain.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ListSnapshots: %w", err)
	}

	var snaps []domain.Snapshot
	for _, e := range entries {
		if e.IsDir() || !IsSnapshotFile(e.Name()) {
			continue
		}
		snap, err := s.Describe(ctx, e.Name())
		if err != nil {
			s.log.Warn().Err(err).Str("snapshot", e.Name()).Msg("Skipping snapshot")
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].FileName > snaps[j].FileName
	})
	return snaps, nil
}

// ReadSnapshot loads a snapshot into memory. A missing file yields
// domain.ErrNotFound.
func (s *Store) ReadSnapshot(ctx context.Context, fileName string) (*table.Table, error) {
	path, err := s.resolve(fileName)
	if err != nil {
		return nil, fmt.Errorf("ReadSnapshot: %w", err)
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ReadSnapshot: %s: %w", fileName, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ReadSnapshot: %w", err)
	}
	defer f.Close()

	t, err := decodeParquet(ctx, f, s.mem)
	if err != nil {
		return nil, fmt.Errorf("ReadSnapshot: %s: %w", fileName, err)
	}
	return t, nil
}

// Latest returns the newest snapshot and its data, domain.ErrNoData when
// the warehouse holds none.
func (s *Store) Latest(ctx context.Context) (domain.Snapshot, *table.Table, error) {
	snaps, err := s.ListSnapshots(ctx)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("Latest: %w", err)
	}
	if len(snaps) == 0 {
		return domain.Snapshot{}, nil, fmt.Errorf("Latest: %w", domain.ErrNoData)
	}
	t, err := s.ReadSnapshot(ctx, snaps[0].FileName)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("Latest: %w", err)
	}
	return snaps[0], t, nil
}

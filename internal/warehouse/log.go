package warehouse

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-warehouse/internal/domain"
)

const (
	logTimeLayout  = "2006-01-02T15:04:05.000000"
	// Older log lines may carry whole-second timestamps.
	logParseLayout = "2006-01-02T15:04:05.999999"
	logSeparator   = " | "
)

// FormatLogLine renders one ingestion log line, trailing newline included.
func FormatLogLine(e domain.IngestionLogEntry) string {
	return fmt.Sprintf("%s%s%s%s%s%s%d rows\n",
		e.Timestamp.Local().Format(logTimeLayout), logSeparator,
		e.SourceFileName, logSeparator,
		e.OutputSnapshotFile, logSeparator,
		e.RowCount)
}

// splitLogLine cuts a line into its four fields. The timestamp is everything
// before the first separator and the row count everything after the last,
// so file names may themselves contain the separator.
func splitLogLine(line string) (ts, source, output, rows string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	first := strings.Index(line, logSeparator)
	last := strings.LastIndex(line, logSeparator)
	if first < 0 || last <= first {
		return "", "", "", "", false
	}
	ts, rows = line[:first], line[last+len(logSeparator):]
	middle := line[first+len(logSeparator) : last]

	cut := strings.LastIndex(middle, logSeparator+SnapshotPrefix)
	if cut < 0 {
		cut = strings.LastIndex(middle, logSeparator)
	}
	if cut < 0 {
		return "", "", "", "", false
	}
	return ts, middle[:cut], middle[cut+len(logSeparator):], rows, true
}

// ParseLogLine parses one line written by FormatLogLine.
func ParseLogLine(line string) (domain.IngestionLogEntry, error) {
	rawTS, source, output, rawRows, ok := splitLogLine(line)
	if !ok {
		return domain.IngestionLogEntry{}, fmt.Errorf("ParseLogLine: expected 4 fields separated by %q", logSeparator)
	}
	ts, err := time.ParseInLocation(logParseLayout, rawTS, time.Local)
	if err != nil {
		return domain.IngestionLogEntry{}, fmt.Errorf("ParseLogLine: timestamp: %w", err)
	}
	rows, err := strconv.Atoi(strings.TrimSuffix(rawRows, " rows"))
	if err != nil {
		return domain.IngestionLogEntry{}, fmt.Errorf("ParseLogLine: row count: %w", err)
	}
	return domain.IngestionLogEntry{
		Timestamp:          ts,
		SourceFileName:     source,
		OutputSnapshotFile: output,
		RowCount:           rows,
	}, nil
}

// AppendLog appends one entry to the ingestion log. The file is only ever
// opened in append mode.
func (s *Store) AppendLog(sourceFileName, outputFileName string, rowCount int) error {
	entry := domain.IngestionLogEntry{
		Timestamp:          s.now(),
		SourceFileName:     sourceFileName,
		OutputSnapshotFile: outputFileName,
		RowCount:           rowCount,
	}

	f, err := os.OpenFile(s.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("AppendLog: open: %w", err)
	}
	if _, err := f.WriteString(FormatLogLine(entry)); err != nil {
		_ = f.Close()
		return fmt.Errorf("AppendLog: write: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("AppendLog: close: %w", err)
	}
	return nil
}

// ReadLog returns every well-formed log entry in file order. Malformed
// lines are logged and skipped; a missing log is empty.
func (s *Store) ReadLog() ([]domain.IngestionLogEntry, error) {
	f, err := os.Open(s.LogPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReadLog: %w", err)
	}
	defer f.Close()

	var entries []domain.IngestionLogEntry
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := ParseLogLine(line)
		if err != nil {
			s.log.Warn().Err(err).Int("line", lineNo).Msg("Skipping malformed ingestion log line")
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ReadLog: scan: %w", err)
	}
	return entries, nil
}

// IsAlreadyProcessed reports whether sourceFileName equals the source
// field of any log line. A line whose timestamp or row count does not
// parse still counts by its source field.
func (s *Store) IsAlreadyProcessed(sourceFileName string) (bool, error) {
	if sourceFileName == "" {
		return false, nil
	}
	f, err := os.Open(s.LogPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsAlreadyProcessed: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if _, source, _, _, ok := splitLogLine(line); ok {
			if source == sourceFileName {
				return true, nil
			}
			continue
		}
		if strings.Contains(line, logSeparator+sourceFileName+logSeparator) {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("IsAlreadyProcessed: scan: %w", err)
	}
	return false, nil
}

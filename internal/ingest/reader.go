package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/finance-warehouse/internal/table"
)

// ExtractReader loads a raw extract into a table of string columns.
type ExtractReader interface {
	Read(ctx context.Context, path string) (*table.Table, error)
}

// ExcelReader reads the first (or named) sheet of a workbook. The first
// row holds the column names.
type ExcelReader struct {
	Sheet string
}

// Read implements ExtractReader. Cells are read raw so dates arrive as
// spreadsheet serial numbers; empty cells become nulls.
func (r ExcelReader) Read(ctx context.Context, path string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("ExcelReader.Read: open %s: %w", path, err)
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("ExcelReader.Read: %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("ExcelReader.Read: rows of %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return table.New(), nil
	}

	header := headerColumns(rows[0])
	t := table.New(header...)
	for _, raw := range rows[1:] {
		values := make([]any, len(header))
		empty := true
		for i := range header {
			if i >= len(raw) {
				continue
			}
			cell := strings.TrimSpace(raw[i])
			if cell == "" {
				continue
			}
			values[i] = cell
			empty = false
		}
		if empty {
			continue
		}
		if err := t.AppendRow(values...); err != nil {
			return nil, fmt.Errorf("ExcelReader.Read: %w", err)
		}
	}
	return t, nil
}

// headerColumns names unnamed columns column_<n> and suffixes repeats.
func headerColumns(cells []string) []table.Column {
	used := make(map[string]bool, len(cells))
	cols := make([]table.Column, len(cells))
	for i, cell := range cells {
		base := strings.TrimSpace(cell)
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; used[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = true
		cols[i] = table.Column{Name: name, Type: table.String}
	}
	return cols
}

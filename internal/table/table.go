// Package table holds tabular data in memory: an ordered set of typed
// columns and rows addressable by column name. Values are nil, string,
// int64, float64, civil.Date or time.Time (UTC).
package table

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Type is the logical type of a column.
type Type int

const (
	String Type = iota
	Int64
	Float64
	Date
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column names and types one column.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Table is a mutable, in-memory table. Operations that reshape rows
// (Filter, SortBy, Unique) return new tables sharing row storage with the
// receiver, so Clone before mutating either side.
type Table struct {
	cols []Column
	idx  map[string]int
	rows [][]any
}

// New creates an empty table with the given columns. Duplicate names keep
// the first occurrence.
func New(cols ...Column) *Table {
	t := &Table{idx: make(map[string]int, len(cols))}
	for _, c := range cols {
		if _, ok := t.idx[c.Name]; ok {
			continue
		}
		t.idx[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t
}

// Columns returns a copy of the column list.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.idx[name]
	return ok
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.idx[name]
	if !ok {
		return Column{}, false
	}
	return t.cols[i], true
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// AppendRow appends one row given in column order. Values are coerced to
// the column types; unconvertible values become nil.
func (t *Table) AppendRow(values ...any) error {
	if len(values) != len(t.cols) {
		return fmt.Errorf("AppendRow: got %d values for %d columns", len(values), len(t.cols))
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Coerce(v, t.cols[i].Type)
	}
	t.rows = append(t.rows, row)
	return nil
}

// AppendRecord appends one row given by column name. Unknown keys are
// ignored and absent columns are nil.
func (t *Table) AppendRecord(rec map[string]any) {
	row := make([]any, len(t.cols))
	for i, c := range t.cols {
		row[i] = Coerce(rec[c.Name], c.Type)
	}
	t.rows = append(t.rows, row)
}

// Value returns the cell at (row, column name), nil if the column is absent.
func (t *Table) Value(row int, name string) any {
	i, ok := t.idx[name]
	if !ok {
		return nil
	}
	return t.rows[row][i]
}

// Row returns a view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Records converts every row to a map keyed by column name.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for r, row := range t.rows {
		m := make(map[string]any, len(t.cols))
		for i, c := range t.cols {
			m[c.Name] = row[i]
		}
		out[r] = m
	}
	return out
}

// Clone returns a deep copy of the row slices.
func (t *Table) Clone() *Table {
	out := New(t.cols...)
	out.rows = make([][]any, len(t.rows))
	for i, row := range t.rows {
		out.rows[i] = append([]any(nil), row...)
	}
	return out
}

// AddColumn appends a new column filled by fill. It fails if the column
// already exists.
func (t *Table) AddColumn(c Column, fill func(Row) any) error {
	if t.Has(c.Name) {
		return fmt.Errorf("AddColumn: column %q already exists", c.Name)
	}
	t.idx[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	for i := range t.rows {
		var v any
		if fill != nil {
			v = Coerce(fill(Row{t: t, i: i}), c.Type)
		}
		t.rows[i] = append(t.rows[i], v)
	}
	return nil
}

// SetConstant sets column c to v on every row, adding the column if it is
// missing and replacing its type and values if it exists.
func (t *Table) SetConstant(c Column, v any) {
	v = Coerce(v, c.Type)
	i, ok := t.idx[c.Name]
	if !ok {
		_ = t.AddColumn(c, func(Row) any { return v })
		return
	}
	t.cols[i].Type = c.Type
	for _, row := range t.rows {
		row[i] = v
	}
}

// Cast converts a column to another type without failing on bad cells:
// values that cannot be converted become nil.
func (t *Table) Cast(name string, to Type) error {
	i, ok := t.idx[name]
	if !ok {
		return fmt.Errorf("Cast: unknown column %q", name)
	}
	t.cols[i].Type = to
	for _, row := range t.rows {
		row[i] = Coerce(row[i], to)
	}
	return nil
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Index returns the row position in its table.
func (r Row) Index() int { return r.i }

// Get returns the raw value of the named column, nil if absent.
func (r Row) Get(name string) any { return r.t.Value(r.i, name) }

// IsNull reports whether the named cell is nil or the column is absent.
func (r Row) IsNull(name string) bool { return r.Get(name) == nil }

// String returns the named cell as a string.
func (r Row) String(name string) (string, bool) {
	s, ok := Coerce(r.Get(name), String).(string)
	return s, ok
}

// Int returns the named cell as an int64.
func (r Row) Int(name string) (int64, bool) {
	n, ok := Coerce(r.Get(name), Int64).(int64)
	return n, ok
}

// Float returns the named cell as a float64.
func (r Row) Float(name string) (float64, bool) {
	f, ok := Coerce(r.Get(name), Float64).(float64)
	return f, ok
}

// Date returns the named cell as a calendar date.
func (r Row) Date(name string) (civil.Date, bool) {
	d, ok := Coerce(r.Get(name), Date).(civil.Date)
	return d, ok
}

// Time returns the named cell as a UTC timestamp.
func (r Row) Time(name string) (time.Time, bool) {
	ts, ok := Coerce(r.Get(name), Timestamp).(time.Time)
	return ts, ok
}

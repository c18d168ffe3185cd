package table

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
)

// SortKey orders rows by one column. Nulls always sort last.
type SortKey struct {
	Column string
	Desc   bool
}

// Filter returns the rows for which keep reports true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.cols...)
	for i, row := range t.rows {
		if keep(Row{t: t, i: i}) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// SortBy returns a stably sorted copy. Keys naming absent columns are
// ignored.
func (t *Table) SortBy(keys ...SortKey) *Table {
	out := New(t.cols...)
	out.rows = append([][]any(nil), t.rows...)

	type resolved struct {
		pos  int
		desc bool
	}
	var rk []resolved
	for _, k := range keys {
		if i, ok := t.idx[k.Column]; ok {
			rk = append(rk, resolved{pos: i, desc: k.Desc})
		}
	}
	if len(rk) == 0 {
		return out
	}

	sort.SliceStable(out.rows, func(a, b int) bool {
		for _, k := range rk {
			va, vb := out.rows[a][k.pos], out.rows[b][k.pos]
			switch {
			case va == nil && vb == nil:
				continue
			case va == nil:
				return false
			case vb == nil:
				return true
			}
			c := compareValues(va, vb)
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}

// Unique keeps the first row for each distinct combination of the subset
// columns. An absent subset column counts as null for every row.
func (t *Table) Unique(subset ...string) *Table {
	out := New(t.cols...)
	seen := make(map[string]struct{}, len(t.rows))
	for _, row := range t.rows {
		key := t.keyOf(row, subset)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.rows = append(out.rows, row)
	}
	return out
}

func (t *Table) keyOf(row []any, subset []string) string {
	var b strings.Builder
	for _, name := range subset {
		var v any
		if i, ok := t.idx[name]; ok {
			v = row[i]
		}
		if v == nil {
			b.WriteString("\x00null")
		} else {
			fmt.Fprintf(&b, "%T=%v", v, v)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// Concat stacks tables vertically. Columns are the union in first-seen
// order; a column present in only some inputs is null elsewhere, and
// columns whose types differ are widened to a common type.
func Concat(tables ...*Table) *Table {
	var cols []Column
	pos := make(map[string]int)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.cols {
			if i, ok := pos[c.Name]; ok {
				cols[i].Type = supertype(cols[i].Type, c.Type)
				continue
			}
			pos[c.Name] = len(cols)
			cols = append(cols, c)
		}
	}

	out := New(cols...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, row := range t.rows {
			merged := make([]any, len(cols))
			for i, c := range t.cols {
				target := pos[c.Name]
				if c.Type == cols[target].Type {
					merged[target] = row[i]
				} else {
					merged[target] = Coerce(row[i], cols[target].Type)
				}
			}
			out.rows = append(out.rows, merged)
		}
	}
	return out
}

// DateRange returns the earliest and latest non-null dates in the named
// column. ok is false when the column is absent or has no dates.
func (t *Table) DateRange(name string) (minDate, maxDate civil.Date, ok bool) {
	i, present := t.idx[name]
	if !present {
		return civil.Date{}, civil.Date{}, false
	}
	for _, row := range t.rows {
		d, isDate := Coerce(row[i], Date).(civil.Date)
		if !isDate {
			continue
		}
		if !ok || d.Before(minDate) {
			minDate = d
		}
		if !ok || d.After(maxDate) {
			maxDate = d
		}
		ok = true
	}
	return minDate, maxDate, ok
}

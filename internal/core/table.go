package core

import (
	"bytes"
	"sort"

	json "github.com/goccy/go-json"
)

// Row is a single record keyed by column name.
//
// Rows handed out by a Table are shared between tables derived from it and
// must be treated as read-only. Use Table.WithColumn to add values.
type Row map[string]any

// Table is an ordered sequence of rows sharing a dynamically extensible
// column set. Every row carries a key (its position in the dataset the table
// was built from) which survives column-adding and filtering operations, so
// results of independent transform chains can be merged back by row.
type Table struct {
	columns []string
	rows    []Row
	keys    []int
}

// NewTable builds a table from rows. Row keys are assigned by position and
// columns are discovered in order of first appearance (keys of a single row
// are sorted, since maps carry no order).
func NewTable(rows []Row) Table {
	t := Table{
		rows: make([]Row, len(rows)),
		keys: make([]int, len(rows)),
	}
	seen := make(map[string]bool)
	for i, r := range rows {
		if r == nil {
			r = Row{}
		}
		t.rows[i] = r
		t.keys[i] = i

		names := make([]string, 0, len(r))
		for name := range r {
			if !seen[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			seen[name] = true
			t.columns = append(t.columns, name)
		}
	}
	return t
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.rows)
}

// Columns returns the column names in order of introduction.
func (t Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether the column is part of the table's column set.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// RequireColumns returns a MissingColumn error for the first absent column.
func (t Table) RequireColumns(op string, names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return MissingColumn(op, name)
		}
	}
	return nil
}

// Row returns the i-th row. The returned map must not be modified.
func (t Table) Row(i int) Row {
	return t.rows[i]
}

// Key returns the stable key of the i-th row.
func (t Table) Key(i int) int {
	return t.keys[i]
}

// Value returns the value of col in row i.
func (t Table) Value(i int, col string) (any, bool) {
	v, ok := t.rows[i][col]
	return v, ok
}

// WithColumn returns a copy of the table with column name set on every row
// to the value computed by fn. Row count, order and keys are unchanged and
// the receiver is left untouched.
func (t Table) WithColumn(name string, fn func(i int, r Row) (any, error)) (Table, error) {
	out := Table{
		columns: t.Columns(),
		rows:    make([]Row, len(t.rows)),
		keys:    append([]int(nil), t.keys...),
	}
	if !t.HasColumn(name) {
		out.columns = append(out.columns, name)
	}
	for i, r := range t.rows {
		v, err := fn(i, r)
		if err != nil {
			return Table{}, err
		}
		nr := make(Row, len(r)+1)
		for k, val := range r {
			nr[k] = val
		}
		nr[name] = v
		out.rows[i] = nr
	}
	return out, nil
}

// Filter returns the rows for which keep reports true, preserving their
// relative order and keys. The column set is unchanged.
func (t Table) Filter(keep func(i int, r Row) (bool, error)) (Table, error) {
	out := Table{columns: t.Columns()}
	for i, r := range t.rows {
		ok, err := keep(i, r)
		if err != nil {
			return Table{}, err
		}
		if ok {
			out.rows = append(out.rows, r)
			out.keys = append(out.keys, t.keys[i])
		}
	}
	return out, nil
}

// Clone returns a copy whose rows can be modified independently.
func (t Table) Clone() Table {
	out := Table{
		columns: t.Columns(),
		rows:    make([]Row, len(t.rows)),
		keys:    append([]int(nil), t.keys...),
	}
	for i, r := range t.rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.rows[i] = nr
	}
	return out
}

// IndexByKey maps row keys to their position in the table.
func (t Table) IndexByKey() map[int]int {
	idx := make(map[int]int, len(t.keys))
	for i, k := range t.keys {
		idx[k] = i
	}
	return idx
}

// Project reduces the table to exactly the given fields, in order.
func (t Table) Project(op string, fields []string) (Projection, error) {
	if err := t.RequireColumns(op, fields...); err != nil {
		return Projection{}, err
	}
	p := Projection{
		Fields: append([]string(nil), fields...),
		Rows:   make([][]any, len(t.rows)),
	}
	for i, r := range t.rows {
		vals := make([]any, len(fields))
		for j, f := range fields {
			vals[j] = r[f]
		}
		p.Rows[i] = vals
	}
	return p, nil
}

// Projection is an export-ready table with a fixed, ordered field list.
// It marshals to a JSON array of objects whose keys follow Fields.
type Projection struct {
	Fields []string
	Rows   [][]any
}

// Len returns the number of rows.
func (p Projection) Len() int {
	return len(p.Rows)
}

// Record returns row i as a map.
func (p Projection) Record(i int) map[string]any {
	rec := make(map[string]any, len(p.Fields))
	for j, f := range p.Fields {
		rec[f] = p.Rows[i][j]
	}
	return rec
}

// MarshalJSON writes the rows as objects with keys in field order.
func (p Projection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range p.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, f := range p.Fields {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(f)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(row[j])
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

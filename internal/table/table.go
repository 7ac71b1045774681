package table

import (
	"math"
	"strconv"
	"strings"
)

// Value is a single cell. Numeric cells carry Num; everything else is text.
type Value struct {
	Str   string
	Num   float64
	IsNum bool
}

// Text builds a text cell.
func Text(s string) Value { return Value{Str: s} }

// Number builds a numeric cell.
func Number(f float64) Value {
	return Value{Str: strconv.FormatFloat(f, 'f', -1, 64), Num: f, IsNum: true}
}

// Null is the empty cell.
var Null = Value{}

// IsNull reports whether the cell holds no value.
func (v Value) IsNull() bool { return !v.IsNum && strings.TrimSpace(v.Str) == "" }

func (v Value) String() string {
	if v.IsNum {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// Column is a named vector of cells. Numeric columns only hold numeric or
// null cells.
type Column struct {
	Name    string
	Numeric bool
	Values  []Value
}

// Table is an immutable, in-memory record table. Row order is the order of
// the source; row ids track the original position through filters and sorts.
type Table struct {
	Name     string
	Encoding string

	cols   []*Column
	index  map[string]int
	rowIDs []int
}

// New builds a table from a header and string rows, inferring numeric columns.
// Duplicate header names get a ".N" suffix.
func New(name string, header []string, rows [][]string) *Table {
	names := dedupeHeader(header)
	cols := make([]*Column, len(names))
	for j, n := range names {
		vals := make([]Value, len(rows))
		for i, r := range rows {
			if j < len(r) {
				vals[i] = Text(strings.TrimSpace(r[j]))
			}
		}
		cols[j] = inferColumn(n, vals)
	}
	return FromColumns(name, cols)
}

// FromColumns assembles a table from prepared columns. Columns shorter than the
// longest one are padded with nulls.
func FromColumns(name string, cols []*Column) *Table {
	n := 0
	for _, c := range cols {
		if len(c.Values) > n {
			n = len(c.Values)
		}
	}
	t := &Table{Name: name, index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if len(c.Values) < n {
			padded := make([]Value, n)
			copy(padded, c.Values)
			c = &Column{Name: c.Name, Numeric: c.Numeric, Values: padded}
		}
		if _, dup := t.index[c.Name]; dup {
			continue
		}
		t.index[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	t.rowIDs = make([]int, n)
	for i := range t.rowIDs {
		t.rowIDs[i] = i
	}
	return t
}

func inferColumn(name string, vals []Value) *Column {
	numeric := false
	for _, v := range vals {
		if v.IsNull() {
			continue
		}
		if _, ok := parseFloat(v.Str); !ok {
			numeric = false
			break
		}
		numeric = true
	}
	if !numeric {
		return &Column{Name: name, Values: vals}
	}
	out := make([]Value, len(vals))
	for i, v := range vals {
		if v.IsNull() {
			continue
		}
		if f, ok := parseFloat(v.Str); ok {
			out[i] = Number(f)
		}
	}
	return &Column{Name: name, Numeric: true, Values: out}
}

// parseFloat accepts plain decimal numbers; NaN counts as missing.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func dedupeHeader(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			out[i] = h + "." + strconv.Itoa(n+1)
			continue
		}
		seen[h] = 0
		out[i] = h
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rowIDs)
}

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Has reports whether the named column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// First returns the first candidate column name present in the table.
func (t *Table) First(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if t.Has(c) {
			return c, true
		}
	}
	return "", false
}

// RowID returns the source position of row i.
func (t *Table) RowID(i int) int { return t.rowIDs[i] }

// At returns the cell at row i of the named column, or Null.
func (t *Table) At(i int, name string) Value {
	c, ok := t.Column(name)
	if !ok || i < 0 || i >= len(c.Values) {
		return Null
	}
	return c.Values[i]
}

// NumericColumns lists numeric column names in order.
func (t *Table) NumericColumns() []string {
	var out []string
	for _, c := range t.cols {
		if c.Numeric {
			out = append(out, c.Name)
		}
	}
	return out
}

// Unique returns the distinct non-null text forms of a column in first-seen
// order.
func (t *Table) Unique(name string) []string {
	c, ok := t.Column(name)
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range c.Values {
		if v.IsNull() {
			continue
		}
		s := v.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// NonNull counts the non-null cells of a column.
func (t *Table) NonNull(name string) int {
	c, ok := t.Column(name)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range c.Values {
		if !v.IsNull() {
			n++
		}
	}
	return n
}

// Field is one named cell of a record.
type Field struct {
	Name  string
	Value Value
}

// Record is a row with its source position.
type Record struct {
	RowID  int
	Fields []Field
}

// Get returns the named field value.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Null, false
}

// Record returns row i with every column.
func (t *Table) Record(i int) Record {
	rec := Record{RowID: t.rowIDs[i], Fields: make([]Field, len(t.cols))}
	for j, c := range t.cols {
		rec.Fields[j] = Field{Name: c.Name, Value: c.Values[i]}
	}
	return rec
}

// Records returns up to n rows as records; n <= 0 means all.
func (t *Table) Records(n int) []Record {
	if n <= 0 || n > t.Len() {
		n = t.Len()
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = t.Record(i)
	}
	return out
}

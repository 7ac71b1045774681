// Package join folds several uploaded tables into one wide table keyed by
// company.
package join

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Key is the normalized company column of a joined table.
const Key = "거래처"

const (
	nameAlt = "거래처명"
	codeCol = "거래처 코드"
)

// important columns keep their names through the prefixing pass.
var important = map[string]bool{
	Key: true, nameAlt: true, codeCol: true, "매출일": true, "거래일": true, "합계": true,
	"총 판매금액": true, "공급가액": true, "마진율": true, "제품명": true, "제품군": true,
}

// ErrEmptyKey means a table that names a company column has no company
// values in it.
var ErrEmptyKey = errors.New("company column has no values")

// CollisionError means two joined columns ended up with the same name.
type CollisionError = table.CollisionError

// Input is one named table offered for joining.
type Input struct {
	Name  string
	Table *table.Table
}

// KeyMap is the code ↔ name map of companies.
type KeyMap struct {
	byCode map[string]string
	byName map[string]string
}

// BuildKeyMap scans every table holding both a company code and a company
// name and records each pair. Later tables override earlier ones.
func BuildKeyMap(inputs []Input) KeyMap {
	km := KeyMap{byCode: map[string]string{}, byName: map[string]string{}}
	for _, in := range inputs {
		t := in.Table
		if t == nil || !t.Has(codeCol) {
			continue
		}
		nameCol, ok := t.First(Key, nameAlt)
		if !ok {
			continue
		}
		for i := 0; i < t.Len(); i++ {
			code, name := t.At(i, codeCol), t.At(i, nameCol)
			if code.IsNull() || name.IsNull() {
				continue
			}
			c, n := strings.TrimSpace(code.String()), strings.TrimSpace(name.String())
			km.byCode[c] = n
			km.byName[n] = c
		}
	}
	return km
}

// Len is the number of known codes.
func (k KeyMap) Len() int { return len(k.byCode) }

// Name returns the company name for a code.
func (k KeyMap) Name(code string) (string, bool) {
	n, ok := k.byCode[strings.TrimSpace(code)]
	return n, ok
}

// Code returns the company code for a name.
func (k KeyMap) Code(name string) (string, bool) {
	c, ok := k.byName[strings.TrimSpace(name)]
	return c, ok
}

// Result is a successful join.
type Result struct {
	Table   *table.Table
	Sources []string
	KeyMap  KeyMap
}

// Companies counts the distinct company keys.
func (r *Result) Companies() int { return len(r.Table.Unique(Key)) }

// ByCompany outer-joins every table that identifies a company. It returns
// (nil, nil) when fewer than two tables qualify, which is the normal "no join"
// answer. An error means a qualifying table is malformed.
func ByCompany(inputs []Input) (*Result, error) {
	km := BuildKeyMap(inputs)

	type prepared struct {
		name string
		t    *table.Table
	}
	var ready []prepared
	for _, in := range inputs {
		if in.Table == nil {
			continue
		}
		t, ok := withKey(in.Table, km)
		if !ok {
			continue
		}
		if t.NonNull(Key) == 0 {
			return nil, fmt.Errorf("%s: %w", in.Name, ErrEmptyKey)
		}
		ready = append(ready, prepared{in.Name, prefixColumns(t, in.Name)})
	}
	if len(ready) < 2 {
		return nil, nil
	}

	out := ready[0].t
	sources := []string{ready[0].name}
	for i := 1; i < len(ready); i++ {
		merged, err := table.OuterMerge(out, ready[i].t, Key, fmt.Sprintf("_%d", i))
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", ready[i].name, err)
		}
		out = merged
		sources = append(sources, ready[i].name)
	}
	out.Name = "통합 데이터"
	return &Result{Table: out, Sources: sources, KeyMap: km}, nil
}

// withKey materializes the company column: copied from 거래처 or 거래처명, or
// derived from the code with the raw code as fallback.
func withKey(t *table.Table, km KeyMap) (*table.Table, bool) {
	if t.Has(Key) {
		return t, true
	}
	if c, ok := t.Column(nameAlt); ok {
		return t.WithColumn(&table.Column{Name: Key, Values: textValues(c.Values)}), true
	}
	c, ok := t.Column(codeCol)
	if !ok {
		return nil, false
	}
	vals := make([]table.Value, len(c.Values))
	for i, v := range c.Values {
		if v.IsNull() {
			continue
		}
		code := strings.TrimSpace(v.String())
		if name, ok := km.Name(code); ok {
			vals[i] = table.Text(name)
		} else {
			vals[i] = table.Text(code)
		}
	}
	return t.WithColumn(&table.Column{Name: Key, Values: vals}), true
}

func textValues(vals []table.Value) []table.Value {
	out := make([]table.Value, len(vals))
	for i, v := range vals {
		if !v.IsNull() {
			out[i] = table.Text(v.String())
		}
	}
	return out
}

// prefixColumns renames every column outside the important set to
// "<file prefix>_<column>". Values are untouched.
func prefixColumns(t *table.Table, filename string) *table.Table {
	p := Prefix(filename)
	rename := map[string]string{}
	for _, c := range t.Columns() {
		if !important[c] {
			rename[c] = p + "_" + c
		}
	}
	return t.Rename(rename)
}

// prefixSteps apply in order, so "매출 (1)" becomes "매출_1" and then "매출".
var prefixSteps = [][2]string{{" ", "_"}, {"(", ""}, {")", ""}, {"ver1", ""}, {"_1", ""}}

// Prefix derives a column prefix from a file name: extension dropped, spaces
// to underscores, parentheses and "ver1"/"_1" markers removed.
func Prefix(filename string) string {
	p := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, s := range prefixSteps {
		p = strings.ReplaceAll(p, s[0], s[1])
	}
	return p
}

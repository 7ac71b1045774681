package table

import (
	"fmt"
	"math"
	"sort"
)

// Filter returns the rows for which keep reports true. Row ids are preserved.
func (t *Table) Filter(keep func(i int) bool) *Table {
	var idx []int
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.take(idx)
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n >= t.Len() {
		return t
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.take(idx)
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	if n >= t.Len() {
		return t
	}
	idx := make([]int, 0, n)
	for i := t.Len() - n; i < t.Len(); i++ {
		idx = append(idx, i)
	}
	return t.take(idx)
}

// SortBy orders rows on a column; the sort is stable and nulls go last in
// either direction. Numeric columns compare numerically, others lexically.
func (t *Table) SortBy(name string, desc bool) *Table {
	c, ok := t.Column(name)
	if !ok {
		return t
	}
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := c.Values[idx[a]], c.Values[idx[b]]
		na, nb := va.IsNull(), vb.IsNull()
		if na || nb {
			return !na && nb
		}
		if c.Numeric {
			if desc {
				return va.Num > vb.Num
			}
			return va.Num < vb.Num
		}
		if desc {
			return va.Str > vb.Str
		}
		return va.Str < vb.Str
	})
	return t.take(idx)
}

// Select keeps only the named columns that exist, in the given order.
func (t *Table) Select(names ...string) *Table {
	var cols []*Column
	for _, n := range names {
		if c, ok := t.Column(n); ok {
			cols = append(cols, c)
		}
	}
	out := FromColumns(t.Name, cols)
	out.Encoding = t.Encoding
	out.rowIDs = append([]int(nil), t.rowIDs...)
	return out
}

// Rename returns a copy with columns renamed per mapping. Columns missing from
// the mapping keep their names.
func (t *Table) Rename(mapping map[string]string) *Table {
	cols := make([]*Column, len(t.cols))
	for i, c := range t.cols {
		name := c.Name
		if n, ok := mapping[c.Name]; ok && n != "" {
			name = n
		}
		cols[i] = &Column{Name: name, Numeric: c.Numeric, Values: c.Values}
	}
	out := FromColumns(t.Name, cols)
	out.Encoding = t.Encoding
	out.rowIDs = append([]int(nil), t.rowIDs...)
	return out
}

// WithColumn returns a copy with c appended, or replacing a column of the same
// name in place.
func (t *Table) WithColumn(c *Column) *Table {
	cols := make([]*Column, 0, len(t.cols)+1)
	replaced := false
	for _, existing := range t.cols {
		if existing.Name == c.Name {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, existing)
	}
	if !replaced {
		cols = append(cols, c)
	}
	out := FromColumns(t.Name, cols)
	out.Encoding = t.Encoding
	out.rowIDs = append([]int(nil), t.rowIDs...)
	return out
}

func (t *Table) take(idx []int) *Table {
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		vals := make([]Value, len(idx))
		for k, i := range idx {
			vals[k] = c.Values[i]
		}
		cols[j] = &Column{Name: c.Name, Numeric: c.Numeric, Values: vals}
	}
	out := &Table{Name: t.Name, Encoding: t.Encoding, cols: cols, index: make(map[string]int, len(cols))}
	for j, c := range cols {
		out.index[c.Name] = j
	}
	out.rowIDs = make([]int, len(idx))
	for k, i := range idx {
		out.rowIDs[k] = t.rowIDs[i]
	}
	return out
}

// Agg names an aggregation function.
type Agg string

const (
	Sum   Agg = "sum"
	Mean  Agg = "mean"
	Count Agg = "count"
	Max   Agg = "max"
	Min   Agg = "min"
)

// Apply reduces the non-null numbers of vals. Sum and Count of nothing are 0;
// Mean, Max and Min of nothing are null.
func (a Agg) Apply(vals []Value) Value {
	var nums []float64
	for _, v := range vals {
		if v.IsNum {
			nums = append(nums, v.Num)
		}
	}
	switch a {
	case Count:
		n := 0
		for _, v := range vals {
			if !v.IsNull() {
				n++
			}
		}
		return Number(float64(n))
	case Mean:
		if len(nums) == 0 {
			return Null
		}
		var s float64
		for _, x := range nums {
			s += x
		}
		return Number(s / float64(len(nums)))
	case Max, Min:
		if len(nums) == 0 {
			return Null
		}
		best := nums[0]
		for _, x := range nums[1:] {
			if (a == Max && x > best) || (a == Min && x < best) {
				best = x
			}
		}
		return Number(best)
	default:
		var s float64
		for _, x := range nums {
			s += x
		}
		return Number(s)
	}
}

// groups partitions row indexes by the text form of key, dropping null keys.
// Keys come back sorted ascending.
func (t *Table) groups(key string) ([]string, map[string][]int, bool) {
	c, ok := t.Column(key)
	if !ok {
		return nil, nil, false
	}
	members := map[string][]int{}
	for i, v := range c.Values {
		if v.IsNull() {
			continue
		}
		k := v.String()
		members[k] = append(members[k], i)
	}
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	if c.Numeric {
		sort.Slice(keys, func(a, b int) bool {
			return c.Values[members[keys[a]][0]].Num < c.Values[members[keys[b]][0]].Num
		})
	} else {
		sort.Strings(keys)
	}
	return keys, members, true
}

// GroupAggregate groups rows by key and reduces each of cols with fn. The
// result has the key column followed by one column per aggregated input.
func (t *Table) GroupAggregate(key string, cols []string, fn Agg) (*Table, bool) {
	keys, members, ok := t.groups(key)
	if !ok {
		return nil, false
	}
	keyCol, _ := t.Column(key)
	out := []*Column{{Name: key, Numeric: keyCol.Numeric, Values: make([]Value, len(keys))}}
	for g, k := range keys {
		out[0].Values[g] = keyCol.Values[members[k][0]]
	}
	for _, name := range cols {
		src, ok := t.Column(name)
		if !ok || name == key {
			continue
		}
		res := &Column{Name: name, Numeric: true, Values: make([]Value, len(keys))}
		for g, k := range keys {
			vals := make([]Value, len(members[k]))
			for j, i := range members[k] {
				vals[j] = src.Values[i]
			}
			res.Values[g] = fn.Apply(vals)
		}
		out = append(out, res)
	}
	return FromColumns(t.Name, out), true
}

// GroupSize groups rows by key and counts the rows per group into a column
// named as.
func (t *Table) GroupSize(key, as string) (*Table, bool) {
	keys, members, ok := t.groups(key)
	if !ok {
		return nil, false
	}
	keyCol, _ := t.Column(key)
	kc := &Column{Name: key, Numeric: keyCol.Numeric, Values: make([]Value, len(keys))}
	sc := &Column{Name: as, Numeric: true, Values: make([]Value, len(keys))}
	for g, k := range keys {
		kc.Values[g] = keyCol.Values[members[k][0]]
		sc.Values[g] = Number(float64(len(members[k])))
	}
	return FromColumns(t.Name, []*Column{kc, sc}), true
}

// Aggregate reduces each of cols over the whole table into a single row.
func (t *Table) Aggregate(cols []string, fn Agg) *Table {
	var out []*Column
	for _, name := range cols {
		c, ok := t.Column(name)
		if !ok {
			continue
		}
		out = append(out, &Column{Name: name, Numeric: true, Values: []Value{fn.Apply(c.Values)}})
	}
	return FromColumns(t.Name, out)
}

// Stats are the summary numbers of one numeric column. Mean, Min and Max are
// zero when Count is zero.
type Stats struct {
	Count     int
	Sum, Mean float64
	Min, Max  float64
}

// Describe computes Stats over a numeric column.
func (t *Table) Describe(name string) Stats {
	var s Stats
	c, ok := t.Column(name)
	if !ok {
		return s
	}
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for _, v := range c.Values {
		if !v.IsNum {
			continue
		}
		s.Count++
		s.Sum += v.Num
		s.Min = math.Min(s.Min, v.Num)
		s.Max = math.Max(s.Max, v.Num)
	}
	if s.Count > 0 {
		s.Mean = s.Sum / float64(s.Count)
	} else {
		s.Min, s.Max = 0, 0
	}
	return s
}

// CollisionError reports a column name produced twice by a merge.
type CollisionError struct {
	Column string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("column %q collides after merge", e.Column)
}

// OuterMerge joins left and right on key, keeping unmatched rows from both
// sides. Matching keys produce every left×right pairing. Non-key columns that
// exist on both sides keep their name on the left and gain suffix on the right.
// Rows with a null key never match. Left rows come first in their order,
// followed by unmatched right rows.
func OuterMerge(left, right *Table, key, suffix string) (*Table, error) {
	lk, ok := left.Column(key)
	if !ok {
		return nil, fmt.Errorf("left table %q has no %q column", left.Name, key)
	}
	rk, ok := right.Column(key)
	if !ok {
		return nil, fmt.Errorf("right table %q has no %q column", right.Name, key)
	}

	// Output column layout.
	type src struct {
		col  *Column
		left bool
	}
	var layout []src
	names := map[string]bool{}
	layout = append(layout, src{col: lk, left: true})
	names[key] = true
	for _, c := range left.cols {
		if c.Name == key {
			continue
		}
		layout = append(layout, src{col: c, left: true})
		names[c.Name] = true
	}
	rightNames := make([]string, 0, len(right.cols))
	for _, c := range right.cols {
		if c.Name == key {
			continue
		}
		name := c.Name
		if left.Has(name) {
			name += suffix
		}
		if names[name] {
			return nil, &CollisionError{Column: name}
		}
		names[name] = true
		layout = append(layout, src{col: c, left: false})
		rightNames = append(rightNames, name)
	}

	rightByKey := map[string][]int{}
	for i, v := range rk.Values {
		if v.IsNull() {
			continue
		}
		rightByKey[v.String()] = append(rightByKey[v.String()], i)
	}

	type pair struct{ l, r int } // -1 means absent
	var pairs []pair
	matchedRight := make([]bool, right.Len())
	for i, v := range lk.Values {
		if v.IsNull() {
			pairs = append(pairs, pair{i, -1})
			continue
		}
		rs := rightByKey[v.String()]
		if len(rs) == 0 {
			pairs = append(pairs, pair{i, -1})
			continue
		}
		for _, r := range rs {
			pairs = append(pairs, pair{i, r})
			matchedRight[r] = true
		}
	}
	for r := 0; r < right.Len(); r++ {
		if !matchedRight[r] {
			pairs = append(pairs, pair{-1, r})
		}
	}

	cols := make([]*Column, len(layout))
	ri := 0
	for j, s := range layout {
		name := s.col.Name
		if !s.left {
			name = rightNames[ri]
			ri++
		}
		vals := make([]Value, len(pairs))
		for k, p := range pairs {
			switch {
			case j == 0:
				if p.l >= 0 {
					vals[k] = lk.Values[p.l]
				} else {
					vals[k] = rk.Values[p.r]
				}
			case s.left && p.l >= 0:
				vals[k] = s.col.Values[p.l]
			case !s.left && p.r >= 0:
				vals[k] = s.col.Values[p.r]
			}
		}
		cols[j] = &Column{Name: name, Numeric: s.col.Numeric, Values: vals}
	}
	// A text key joined to a numeric key stays text.
	if lk.Numeric != rk.Numeric {
		kc := cols[0]
		for k, v := range kc.Values {
			if v.IsNum {
				kc.Values[k] = Text(v.String())
			}
		}
		kc.Numeric = false
	}
	return FromColumns(left.Name, cols), nil
}

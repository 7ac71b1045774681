// Package analysis profiles loaded tables: column kinds, numeric statistics,
// outliers, group summaries and correlations, rendered for prompts and the CLI.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Options controls profiling.
type Options struct {
	// MaxRows limits rows processed; 0 means unlimited.
	MaxRows int
	// SampleRows is the number of leading rows kept as examples.
	SampleRows int
	// MaxColumns caps the column listing of Summary.
	MaxColumns int
	// GroupBy computes per-group summaries for the given column names.
	GroupBy []string
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// Outliers counts values with robust |z| (MAD based) above OutlierThreshold.
	Outliers         bool
	OutlierThreshold float64
}

// DefaultOptions returns the defaults used for uploads.
func DefaultOptions() Options {
	return Options{
		MaxRows:          100000,
		SampleRows:       3,
		MaxColumns:       20,
		Outliers:         true,
		OutlierThreshold: 3.5,
	}
}

// Column kinds.
const (
	KindNumeric     = "numeric"
	KindDatetime    = "datetime"
	KindCategorical = "categorical"
	KindText        = "text"
	KindEmpty       = "empty"
)

// Report is a profile of one table.
type Report struct {
	Name      string
	Encoding  string
	Rows      int
	Processed int
	Cols      []ColumnSummary
	Warnings  []string
	Groups    []GroupResult
	Corr      *CorrMatrix

	head *table.Table
}

// ColumnSummary captures inferred kind and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Sum  float64
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	// Categorical top values
	TopValues    []CategoryCount
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key     string
	Size    int
	Metrics map[string]NumSummary
}

type NumSummary struct {
	Count               int
	Sum, Min, Max, Mean float64
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string
	Values  [][]float64
}

// Profile builds a report over t.
func Profile(t *table.Table, opt Options) *Report {
	rep := &Report{Name: t.Name, Encoding: t.Encoding, Rows: t.Len()}
	if opt.MaxRows > 0 && t.Len() > opt.MaxRows {
		t = t.Head(opt.MaxRows)
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%d행 중 %d행만 분석했습니다", rep.Rows, opt.MaxRows))
	}
	rep.Processed = t.Len()
	sample := opt.SampleRows
	if sample <= 0 {
		sample = 3
	}
	rep.head = t.Head(sample)

	var numeric []string
	for _, name := range t.Columns() {
		c, _ := t.Column(name)
		s := summarize(c, opt)
		if s.Kind == KindNumeric {
			numeric = append(numeric, name)
		}
		rep.Cols = append(rep.Cols, s)
	}
	for _, key := range opt.GroupBy {
		if !t.Has(key) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("그룹 컬럼 %q 없음", key))
			continue
		}
		rep.Groups = append(rep.Groups, groupSummaries(t, key, numeric)...)
	}
	if opt.Correlations && len(numeric) >= 2 {
		rep.Corr = correlations(t, numeric)
	}
	return rep
}

func summarize(c *table.Column, opt Options) ColumnSummary {
	s := ColumnSummary{Name: c.Name}
	var (
		nums  []float64
		cats  = map[string]int{}
		long  int
		n     int
		mean  float64
		m2    float64
		first []string
	)
	s.Min, s.Max = math.Inf(1), math.Inf(-1)
	for _, v := range c.Values {
		if v.IsNull() {
			s.Missing++
			continue
		}
		s.NonNull++
		if c.Numeric {
			x := v.Num
			// Welford update
			n++
			delta := x - mean
			mean += delta / float64(n)
			m2 += delta * (x - mean)
			s.Sum += x
			s.Min = math.Min(s.Min, x)
			s.Max = math.Max(s.Max, x)
			nums = append(nums, x)
			continue
		}
		str := v.String()
		if len(str) > 64 {
			long++
		} else if len(cats) <= 10000 {
			cats[str]++
		}
		if len(first) < 3 {
			first = append(first, str)
		}
	}

	switch {
	case s.NonNull == 0:
		s.Kind = KindEmpty
		s.Min, s.Max = 0, 0
	case c.Numeric:
		s.Kind = KindNumeric
		s.Mean = mean
		if n > 1 {
			s.Std = math.Sqrt(m2 / float64(n-1))
		}
		if opt.Outliers && len(nums) >= 8 {
			s.OutlierThreshold = opt.OutlierThreshold
			if s.OutlierThreshold <= 0 {
				s.OutlierThreshold = 3.5
			}
			s.OutliersCount, s.OutliersMaxAbsZ = outliers(nums, s.OutlierThreshold)
		}
	case table.IsDateColumn(c):
		s.Kind = KindDatetime
	case long == 0 && (len(cats) <= 20 || len(cats)*2 <= s.NonNull):
		s.Kind = KindCategorical
		s.Unique = len(cats)
		s.TopValues = topValues(cats, 8)
	default:
		s.Kind = KindText
		s.Unique = len(cats)
		s.ExampleTexts = first
	}
	if s.Kind != KindNumeric {
		s.Min, s.Max = 0, 0
	}
	return s
}

func topValues(cats map[string]int, n int) []CategoryCount {
	tops := make([]CategoryCount, 0, len(cats))
	for k, v := range cats {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > n {
		tops = tops[:n]
	}
	return tops
}

func outliers(vals []float64, thr float64) (count int, maxAbsZ float64) {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			count++
		}
		maxAbsZ = math.Max(maxAbsZ, az)
	}
	return count, maxAbsZ
}

// groupSummaries returns the 20 largest groups of key with numeric metrics.
func groupSummaries(t *table.Table, key string, numeric []string) []GroupResult {
	keyCol, _ := t.Column(key)
	index := map[string]*GroupResult{}
	var order []string
	for i, kv := range keyCol.Values {
		if kv.IsNull() {
			continue
		}
		k := key + "=" + kv.String()
		g := index[k]
		if g == nil {
			g = &GroupResult{Key: k, Metrics: map[string]NumSummary{}}
			index[k] = g
			order = append(order, k)
		}
		g.Size++
		for _, name := range numeric {
			if name == key {
				continue
			}
			v := t.At(i, name)
			if !v.IsNum {
				continue
			}
			m, ok := g.Metrics[name]
			if !ok {
				m.Min, m.Max = v.Num, v.Num
			}
			m.Count++
			m.Sum += v.Num
			m.Min = math.Min(m.Min, v.Num)
			m.Max = math.Max(m.Max, v.Num)
			m.Mean = m.Sum / float64(m.Count)
			g.Metrics[name] = m
		}
	}
	out := make([]GroupResult, 0, len(order))
	for _, k := range order {
		out = append(out, *index[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

// correlations computes pairwise Pearson r over rows where both values exist.
func correlations(t *table.Table, numeric []string) *CorrMatrix {
	n := len(numeric)
	cols := make([]*table.Column, n)
	for i, name := range numeric {
		cols[i], _ = t.Column(name)
	}
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(cols[a].Values, cols[b].Values)
			mat[a][b], mat[b][a] = r, r
		}
	}
	return &CorrMatrix{Columns: numeric, Values: mat}
}

func pearson(xs, ys []table.Value) float64 {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := range xs {
		if i >= len(ys) || !xs[i].IsNum || !ys[i].IsNum {
			continue
		}
		x, y := xs[i].Num, ys[i].Num
		n++
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / denom
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// Summary renders the short upload summary: size, column listing and the
// first sample rows.
func (r *Report) Summary(maxColumns int) string {
	if maxColumns <= 0 {
		maxColumns = 20
	}
	var b strings.Builder
	fmt.Fprintf(&b, "행 수: %s\n", table.FormatNumber(float64(r.Rows)))
	fmt.Fprintf(&b, "열 수: %d\n", len(r.Cols))
	b.WriteString("\n컬럼 목록:\n")
	for i, c := range r.Cols {
		if i == maxColumns {
			fmt.Fprintf(&b, "  ... 외 %d개 컬럼\n", len(r.Cols)-maxColumns)
			break
		}
		fmt.Fprintf(&b, "  - %s (%s): %s개 값\n", c.Name, c.Kind, table.FormatNumber(float64(c.NonNull)))
	}
	if r.head != nil && r.head.Len() > 0 {
		fmt.Fprintf(&b, "\n샘플 데이터 (처음 %d행):\n", r.head.Len())
		b.WriteString(render.Markdown(r.head, 0))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Markdown renders the full report for prompts or the profile command.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[데이터 요약]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "파일: %s\n", r.Name)
	}
	if r.Encoding != "" {
		fmt.Fprintf(&b, "인코딩: %s\n", r.Encoding)
	}
	if r.Processed > 0 && r.Processed < r.Rows {
		fmt.Fprintf(&b, "행 수: %d (분석 %d)\n", r.Rows, r.Processed)
	} else {
		fmt.Fprintf(&b, "행 수: %d\n", r.Rows)
	}
	fmt.Fprintf(&b, "열 수: %d\n\n", len(r.Cols))

	b.WriteString("[스키마]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (값 %d, 결측 %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case KindNumeric:
			fmt.Fprintf(&b, ": 합계 %s, 최소 %.4g, 최대 %.4g, 평균 %.4g, 표준편차 %.4g",
				table.FormatNumber(c.Sum), c.Min, c.Max, c.Mean, c.Std)
			if c.OutlierThreshold > 0 {
				fmt.Fprintf(&b, "; 이상치 %d개 (|z|>%.1f", c.OutliersCount, c.OutlierThreshold)
				if c.OutliersMaxAbsZ > 0 {
					fmt.Fprintf(&b, ", 최대 |z|≈%.2f", c.OutliersMaxAbsZ)
				}
				b.WriteString(")")
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(": 상위 ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; 고유값 %d개", c.Unique)
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(": 예) ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[그룹별 요약]\n")
		for _, g := range r.Groups {
			fmt.Fprintf(&b, "- %s (n=%d)\n", g.Key, g.Size)
			keys := make([]string, 0, len(g.Metrics))
			for k := range g.Metrics {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > 6 {
				keys = keys[:6]
			}
			for _, k := range keys {
				m := g.Metrics[k]
				fmt.Fprintf(&b, "  • %s: 합계 %s, 평균 %.4g (최소 %.4g, 최대 %.4g)\n", k, table.FormatNumber(m.Sum), m.Mean, m.Min, m.Max)
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[상관관계]\n")
		for _, p := range r.Corr.TopPairs(10) {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
		}
	}
	if r.head != nil && r.head.Len() > 0 {
		b.WriteString("\n[샘플 데이터]\n")
		b.WriteString(render.Markdown(r.head, 0))
		b.WriteString("\n")
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[참고]\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return b.String()
}

// PairCorr is one correlation pair.
type PairCorr struct {
	A, B string
	R    float64
}

// TopPairs lists the n strongest pairs by |r|.
func (m *CorrMatrix) TopPairs(n int) []PairCorr {
	var pairs []PairCorr
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], R: m.Values[i][j]})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(이름 없음)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// GroupBy names the grouping field of an aggregation.
type GroupBy string

const (
	GroupNone    GroupBy = ""
	GroupCompany GroupBy = "거래처"
	GroupProduct GroupBy = "제품"
	GroupMonth   GroupBy = "월"
	GroupQuarter GroupBy = "분기"
)

// Sort is the requested ordering of an aggregation.
type Sort string

const (
	SortNone Sort = ""
	Asc      Sort = "asc"
	Desc     Sort = "desc"
)

// DefaultLimit applies when a ranking names no number.
const DefaultLimit = 5

// DateFilter restricts rows to a year and/or month. Zero fields are unset.
type DateFilter struct {
	Year  int
	Month int
}

// IsZero reports whether no date part is set.
func (d DateFilter) IsZero() bool { return d.Year == 0 && d.Month == 0 }

// AggregateSpec is what a question asks to compute. Fn is empty when the
// question names no function; sum is used then.
type AggregateSpec struct {
	Fn      table.Agg
	GroupBy GroupBy
	Sort    Sort
	Limit   int
	Date    DateFilter
}

var (
	rankRe  = regexp.MustCompile(`(top|bottom|상위|하위)\s*(\d+)`)
	topRe   = regexp.MustCompile(`\btop\b|상위`)
	lowRe   = regexp.MustCompile(`\bbottom\b|하위`)
	yearRe  = regexp.MustCompile(`(\d{4})년`)
	monthRe = regexp.MustCompile(`(\d{1,2})월`)
)

// ParseAggregate derives the aggregation spec from the question text alone.
func ParseAggregate(query string) AggregateSpec {
	var s AggregateSpec
	lower := strings.ToLower(query)

	if fn, ok := firstMatch(aggCues, query); ok {
		s.Fn = table.Agg(fn)
	}
	if g, ok := firstMatch(groupCues, query); ok {
		s.GroupBy = g
	}

	switch {
	case topRe.MatchString(lower):
		s.Sort = Desc
	case lowRe.MatchString(lower):
		s.Sort = Asc
	}
	if s.Sort != SortNone {
		s.Limit = DefaultLimit
		if m := rankRe.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
				s.Limit = n
			}
		}
		if s.GroupBy == GroupNone {
			if g, ok := firstMatch(entityCues, query); ok {
				s.GroupBy = g
			}
		}
	}

	s.Date = parseDateFilter(query)
	return s
}

func parseDateFilter(query string) DateFilter {
	var d DateFilter
	if m := yearRe.FindStringSubmatch(query); m != nil {
		d.Year, _ = strconv.Atoi(m[1])
	}
	if m := monthRe.FindStringSubmatch(query); m != nil {
		if mo, _ := strconv.Atoi(m[1]); mo >= 1 && mo <= 12 {
			d.Month = mo
		}
	}
	return d
}

// AggregateResult is the outcome of an aggregation. Table is nil when nothing
// could be computed.
type AggregateResult struct {
	Dataset       string
	Spec          AggregateSpec
	Table         *table.Table
	Conditions    []string
	SampleRows    []table.Record
	SQLEquivalent string

	answer string
}

// Mode implements Outcome.
func (r *AggregateResult) Mode() router.Mode { return router.Aggregate }

// Answer is the markdown summary shown to the user.
func (r *AggregateResult) Answer() string { return r.answer }

func (*AggregateResult) isOutcome() {}

const (
	noDataAnswer   = "데이터를 로드할 수 없습니다."
	noResultAnswer = "계산 결과가 없습니다. 필터 조건을 확인해주세요."
	countColumn    = "건수"
	maxTableRows   = 10
)

// Aggregate computes a summary over one dataset chosen from the question and
// filter.
func (e *Engine) Aggregate(query, filter string) *AggregateResult {
	spec := ParseAggregate(query)
	res := &AggregateResult{Spec: spec}

	candidates := datasets(filter, allMatches(aggregateDatasetCues, query))
	if len(candidates) == 0 {
		candidates = []string{codebook.DatasetSales}
	}
	name, t := e.pickAggregateTable(candidates, spec.GroupBy)
	res.Dataset = name
	if t == nil {
		res.answer = noDataAnswer
		return res
	}
	sql := sqlBuilder{from: name}

	if !spec.Date.IsZero() {
		if col, ok := t.First(e.schema.Date...); ok {
			before := t.Len()
			t = filterDate(t, col, spec.Date)
			res.Conditions = append(res.Conditions, dateConditions(spec.Date)...)
			sql.where = dateWhere(col, spec.Date)
			e.log.Debug("date filter applied",
				zap.String("dataset", name), zap.Int("before", before), zap.Int("after", t.Len()))
		}
	}

	fn := spec.Fn
	if fn == "" {
		fn = table.Sum
	}
	var out *table.Table
	key := ""
	if spec.GroupBy != GroupNone {
		out, key = e.groupAggregate(t, spec.GroupBy, fn, &sql)
	} else {
		out = simpleAggregate(t, fn, &sql)
	}

	if out != nil && spec.Sort != SortNone {
		if col := firstNumeric(out, key); col != "" {
			out = out.SortBy(col, spec.Sort == Desc).Head(spec.Limit)
			label := "상위"
			if spec.Sort == Asc {
				label = "하위"
			}
			res.Conditions = append(res.Conditions, fmt.Sprintf("%s %d개", label, spec.Limit))
			sql.order = fmt.Sprintf("%s %s", col, strings.ToUpper(string(spec.Sort)))
			sql.limit = spec.Limit
		}
	}

	out = e.translate(out, name)
	res.Table = out
	res.SQLEquivalent = sql.String()
	if out != nil {
		res.SampleRows = out.Records(5)
	}
	res.answer = aggregateAnswer(out, res.Conditions)
	return res
}

// pickAggregateTable prefers the loaded candidate that can resolve the group
// field, then one with numeric columns. Ties keep candidate order.
func (e *Engine) pickAggregateTable(candidates []string, g GroupBy) (string, *table.Table) {
	bestName, bestScore := "", -1
	var best *table.Table
	for _, name := range candidates {
		t, ok := e.src.Dataset(name)
		if !ok {
			continue
		}
		score := 0
		if g != GroupNone {
			if _, ok := t.First(e.groupCandidates(g)...); ok {
				score += 2
			}
		}
		if len(t.NumericColumns()) > 0 {
			score++
		}
		if score > bestScore {
			bestName, bestScore, best = name, score, t
		}
	}
	if best == nil && len(candidates) > 0 {
		return candidates[0], nil
	}
	return bestName, best
}

func (e *Engine) groupCandidates(g GroupBy) []string {
	switch g {
	case GroupCompany:
		return e.schema.Company
	case GroupProduct:
		return e.schema.Product
	case GroupMonth, GroupQuarter:
		return e.schema.Date
	}
	return nil
}

// groupAggregate returns the grouped table and its key column name, or nil
// when the group field is not in the table.
func (e *Engine) groupAggregate(t *table.Table, g GroupBy, fn table.Agg, sql *sqlBuilder) (*table.Table, string) {
	key, ok := t.First(e.groupCandidates(g)...)
	if !ok {
		return nil, ""
	}
	if g == GroupMonth || g == GroupQuarter {
		period := table.Monthly
		if g == GroupQuarter {
			period = table.Quarterly
		}
		col, _ := t.DerivePeriod(key, string(g), period)
		t = t.WithColumn(col)
		key = string(g)
	}
	sql.group = key

	var nums []string
	for _, c := range t.NumericColumns() {
		if c != key {
			nums = append(nums, c)
		}
	}
	if len(nums) == 0 || fn == table.Count {
		out, _ := t.GroupSize(key, countColumn)
		sql.sel = key + ", COUNT(*)"
		return out, key
	}
	out, _ := t.GroupAggregate(key, nums, fn)
	sql.sel = key + ", " + aggSelect(fn, nums)
	return out, key
}

func simpleAggregate(t *table.Table, fn table.Agg, sql *sqlBuilder) *table.Table {
	nums := t.NumericColumns()
	if len(nums) == 0 {
		sql.sel = "COUNT(*)"
		return table.FromColumns(t.Name, []*table.Column{{
			Name: countColumn, Numeric: true, Values: []table.Value{table.Number(float64(t.Len()))},
		}})
	}
	if len(nums) > 5 {
		nums = nums[:5]
	}
	sql.sel = aggSelect(fn, nums)
	return t.Aggregate(nums, fn)
}

func firstNumeric(t *table.Table, skip string) string {
	for _, c := range t.NumericColumns() {
		if c != skip {
			return c
		}
	}
	return ""
}

// filterDate keeps rows whose date falls in d. Cells that do not parse as
// dates fall back to a text match on "YYYY" and "-MM".
func filterDate(t *table.Table, col string, d DateFilter) *table.Table {
	return t.Filter(func(i int) bool {
		v := t.At(i, col)
		if v.IsNull() {
			return false
		}
		s := v.String()
		if dt, ok := table.ParseDate(s); ok {
			return (d.Year == 0 || dt.Year() == d.Year) && (d.Month == 0 || int(dt.Month()) == d.Month)
		}
		if d.Year != 0 && !strings.Contains(s, strconv.Itoa(d.Year)) {
			return false
		}
		if d.Month != 0 && !strings.Contains(s, fmt.Sprintf("-%02d", d.Month)) {
			return false
		}
		return true
	})
}

func dateConditions(d DateFilter) []string {
	var out []string
	if d.Year != 0 {
		out = append(out, fmt.Sprintf("%d년 데이터", d.Year))
	}
	if d.Month != 0 {
		out = append(out, fmt.Sprintf("%d월 데이터", d.Month))
	}
	return out
}

func aggregateAnswer(out *table.Table, conditions []string) string {
	if out == nil || out.Len() == 0 {
		return noResultAnswer
	}
	var b strings.Builder
	if len(conditions) > 0 {
		fmt.Fprintf(&b, "**적용된 조건**: %s\n\n", strings.Join(conditions, ", "))
	}
	if out.Len() == 1 && out.Width() <= 3 {
		b.WriteString("**계산 결과**:")
		for _, c := range out.Columns() {
			fmt.Fprintf(&b, "\n- %s: %s", c, out.At(0, c).Display())
		}
		return b.String()
	}
	fmt.Fprintf(&b, "**결과**: 총 %d개 항목\n\n", out.Len())
	b.WriteString(render.Markdown(out, maxTableRows))
	if out.Len() > maxTableRows {
		fmt.Fprintf(&b, "\n\n*(상위 %d개만 표시, 전체 %d개)*", maxTableRows, out.Len())
	}
	return b.String()
}

// sqlBuilder records the pipeline as an equivalent SQL statement for display.
type sqlBuilder struct {
	sel, from, where, group, order string
	limit                          int
}

func (s sqlBuilder) String() string {
	sel := s.sel
	if sel == "" {
		sel = "*"
	}
	q := fmt.Sprintf("SELECT %s FROM %s", sel, s.from)
	if s.where != "" {
		q += " WHERE " + s.where
	}
	if s.group != "" {
		q += " GROUP BY " + s.group
	}
	if s.order != "" {
		q += " ORDER BY " + s.order
	}
	if s.limit > 0 {
		q += " LIMIT " + strconv.Itoa(s.limit)
	}
	return q
}

func aggSelect(fn table.Agg, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s(%s)", strings.ToUpper(string(fn)), c)
	}
	return strings.Join(parts, ", ")
}

func dateWhere(col string, d DateFilter) string {
	var parts []string
	if d.Year != 0 {
		parts = append(parts, fmt.Sprintf("YEAR(%s) = %d", col, d.Year))
	}
	if d.Month != 0 {
		parts = append(parts, fmt.Sprintf("MONTH(%s) = %d", col, d.Month))
	}
	return strings.Join(parts, " AND ")
}

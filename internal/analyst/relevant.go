package analyst

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/liszzmword/ai-data-analyst/internal/join"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

var printer = message.NewPrinter(language.English)

var keywordStops = map[string]bool{
	"을": true, "를": true, "이": true, "가": true, "은": true, "는": true, "의": true, "에": true,
	"에서": true, "으로": true, "부터": true, "까지": true, "해": true, "해주": true, "해줘": true,
	"알려": true, "알려줘": true, "보여": true, "보여줘": true, "분석": true, "설명": true,
}

var (
	topCues       = []string{"상위", "top", "많이", "높은", "순위"}
	aggCues       = []string{"합계", "총", "평균", "총합"}
	listCues      = []string{"전체", "모든", "리스트", "목록"}
	companyCues   = []string{"회사", "거래처", "업체"}
	companyCols   = []string{join.Key, "거래처명"}
	productCols   = []string{"품목명", "제품명", "거래 제품명"}
	dateCols      = []string{"매출일", "거래일", "일자"}
	meaninglessRe = regexp.MustCompile(`번호|코드|id|index`)
	topNRe        = regexp.MustCompile(`(?i)(?:상위|하위|top|bottom)\s*(\d+)|(\d+)\s*(?:개|위|곳)`)
)

var (
	rule50 = strings.Repeat("-", 50)
	rule70 = strings.Repeat("-", 70)
)

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// relevantData extracts the part of t that answers query: a company profile
// when the question names a company in the table, otherwise rankings,
// aggregates or a company listing depending on the cue words, and finally
// the columns the question mentions or a plain sample.
func relevantData(query string, t *table.Table) string {
	lower := strings.ToLower(query)

	if company := companyIn(query, t); company != "" {
		if detail := analyzeCompany(company, t); detail != "" {
			return "=== 특정 거래처 분석 ===\n" + detail
		}
	}

	var parts []string
	switch {
	case containsAny(lower, topCues):
		if s := topN(query, t); s != "" {
			parts = append(parts, "=== 계산된 결과 (집계) ===", s)
		}
	case containsAny(query, aggCues):
		if s := aggregates(t); s != "" {
			parts = append(parts, "=== 계산된 결과 (집계) ===", s)
		}
	case containsAny(query, listCues) && containsAny(query, companyCues):
		if col, ok := t.First(companyCols...); ok {
			names := t.Unique(col)
			parts = append(parts, fmt.Sprintf("\n전체 거래처 목록 (%d개):", len(names)))
			if len(names) > 100 {
				names = names[:100]
			}
			parts = append(parts, strings.Join(names, ", "))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}

	if cols := matchingColumns(query, t); len(cols) > 0 {
		return fmt.Sprintf("관련 컬럼: %s\n%s", strings.Join(cols, ", "), render.Markdown(t.Select(cols...).Head(20), 0))
	}
	return "데이터 샘플 (처음 20행):\n" + render.Markdown(t.Head(20), 0)
}

// companyIn returns the first company of t, in table order, whose name
// occurs in the query. Single-character names are ignored.
func companyIn(query string, t *table.Table) string {
	col, ok := t.First(companyCols...)
	if !ok {
		return ""
	}
	for _, name := range t.Unique(col) {
		if utf8.RuneCountInString(name) > 1 && strings.Contains(query, name) {
			return name
		}
	}
	return ""
}

func meaningfulNumeric(t *table.Table) []string {
	var out []string
	for _, c := range t.NumericColumns() {
		if !meaninglessRe.MatchString(strings.ToLower(c)) {
			out = append(out, c)
		}
	}
	return out
}

func statsLine(name string, s table.Stats) string {
	return fmt.Sprintf("%s | %s | %s | %s | %s", name,
		table.FormatNumber(s.Sum), printer.Sprintf("%.1f", s.Mean), table.FormatNumber(s.Max), table.FormatNumber(s.Min))
}

func analyzeCompany(company string, t *table.Table) string {
	col, _ := t.First(companyCols...)
	rows := t.Filter(func(i int) bool {
		v := t.At(i, col)
		return !v.IsNull() && v.String() == company
	})
	if rows.Len() == 0 {
		return fmt.Sprintf("'%s' 거래처의 데이터를 찾을 수 없습니다.", company)
	}

	out := []string{
		fmt.Sprintf("\n[%s 거래처 상세 분석]", company),
		fmt.Sprintf("총 거래 건수: %s건\n", table.FormatNumber(float64(rows.Len()))),
	}
	if cols := meaningfulNumeric(rows); len(cols) > 0 {
		out = append(out, "**주요 수치 집계**:", "항목 | 합계 | 평균 | 최대 | 최소", rule70)
		for i, c := range cols {
			if i == 10 {
				break
			}
			out = append(out, statsLine(c, rows.Describe(c)))
		}
	}

	const amount = "합계"
	if dateCol, ok := rows.First(dateCols...); ok && rows.Has(amount) {
		if years, ok := rows.DerivePeriod(dateCol, "연도", table.Yearly); ok {
			byYear := rows.WithColumn(years)
			sums, _ := byYear.GroupAggregate("연도", []string{amount}, table.Sum)
			counts, _ := byYear.GroupAggregate("연도", []string{amount}, table.Count)
			if sums != nil && sums.Len() > 0 {
				out = append(out, "\n**연도별 매출 추이**:", "연도 | 매출 합계 | 거래 건수", rule50)
				for i := 0; i < sums.Len(); i++ {
					out = append(out, fmt.Sprintf("%s년 | %s | %s건",
						sums.At(i, "연도").String(),
						table.FormatNumber(sums.At(i, amount).Num),
						table.FormatNumber(counts.At(i, amount).Num)))
				}
			}
		}
	}

	if productCol, ok := rows.First(productCols...); ok && rows.Has(amount) {
		if sales, ok := rows.GroupAggregate(productCol, []string{amount}, table.Sum); ok && sales.Len() > 0 {
			sales = sales.SortBy(amount, true).Head(10)
			out = append(out, "\n**주요 거래 제품 (상위 10개)**:", "제품명 | 매출 합계", rule50)
			for i := 0; i < sales.Len(); i++ {
				out = append(out, fmt.Sprintf("%s | %s", sales.At(i, productCol).String(), table.FormatNumber(sales.At(i, amount).Num)))
			}
		}
	}

	out = append(out, "\n**최근 거래 내역 (10건)**:", render.Markdown(rows.Tail(10), 0))
	return strings.Join(out, "\n")
}

// requestedN reads an explicit count such as "상위 5", "top 10" or "5개".
func requestedN(query string) int {
	if m := topNRe.FindStringSubmatch(query); m != nil {
		for _, g := range m[1:] {
			if n, err := strconv.Atoi(g); err == nil && n > 0 {
				return n
			}
		}
	}
	for _, w := range strings.Fields(query) {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func amountColumns(t *table.Table, cues []string) []string {
	var out []string
	for _, c := range t.NumericColumns() {
		if containsAny(c, cues) && !strings.Contains(c, "번호") && !strings.Contains(c, "코드") {
			out = append(out, c)
		}
	}
	return out
}

// ranking groups t by key, sums amount and lists the groups in descending
// order: the first n when n > 0, otherwise up to limit.
func ranking(t *table.Table, key, amount, label, unit string, n, limit int) []string {
	grouped, ok := t.GroupAggregate(key, []string{amount}, table.Sum)
	if !ok || grouped.Len() == 0 {
		return nil
	}
	grouped = grouped.SortBy(amount, true)
	total := grouped.Len()
	var header string
	switch {
	case n > 0:
		grouped = grouped.Head(n)
		header = fmt.Sprintf("\n[%s별 %s 상위 %d개]", label, amount, n)
	case total > limit:
		grouped = grouped.Head(limit)
		header = fmt.Sprintf("\n[%s별 %s 상위 %d개 (총 %d개)]", label, amount, limit, total)
	default:
		header = fmt.Sprintf("\n[%s별 %s 전체 (%d개)]", label, amount, total)
	}
	out := []string{header, fmt.Sprintf("순위 | %s | 금액", unit), rule50}
	for i := 0; i < grouped.Len(); i++ {
		out = append(out, fmt.Sprintf("%d위 | %s | %s", i+1, grouped.At(i, key).String(), table.FormatNumber(grouped.At(i, amount).Num)))
	}
	return out
}

func topN(query string, t *table.Table) string {
	n := requestedN(query)
	var out []string
	if t.Has(join.Key) {
		if cols := amountColumns(t, []string{"합계", "금액", "공급가액", "부가세"}); len(cols) > 0 {
			out = append(out, ranking(t, join.Key, cols[0], "거래처", "거래처", n, 50)...)
		}
	}
	if productCol, ok := t.First(productCols...); ok {
		if cols := amountColumns(t, []string{"합계", "금액", "수량"}); len(cols) > 0 {
			out = append(out, ranking(t, productCol, cols[0], productCol, "제품", n, 30)...)
		}
	}
	return strings.Join(out, "\n")
}

func aggregates(t *table.Table) string {
	cols := meaningfulNumeric(t)
	if len(cols) == 0 {
		return ""
	}
	out := []string{"[전체 데이터 집계]", "컬럼 | 합계 | 평균 | 최대 | 최소", rule70}
	for i, c := range cols {
		if i == 10 {
			break
		}
		out = append(out, statsLine(c, t.Describe(c)))
	}

	if t.Has(join.Key) {
		out = append(out, "\n[거래처별 집계 (상위 10개)]")
		for i, c := range cols {
			if i == 2 {
				break
			}
			sums, ok := t.GroupAggregate(join.Key, []string{c}, table.Sum)
			if !ok {
				continue
			}
			means, _ := t.GroupAggregate(join.Key, []string{c}, table.Mean)
			counts, _ := t.GroupAggregate(join.Key, []string{c}, table.Count)
			stats := sums.WithColumn(renamed(means, c, "평균")).WithColumn(renamed(counts, c, "건수"))
			stats = stats.SortBy(c, true).Head(10)
			out = append(out, fmt.Sprintf("\n%s:", c), "거래처 | 합계 | 평균 | 건수", rule70)
			for r := 0; r < stats.Len(); r++ {
				out = append(out, fmt.Sprintf("%s | %s | %s | %d",
					stats.At(r, join.Key).String(),
					table.FormatNumber(stats.At(r, c).Num),
					printer.Sprintf("%.1f", stats.At(r, "평균").Num),
					int(stats.At(r, "건수").Num)))
			}
		}
	}
	return strings.Join(out, "\n")
}

// renamed copies column name of t under a new name.
func renamed(t *table.Table, name, as string) *table.Column {
	c, _ := t.Column(name)
	return &table.Column{Name: as, Numeric: c.Numeric, Values: c.Values}
}

// questionKeywords splits the question into lower-cased content words.
func questionKeywords(query string) []string {
	query = strings.NewReplacer("?", "", ",", "").Replace(query)
	var out []string
	for _, w := range strings.Fields(query) {
		if keywordStops[w] || utf8.RuneCountInString(w) < 2 {
			continue
		}
		out = append(out, strings.ToLower(w))
	}
	return out
}

func matchingColumns(query string, t *table.Table) []string {
	kws := questionKeywords(query)
	var out []string
	for _, c := range t.Columns() {
		if containsAny(strings.ToLower(c), kws) {
			out = append(out, c)
		}
	}
	return out
}

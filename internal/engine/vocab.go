package engine

import (
	"regexp"
	"strings"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
)

// cue maps query words to a value. Korean words match as substrings; Latin
// words match case-insensitively on word boundaries.
type cue[T any] struct {
	words []string
	value T
}

func (c cue[T]) matches(q, lower string) bool {
	for _, w := range c.words {
		if isLatin(w) {
			if wordRe(w).MatchString(lower) {
				return true
			}
			continue
		}
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func isLatin(w string) bool {
	for _, r := range w {
		if r > 0x7f {
			return false
		}
	}
	return true
}

var wordRes = map[string]*regexp.Regexp{}

// wordRe compiles a boundary pattern for a Latin cue. Cue tables are fixed at
// init, so every pattern is compiled before first use.
func wordRe(w string) *regexp.Regexp {
	if re, ok := wordRes[w]; ok {
		return re
	}
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(w)) + `\b`)
}

func precompile[T any](cues ...[]cue[T]) {
	for _, list := range cues {
		for _, c := range list {
			for _, w := range c.words {
				if isLatin(w) {
					wordRes[w] = regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(w)) + `\b`)
				}
			}
		}
	}
}

// firstMatch returns the value of the first matching cue.
func firstMatch[T any](cues []cue[T], q string) (T, bool) {
	lower := strings.ToLower(q)
	for _, c := range cues {
		if c.matches(q, lower) {
			return c.value, true
		}
	}
	var zero T
	return zero, false
}

// allMatches returns the values of every matching cue in table order.
func allMatches[T any](cues []cue[T], q string) []T {
	lower := strings.ToLower(q)
	var out []T
	for _, c := range cues {
		if c.matches(q, lower) {
			out = append(out, c.value)
		}
	}
	return out
}

var aggregateDatasetCues = []cue[string]{
	{[]string{"거래처", "고객", "업체", "상호", "client", "customer", "company", "companies"}, codebook.DatasetClients},
	{[]string{"매출", "판매", "주문", "제품", "단가", "금액", "sales", "order", "orders", "product", "products", "amount", "revenue"}, codebook.DatasetSales},
	{[]string{"영업일지", "일지", "방문", "메모", "활동", "visit", "visits", "journal", "memo", "activity"}, codebook.DatasetJournal},
}

var lookupDatasetCues = []cue[string]{
	{[]string{"거래처", "고객", "업체", "상호", "사업자", "client", "customer", "company"}, codebook.DatasetClients},
	{[]string{"매출", "판매", "주문", "제품", "거래", "내역", "sales", "order", "product", "transaction"}, codebook.DatasetSales},
	{[]string{"영업일지", "일지", "방문", "메모", "활동", "visit", "journal", "memo", "activity"}, codebook.DatasetJournal},
}

var aggCues = []cue[string]{
	{[]string{"합계", "총", "전체", "sum", "total"}, "sum"},
	{[]string{"평균", "average", "mean", "avg"}, "mean"},
	{[]string{"개수", "건수", "몇", "카운트", "count", "how many"}, "count"},
	{[]string{"최대", "최댓값", "최고", "max", "maximum", "highest"}, "max"},
	{[]string{"최소", "최솟값", "최저", "min", "minimum", "lowest"}, "min"},
}

var groupCues = []cue[GroupBy]{
	{[]string{"거래처별", "고객별", "업체별", "by company", "per company", "by client", "per client", "by customer"}, GroupCompany},
	{[]string{"제품별", "품목별", "by product", "per product"}, GroupProduct},
	{[]string{"월별", "monthly", "by month", "per month"}, GroupMonth},
	{[]string{"분기별", "quarterly", "by quarter", "per quarter"}, GroupQuarter},
}

// entityCues imply a group-by when a ranking is asked for without one.
var entityCues = []cue[GroupBy]{
	{[]string{"거래처", "고객", "업체", "company", "companies", "client", "clients", "customer", "customers"}, GroupCompany},
	{[]string{"제품", "품목", "product", "products", "item", "items"}, GroupProduct},
}

var recentCues = []cue[bool]{{[]string{"최근", "recent", "recently", "latest"}, true}}

var pastCues = []cue[bool]{{[]string{"지난", "last"}, true}}

func init() {
	precompile(aggregateDatasetCues, lookupDatasetCues, aggCues)
	precompile(groupCues, entityCues)
	precompile(recentCues, pastCues)
}

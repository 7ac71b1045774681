package engine

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/mask"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

const (
	maxLookupRows   = 10
	maxDetailed     = 5
	maxRecordFields = 10
	notFoundAnswer  = "검색 조건에 맞는 레코드를 찾을 수 없습니다."
)

var (
	koreanNameRe = regexp.MustCompile(`[가-힣]{2,}(?:상사|케미칼|이엠|기공|신문|코리아|산업|전자)?`)
	codeTokenRe  = regexp.MustCompile(`[A-Z0-9]{3,}`)
)

// lookupStopwords are Korean words that never name a record: question words,
// dataset cue words and generic nouns.
var lookupStopwords = map[string]bool{
	"무엇": true, "어디": true, "언제": true, "누구": true, "어떻게": true,
	"합계": true, "평균": true, "알려": true, "보여": true, "최근": true, "방문": true,
	"지난": true, "올해": true, "작년": true,
	"알려주세요": true, "보여주세요": true, "정보": true, "데이터": true, "내역": true,
	"거래처": true, "매출": true, "영업일지": true, "일지": true, "기록": true,
}

func init() {
	for _, c := range lookupDatasetCues {
		for _, w := range c.words {
			if !isLatin(w) {
				lookupStopwords[w] = true
			}
		}
	}
}

var particles = []string{"에서", "으로", "의", "을", "를", "은", "는", "이", "가", "에", "와", "과", "로", "도"}

// LookupConditions are the search terms pulled from a question.
type LookupConditions struct {
	Name   string
	Code   string
	Date   DateFilter
	Recent bool
	Past   bool
}

// IsZero reports whether no condition was found.
func (c LookupConditions) IsZero() bool {
	return c.Name == "" && c.Code == "" && c.Date.IsZero() && !c.Recent && !c.Past
}

// String renders the conditions for display, e.g. "이름: X, 2024년 01월, 최근 데이터".
func (c LookupConditions) String() string {
	var parts []string
	if c.Name != "" {
		parts = append(parts, "이름: "+c.Name)
	}
	if c.Code != "" {
		parts = append(parts, "코드: "+c.Code)
	}
	switch {
	case c.Date.Year != 0 && c.Date.Month != 0:
		parts = append(parts, fmt.Sprintf("%d년 %02d월", c.Date.Year, c.Date.Month))
	case c.Date.Year != 0:
		parts = append(parts, fmt.Sprintf("%d년", c.Date.Year))
	case c.Date.Month != 0:
		parts = append(parts, fmt.Sprintf("%02d월", c.Date.Month))
	}
	if c.Recent {
		parts = append(parts, "최근 데이터")
	}
	if len(parts) == 0 {
		return "(없음)"
	}
	return strings.Join(parts, ", ")
}

// ParseLookup extracts a name, code, date and recency from the question. Latin
// names come from the classifier's proper-noun detection.
func ParseLookup(query string, names *router.Classifier) LookupConditions {
	var c LookupConditions
	for _, m := range koreanNameRe.FindAllString(query, -1) {
		m = trimParticle(m)
		if !lookupStopwords[m] {
			c.Name = m
			break
		}
	}
	if c.Name == "" && names != nil {
		c.Name = names.LatinName(query)
	}

	c.Date = parseDateFilter(query)
	if _, ok := firstMatch(recentCues, query); ok {
		c.Recent = true
	} else if _, ok := firstMatch(pastCues, query); ok {
		c.Past = true
	}

	for _, loc := range codeTokenRe.FindAllStringIndex(query, -1) {
		rest := query[loc[1]:]
		if strings.HasPrefix(rest, "년") || strings.HasPrefix(rest, "월") || strings.HasPrefix(rest, "일") {
			continue
		}
		c.Code = query[loc[0]:loc[1]]
		break
	}
	return c
}

func trimParticle(w string) string {
	for _, p := range particles {
		if strings.HasSuffix(w, p) {
			rest := strings.TrimSuffix(w, p)
			if utf8.RuneCountInString(rest) >= 2 {
				return rest
			}
		}
	}
	return w
}

// Field is one displayed, already masked, cell of a matched record.
type Field struct {
	Name  string
	Value string
}

// Match is a record found by a lookup.
type Match struct {
	Dataset string
	RowID   int
	Fields  []Field
}

// LookupResult is the outcome of a record lookup.
type LookupResult struct {
	Datasets   []string
	Conditions LookupConditions
	Records    []Match

	answer string
}

// Mode implements Outcome.
func (r *LookupResult) Mode() router.Mode { return router.Lookup }

// Answer is the markdown listing shown to the user.
func (r *LookupResult) Answer() string { return r.answer }

func (*LookupResult) isOutcome() {}

// Lookup finds records matching the names, codes and dates in the question.
// A condition whose column is missing from a dataset is skipped for it.
func (e *Engine) Lookup(query, filter string) *LookupResult {
	targets := datasets(filter, allMatches(lookupDatasetCues, query))
	if len(targets) == 0 {
		targets = append([]string(nil), codebook.Datasets...)
	}
	res := &LookupResult{Datasets: targets, Conditions: ParseLookup(query, e.names)}
	for _, name := range targets {
		t, ok := e.src.Dataset(name)
		if !ok {
			continue
		}
		found := e.search(t, res.Conditions)
		e.log.Debug("lookup", zap.String("dataset", name), zap.Int("rows", t.Len()), zap.Int("matched", found.Len()))
		found = e.translate(found, name)
		for _, rec := range found.Records(0) {
			res.Records = append(res.Records, toMatch(name, rec))
		}
	}
	res.answer = lookupAnswer(res.Records, res.Conditions)
	return res
}

func (e *Engine) search(t *table.Table, c LookupConditions) *table.Table {
	if c.Name != "" {
		var cols []string
		for _, group := range [][]string{e.schema.Company, e.schema.Product} {
			if col, ok := t.First(group...); ok {
				cols = append(cols, col)
			}
		}
		if len(cols) > 0 {
			needle := strings.ToLower(c.Name)
			t = t.Filter(func(i int) bool {
				for _, col := range cols {
					if strings.Contains(strings.ToLower(t.At(i, col).String()), needle) {
						return true
					}
				}
				return false
			})
		}
	}
	if c.Code != "" {
		if col, ok := t.First(e.schema.Code...); ok {
			t = t.Filter(func(i int) bool { return strings.Contains(t.At(i, col).String(), c.Code) })
		}
	}
	dateCol, hasDate := t.First(e.schema.Date...)
	if hasDate && !c.Date.IsZero() {
		t = filterDate(t, dateCol, c.Date)
	}
	if hasDate && c.Recent {
		t = sortByDate(t, dateCol)
	}
	return t.Head(maxLookupRows)
}

// sortByDate orders rows newest first. Unparseable dates go last.
func sortByDate(t *table.Table, col string) *table.Table {
	const key = "\x00date"
	c, _ := t.Column(col)
	days := &table.Column{Name: key, Numeric: true, Values: make([]table.Value, len(c.Values))}
	for i, v := range c.Values {
		if d, ok := table.ParseDate(v.String()); ok {
			days.Values[i] = table.Number(float64(d.Unix() / 86400))
		}
	}
	sorted := t.WithColumn(days).SortBy(key, true)
	return sorted.Select(t.Columns()...)
}

func toMatch(dataset string, rec table.Record) Match {
	m := Match{Dataset: dataset, RowID: rec.RowID}
	for _, f := range rec.Fields {
		if f.Value.IsNull() {
			continue
		}
		m.Fields = append(m.Fields, Field{Name: f.Name, Value: mask.Field(f.Name, f.Value.Display())})
	}
	return m
}

func lookupAnswer(records []Match, c LookupConditions) string {
	if len(records) == 0 {
		return notFoundAnswer + "\n검색 조건: " + c.String()
	}
	var b strings.Builder
	if !c.IsZero() && c.String() != "(없음)" {
		fmt.Fprintf(&b, "**검색 조건**: %s\n\n", c)
	}
	fmt.Fprintf(&b, "**검색 결과**: 총 %d개 레코드\n", len(records))
	for i, r := range records {
		if i >= maxDetailed {
			break
		}
		fmt.Fprintf(&b, "\n### [%d] %s (행 %d)\n", i+1, r.Dataset, r.RowID)
		for j, f := range r.Fields {
			if j >= maxRecordFields {
				break
			}
			fmt.Fprintf(&b, "- **%s**: %s\n", f.Name, f.Value)
		}
	}
	if len(records) > maxDetailed {
		fmt.Fprintf(&b, "\n*(상위 %d개만 상세 표시, 전체 %d개)*", maxDetailed, len(records))
	}
	return strings.TrimRight(b.String(), "\n")
}

package table

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// numericHints mark column headers whose text cells should become numbers.
var numericHints = []string{"합계", "금액", "가액", "세", "단가", "수량", "마진", "율", "%", "개", "건", "일", "월", "년", "점수"}

var nullTokens = map[string]bool{"": true, "nan": true, "NaN": true, "None": true, "-": true, " ": true}

var numberCleaner = strings.NewReplacer(",", "", " ", "", "%", "")

// NormalizeNumeric converts text columns whose header carries a numeric hint
// into numeric columns. Null tokens become null and thousands separators,
// spaces and percent signs are stripped. A column is converted only when at
// least half of its non-null cells parse, so date and free-text columns that
// happen to match a hint are left alone. Cells that still fail become null.
func NormalizeNumeric(t *Table) *Table {
	changed := false
	cols := make([]*Column, len(t.cols))
	for j, c := range t.cols {
		cols[j] = c
		if c.Numeric || !hasNumericHint(c.Name) || LooksLikeDates(c) {
			continue
		}
		vals := make([]Value, len(c.Values))
		var nonNull, parsed int
		for i, v := range c.Values {
			raw := v.Str
			if nullTokens[raw] || nullTokens[strings.TrimSpace(raw)] {
				continue
			}
			nonNull++
			if f, ok := parseFloat(numberCleaner.Replace(raw)); ok {
				vals[i] = Number(f)
				parsed++
			}
		}
		if nonNull == 0 || parsed*2 < nonNull {
			continue
		}
		cols[j] = &Column{Name: c.Name, Numeric: true, Values: vals}
		changed = true
	}
	if !changed {
		return t
	}
	out := FromColumns(t.Name, cols)
	out.Encoding = t.Encoding
	out.rowIDs = append([]int(nil), t.rowIDs...)
	return out
}

func hasNumericHint(name string) bool {
	for _, h := range numericHints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

var (
	dateValueRe  = regexp.MustCompile(`^\s*(\d{4})[-./](\d{1,2})[-./](\d{1,2})`)
	dateNameHint = []string{"date", "날짜", "일자", "j-1", "a-2", "a-3"}
)

// IsDateColumn reports whether a column holds dates, judged by its header or
// by the first few non-null values.
func IsDateColumn(c *Column) bool {
	lower := strings.ToLower(c.Name)
	for _, h := range dateNameHint {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return LooksLikeDates(c)
}

// LooksLikeDates checks whether any of the first five non-null values has a
// YYYY-MM-DD shape (with '-', '.' or '/').
func LooksLikeDates(c *Column) bool {
	if c.Numeric {
		return false
	}
	seen := 0
	for _, v := range c.Values {
		if v.IsNull() {
			continue
		}
		if dateValueRe.MatchString(v.Str) {
			return true
		}
		seen++
		if seen >= 5 {
			break
		}
	}
	return false
}

// DateColumns lists the names of date-like columns.
func (t *Table) DateColumns() []string {
	var out []string
	for _, c := range t.cols {
		if IsDateColumn(c) {
			out = append(out, c.Name)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "01-02-06", "1/2/2006", "20060102",
}

// ParseDate reads a date cell. The leading YYYY-MM-DD shape is tried first,
// then a few common layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := dateValueRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC), true
		}
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Period derives a grouping label from a date column.
type Period int

const (
	Monthly Period = iota
	Quarterly
	Yearly
)

// DerivePeriod returns a text column labelling each row's period of the
// source date column: "2024-01", "2024Q1" or "2024". Unparseable dates are null.
func (t *Table) DerivePeriod(src, as string, p Period) (*Column, bool) {
	c, ok := t.Column(src)
	if !ok {
		return nil, false
	}
	out := &Column{Name: as, Values: make([]Value, len(c.Values))}
	for i, v := range c.Values {
		if v.IsNull() {
			continue
		}
		d, ok := ParseDate(v.String())
		if !ok {
			continue
		}
		switch p {
		case Quarterly:
			out.Values[i] = Text(fmt.Sprintf("%dQ%d", d.Year(), (int(d.Month())-1)/3+1))
		case Yearly:
			out.Values[i] = Text(strconv.Itoa(d.Year()))
		default:
			out.Values[i] = Text(d.Format("2006-01"))
		}
	}
	return out, true
}

var printer = message.NewPrinter(language.English)

// FormatNumber renders a number with thousands separators and no decimals.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	r := math.RoundToEven(f)
	if math.Abs(r) >= 1e18 {
		return strconv.FormatFloat(r, 'f', 0, 64)
	}
	return printer.Sprintf("%d", int64(r))
}

// Display renders a cell for humans: numbers with separators, text as is.
func (v Value) Display() string {
	if v.IsNum {
		return FormatNumber(v.Num)
	}
	return v.Str
}

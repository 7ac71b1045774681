// Package mask hides personal identifiers before data leaves the process.
package mask

import (
	"regexp"
	"strings"
)

var (
	bizRegRe     = regexp.MustCompile(`\d{3}-\d{2}-\d{5}`)
	nationalIDRe = regexp.MustCompile(`\d{6}-\d{7}`)
	phoneRe      = regexp.MustCompile(`\d{2,3}-\d{3,4}-\d{4}`)
)

// sensitiveHints mark column names whose values are always masked.
var sensitiveHints = []string{"사업자", "주민", "등록번호", "전화", "핸드폰", "이메일"}

// Text masks business registration numbers (214-86-59900 -> 214-**-***00),
// national ID numbers (123456-1234567 -> 123456-*******) and phone numbers
// (010-1234-5678 -> 010-****-5678). Masked output no longer matches any
// pattern, so Text is idempotent.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = bizRegRe.ReplaceAllStringFunc(s, func(m string) string {
		p := strings.Split(m, "-")
		return p[0] + "-**-***" + p[2][len(p[2])-2:]
	})
	s = nationalIDRe.ReplaceAllStringFunc(s, func(m string) string {
		p := strings.Split(m, "-")
		return p[0] + "-*******"
	})
	s = phoneRe.ReplaceAllStringFunc(s, func(m string) string {
		p := strings.Split(m, "-")
		return p[0] + "-" + strings.Repeat("*", len(p[1])) + "-" + p[2]
	})
	return s
}

// SensitiveColumn reports whether a column name suggests personal data.
func SensitiveColumn(name string) bool {
	for _, h := range sensitiveHints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

// Field masks a value when its column is sensitive.
func Field(column, value string) string {
	if SensitiveColumn(column) {
		return Text(value)
	}
	return value
}

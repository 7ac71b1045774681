package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/router"
)

const (
	maxExplainItems = 5
	noEntriesAnswer = "관련 코드북 항목 없음"
)

// ExplainResult is the outcome of a field explanation.
type ExplainResult struct {
	Entries []codebook.Entry

	answer string
}

// Mode implements Outcome.
func (r *ExplainResult) Mode() router.Mode { return router.Explain }

// Answer lists the matching codebook entries.
func (r *ExplainResult) Answer() string { return r.answer }

func (*ExplainResult) isOutcome() {}

// Explain finds the codebook entries a question is about. Text matches come
// first; semantic hits from the searcher fill the remaining slots. A searcher
// failure is logged and ignored.
func (e *Engine) Explain(ctx context.Context, query string) *ExplainResult {
	entries := e.cb.Search(query, maxExplainItems)
	if e.searcher != nil && len(entries) < maxExplainItems {
		hits, err := e.searcher.Search(ctx, query, maxExplainItems)
		if err != nil {
			e.log.Warn("semantic codebook search failed", zap.Error(err))
		}
		entries = mergeEntries(entries, hits, maxExplainItems)
	}
	return &ExplainResult{Entries: entries, answer: explainAnswer(entries)}
}

func mergeEntries(a, b []codebook.Entry, limit int) []codebook.Entry {
	seen := make(map[string]bool, len(a))
	for _, x := range a {
		seen[x.Kind+"\x00"+x.Code] = true
	}
	for _, x := range b {
		if len(a) >= limit {
			break
		}
		k := x.Kind + "\x00" + x.Code
		if seen[k] {
			continue
		}
		seen[k] = true
		a = append(a, x)
	}
	return a
}

func explainAnswer(entries []codebook.Entry) string {
	var b strings.Builder
	b.WriteString("**코드북 정보**:\n")
	if len(entries) == 0 {
		b.WriteString("\n" + noEntriesAnswer)
		return b.String()
	}
	for i, en := range entries {
		fmt.Fprintf(&b, "\n%d. 번호: %s\n", i+1, en.Code)
		fmt.Fprintf(&b, "   항목: %s\n", en.Name)
		fmt.Fprintf(&b, "   설명: %s\n", orNA(en.Description))
		fmt.Fprintf(&b, "   파일: %s\n", en.Kind)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

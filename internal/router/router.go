// Package router classifies a free-text question into one of three answer
// modes by weighted keyword matching.
package router

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Mode is the answer strategy chosen for a question.
type Mode string

const (
	Aggregate Mode = "AGGREGATE"
	Lookup    Mode = "LOOKUP"
	Explain   Mode = "EXPLAIN"
)

// Modes lists every mode in tie-break order.
var Modes = []Mode{Aggregate, Lookup, Explain}

// Label is the Korean display name of a mode.
func (m Mode) Label() string {
	switch m {
	case Aggregate:
		return "집계"
	case Lookup:
		return "조회"
	case Explain:
		return "설명"
	}
	return string(m)
}

// Result is one classification.
type Result struct {
	Mode       Mode             `json:"mode"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	Scores     map[Mode]float64 `json:"scores,omitempty"`
}

// NoMatchReasoning is reported when no rule fired.
const NoMatchReasoning = "no keyword match"

var (
	topNRe        = regexp.MustCompile(`(top|bottom|상위|하위)\s*\d+`)
	groupSuffixRe = regexp.MustCompile(`[\p{L}\p{N}_]+별`)
	koreanWordRe  = regexp.MustCompile(`[가-힣]{2,}`)
	latinNameRe   = regexp.MustCompile(`\b[A-Z][a-z][A-Za-z0-9&.'-]*(?:\s+[A-Z][A-Za-z0-9&.'-]*)*`)
	dateExprRe    = regexp.MustCompile(`\d{4}년|\d+월|\d+일`)
)

// Classifier scores questions against a Rules vocabulary. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	rules         Rules
	explainSuffix *regexp.Regexp
	questionWords map[string]bool
	latinStop     map[string]bool
}

// New compiles a classifier from rules.
func New(rules Rules) *Classifier {
	c := &Classifier{
		rules:         rules,
		questionWords: toSet(rules.QuestionWords),
		latinStop:     toSet(rules.LatinStopwords),
	}
	if len(rules.ExplainSuffixes) > 0 {
		alts := make([]string, len(rules.ExplainSuffixes))
		for i, s := range rules.ExplainSuffixes {
			alts[i] = regexp.QuoteMeta(s)
		}
		c.explainSuffix = regexp.MustCompile(`(?i)(` + strings.Join(alts, "|") + `)\?*$`)
	}
	return c
}

// Default is a classifier over DefaultRules.
func Default() *Classifier { return New(DefaultRules()) }

// Rules returns the vocabulary in use.
func (c *Classifier) Rules() Rules { return c.rules }

// Classify picks the highest-scoring mode. Ties resolve in the order
// Aggregate, Lookup, Explain. When nothing scores above zero the result is
// Lookup with the fallback confidence.
func (c *Classifier) Classify(query string) Result {
	w := c.rules.Weights
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)

	agg := c.keywordScore(lower, c.rules.Aggregate)
	look := c.keywordScore(lower, c.rules.Lookup)
	expl := c.keywordScore(lower, c.rules.Explain)

	if topNRe.MatchString(lower) {
		agg += w.TopN
	}
	if groupSuffixRe.MatchString(q) {
		agg += w.GroupSuffix
	}
	if containsAny(lower, c.rules.Comparison) {
		agg += w.Comparison
	}
	if c.explainSuffix != nil && c.explainSuffix.MatchString(q) {
		expl += w.ExplainSuffix
		look -= w.ExplainLookupPenalty
	}
	if c.HasProperNoun(q) {
		if agg > 0 {
			agg += w.NameAggregate
		} else {
			look += w.NameLookup
		}
	}
	if dateExprRe.MatchString(q) || containsAny(lower, c.rules.TimeWords) {
		if agg > 0 {
			agg += w.DateAggregate
		} else {
			look += w.DateLookup
		}
	}

	scores := map[Mode]float64{Aggregate: agg, Lookup: look, Explain: expl}
	best, bestScore := Aggregate, math.Inf(-1)
	for _, m := range Modes {
		if scores[m] > bestScore {
			best, bestScore = m, scores[m]
		}
	}
	if bestScore <= 0 {
		return Result{Mode: Lookup, Confidence: w.FallbackConfidence, Reasoning: NoMatchReasoning, Scores: scores}
	}
	scale := w.ConfidenceScale
	if scale <= 0 {
		scale = 3.0
	}
	return Result{
		Mode:       best,
		Confidence: math.Min(bestScore/scale, 1.0),
		Reasoning:  reasoning(scores, best),
		Scores:     scores,
	}
}

// HasProperNoun reports whether the question names something specific: a
// Korean word of two or more syllables that is not a question word, or a
// capitalized Latin phrase that is not a stopword.
func (c *Classifier) HasProperNoun(q string) bool {
	for _, m := range koreanWordRe.FindAllString(q, -1) {
		if !c.questionWords[m] {
			return true
		}
	}
	return c.LatinName(q) != ""
}

// LatinName returns the first capitalized Latin phrase not made solely of
// stopwords, with leading stopwords removed.
func (c *Classifier) LatinName(q string) string {
	for _, m := range latinNameRe.FindAllString(q, -1) {
		words := strings.Fields(m)
		for len(words) > 0 && c.latinStop[words[0]] {
			words = words[1:]
		}
		if len(words) > 0 {
			return strings.Join(words, " ")
		}
	}
	return ""
}

func (c *Classifier) keywordScore(lower string, keywords []string) float64 {
	var s float64
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			s += c.rules.Weights.Keyword
		}
	}
	return s
}

func reasoning(scores map[Mode]float64, chosen Mode) string {
	var parts []string
	for _, m := range Modes {
		if scores[m] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%.1f", m, scores[m]))
		}
	}
	return strings.Join(parts, ", ") + " → " + string(chosen)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func toSet(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Package engine answers classified questions over the loaded datasets:
// keyword-driven aggregation, record lookup and field explanation.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// All selects every dataset.
const All = "전체"

// Source hands out datasets by name. Missing datasets report false.
type Source interface {
	Dataset(name string) (*table.Table, bool)
}

// Tables is a Source backed by a map.
type Tables map[string]*table.Table

// Dataset implements Source.
func (m Tables) Dataset(name string) (*table.Table, bool) {
	t, ok := m[name]
	return t, ok && t != nil
}

// Searcher finds codebook entries by meaning rather than by text.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]codebook.Entry, error)
}

// Schema lists, per role, the column names that may carry it. Raw codes and
// display names are both accepted; the first present wins.
type Schema struct {
	Company []string
	Product []string
	Date    []string
	Code    []string
}

// DefaultSchema matches the client, sales and journal exports.
func DefaultSchema() Schema {
	return Schema{
		Company: []string{"B-1", "거래처", "거래처명", "company", "client"},
		Product: []string{"C-2", "제품명", "품목명", "거래 제품명", "product"},
		Date:    []string{"A-2", "매출일", "거래일", "일자", "date"},
		Code:    []string{"B-2", "거래처 코드", "code"},
	}
}

// Engine runs the three answer modes. It is safe for concurrent use as long
// as the Source is.
type Engine struct {
	src      Source
	cb       *codebook.Codebook
	schema   Schema
	log      *zap.Logger
	searcher Searcher
	names    *router.Classifier
}

// Option configures an Engine.
type Option func(*Engine)

// WithSchema overrides the column candidates.
func WithSchema(s Schema) Option { return func(e *Engine) { e.schema = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSearcher adds semantic hits to explain answers.
func WithSearcher(s Searcher) Option { return func(e *Engine) { e.searcher = s } }

// WithClassifier sets the classifier used for Latin name extraction.
func WithClassifier(c *router.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.names = c
		}
	}
}

// New builds an engine over src. cb may be nil, in which case columns keep
// their raw names.
func New(src Source, cb *codebook.Codebook, opts ...Option) *Engine {
	e := &Engine{
		src:    src,
		cb:     cb,
		schema: DefaultSchema(),
		log:    zap.NewNop(),
		names:  router.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Outcome is the result of one of the three modes. The concrete types are
// *AggregateResult, *LookupResult and *ExplainResult.
type Outcome interface {
	Mode() router.Mode
	Answer() string
	isOutcome()
}

// Run dispatches a classified question to its engine.
func (e *Engine) Run(ctx context.Context, mode router.Mode, query, filter string) Outcome {
	switch mode {
	case router.Aggregate:
		return e.Aggregate(query, filter)
	case router.Explain:
		return e.Explain(ctx, query)
	default:
		return e.Lookup(query, filter)
	}
}

// ValidFilter reports whether name is All or one of the fixed datasets.
func ValidFilter(name string) bool {
	if name == All {
		return true
	}
	for _, d := range codebook.Datasets {
		if d == name {
			return true
		}
	}
	return false
}

// datasets resolves the filter to dataset names. An unknown filter falls back
// to the keyword choice.
func datasets(filter string, fromQuery []string) []string {
	if filter != "" && filter != All {
		for _, d := range codebook.Datasets {
			if d == filter {
				return []string{d}
			}
		}
	}
	return fromQuery
}

func (e *Engine) translate(t *table.Table, dataset string) *table.Table {
	if e.cb == nil || t == nil {
		return t
	}
	return e.cb.TranslateColumns(t, dataset)
}

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/codebook"
)

// DefaultMinScore drops weak semantic matches.
const DefaultMinScore = 0.55

// Searcher answers free-text queries against an index by embedding the
// query with the same model the index was built with.
type Searcher struct {
	idx      *Index
	emb      ai.Embedder
	model    string
	minScore float64
}

// NewSearcher wraps a loaded index. An empty model falls back to the one
// recorded in the index.
func NewSearcher(idx *Index, emb ai.Embedder, model string, minScore float64) *Searcher {
	if model == "" {
		model = idx.Meta.EmbedModel
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Searcher{idx: idx, emb: emb, model: model, minScore: minScore}
}

// Open loads the index under dir. A missing index yields (nil, nil), which
// callers treat as "no semantic search".
func Open(dir string, emb ai.Embedder, model string) (*Searcher, error) {
	idx, err := Load(IndexPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return NewSearcher(idx, emb, model, 0), nil
}

// Len is the number of indexed entries.
func (s *Searcher) Len() int { return len(s.idx.Records) }

// Search returns up to k entries whose embedding is close to the query.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]codebook.Entry, error) {
	if len(s.idx.Records) == 0 {
		return nil, nil
	}
	vecs, err := s.emb.Embed(ctx, s.model, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	hits := s.idx.Search(vecs[0], k, s.minScore)
	out := make([]codebook.Entry, len(hits))
	for i, h := range hits {
		out[i] = h.Entry
	}
	return out, nil
}

// Package retrieval keeps an embedding index over codebook entries so that
// explain questions can find fields by meaning as well as by text.
package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

const indexVersion = 1

// Record is one embedded codebook entry.
type Record struct {
	Entry  codebook.Entry `json:"entry"`
	Hash   string         `json:"hash"`
	Text   string         `json:"text"`
	Vector []float32      `json:"vector"`
}

// Index is the persisted set of records.
type Index struct {
	Records []Record  `json:"records"`
	Meta    IndexMeta `json:"meta"`
}

type IndexMeta struct {
	IndexVersion  int       `json:"index_version"`
	EmbedProvider string    `json:"embed_provider"`
	EmbedModel    string    `json:"embed_model"`
	EmbedDim      int       `json:"embed_dim"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntryText is the embedded form of an entry: "[kind] code name: description".
func EntryText(e codebook.Entry) string {
	s := fmt.Sprintf("[%s] %s %s", e.Kind, e.Code, e.Name)
	if e.Description != "" {
		s += ": " + e.Description
	}
	return s
}

func (idx *Index) Save(path string) error {
	if idx == nil {
		return errors.New("nil index")
	}
	b, err := utils.PrettyJSON(idx)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, b)
}

func Load(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if idx.Meta.IndexVersion == 0 {
		idx.Meta.IndexVersion = indexVersion
	}
	return &idx, nil
}

// IndexPath is the index file inside dir.
func IndexPath(dir string) string {
	return filepath.Join(dir, "codebook_index.json")
}

// metaCompatible checks if previous index metadata can be reused under current options.
func metaCompatible(prev, cur IndexMeta) bool {
	if prev.IndexVersion != cur.IndexVersion {
		return false
	}
	if prev.EmbedProvider != "" && cur.EmbedProvider != "" && prev.EmbedProvider != cur.EmbedProvider {
		return false
	}
	if prev.EmbedModel != "" && cur.EmbedModel != "" && prev.EmbedModel != cur.EmbedModel {
		return false
	}
	return true
}

// allowKind filters by include/exclude patterns matched against the entry kind.
func allowKind(kind string, include, exclude []string) bool {
	matchAny := func(patterns []string) bool {
		for _, p := range patterns {
			if p == "" {
				continue
			}
			ok, _ := path.Match(p, kind)
			if ok {
				return true
			}
		}
		return false
	}
	if len(include) > 0 && !matchAny(include) {
		return false
	}
	if len(exclude) > 0 && matchAny(exclude) {
		return false
	}
	return true
}

// Cosine similarity between two vectors. Returns 0 if dimensions mismatch.
func CosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var na, nb float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type BuildOptions struct {
	Force         bool
	EmbedProvider string
	EmbedModel    string
	// Include and Exclude are path.Match patterns over entry kinds.
	Include []string
	Exclude []string
	// BatchSize caps the inputs of one embedding call.
	BatchSize int
}

// BuildIndex creates or refreshes the index under dir. Entries whose text
// hash is unchanged keep their previous vectors unless Force is set or the
// embedding model changed.
func BuildIndex(ctx context.Context, emb ai.Embedder, dir string, entries []codebook.Entry, opts BuildOptions) (*Index, error) {
	p := IndexPath(dir)
	prev, _ := Load(p) // best effort
	if prev == nil {
		prev = &Index{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	now := time.Now()
	idx := &Index{Meta: IndexMeta{
		IndexVersion:  indexVersion,
		EmbedProvider: opts.EmbedProvider,
		EmbedModel:    opts.EmbedModel,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
	if !prev.Meta.CreatedAt.IsZero() {
		idx.Meta.CreatedAt = prev.Meta.CreatedAt
	}

	reusable := map[string][]float32{}
	if !opts.Force && metaCompatible(prev.Meta, idx.Meta) {
		for _, r := range prev.Records {
			if len(r.Vector) > 0 {
				reusable[r.Hash] = r.Vector
			}
		}
	}

	var pending []int
	for _, e := range entries {
		if !allowKind(e.Kind, opts.Include, opts.Exclude) {
			continue
		}
		text := EntryText(e)
		sum := sha1.Sum([]byte(text))
		r := Record{Entry: e, Hash: fmt.Sprintf("%x", sum[:]), Text: text}
		if v, ok := reusable[r.Hash]; ok {
			r.Vector = v
		} else {
			pending = append(pending, len(idx.Records))
		}
		idx.Records = append(idx.Records, r)
	}

	for start := 0; start < len(pending); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, i := range pending[start:end] {
			texts = append(texts, idx.Records[i].Text)
		}
		vecs, err := emb.Embed(ctx, opts.EmbedModel, texts)
		if err != nil {
			return nil, fmt.Errorf("embed entries: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed entries: got %d vectors for %d inputs", len(vecs), len(texts))
		}
		for k, i := range pending[start:end] {
			idx.Records[i].Vector = vecs[k]
		}
	}
	for _, r := range idx.Records {
		if len(r.Vector) > 0 {
			idx.Meta.EmbedDim = len(r.Vector)
			break
		}
	}
	// Deterministic order (by kind, then code)
	sort.SliceStable(idx.Records, func(i, j int) bool {
		a, b := idx.Records[i].Entry, idx.Records[j].Entry
		if a.Kind == b.Kind {
			return a.Code < b.Code
		}
		return a.Kind < b.Kind
	})
	if err := idx.Save(p); err != nil {
		return nil, err
	}
	return idx, nil
}

// Hit is a scored search result.
type Hit struct {
	Record
	Score float64
}

// Search returns top-k records above the minScore threshold, sorted by descending score.
func (idx *Index) Search(query []float32, topK int, minScore float64) []Hit {
	hits := make([]Hit, 0, len(idx.Records))
	for _, r := range idx.Records {
		s := CosineSim(query, r.Vector)
		if s >= minScore {
			hits = append(hits, Hit{Record: r, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

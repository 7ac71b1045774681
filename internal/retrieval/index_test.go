package retrieval

import (
	"context"
	"os"
	"testing"

	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
)

// fakeEmbedder maps known texts to fixed vectors and everything else to a
// one-hot vector by call order.
type fakeEmbedder struct {
	dim    int
	calls  int
	inputs int
	fixed  map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs += len(texts)
	if f.dim <= 0 {
		f.dim = 3
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.fixed[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, f.dim)
		v[i%f.dim] = 1.0
		out[i] = v
	}
	return out, nil
}

var entries = []codebook.Entry{
	{Kind: "sales data", Code: "A-2", Name: "매출일", Description: "세금계산서 발행일"},
	{Kind: "sales data", Code: "C-2", Name: "제품명"},
	{Kind: "거래처 데이터", Code: "B-1", Name: "거래처명", Description: "거래처 상호"},
}

var _ engine.Searcher = (*Searcher)(nil)

func TestEntryText(t *testing.T) {
	if got := EntryText(entries[0]); got != "[sales data] A-2 매출일: 세금계산서 발행일" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := EntryText(entries[1]); got != "[sales data] C-2 제품명" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestBuildIndex_SaveAndReuse(t *testing.T) {
	dir := t.TempDir()
	emb := &fakeEmbedder{dim: 3}
	opts := BuildOptions{EmbedProvider: "gemini", EmbedModel: "e1"}
	idx, err := BuildIndex(context.Background(), emb, dir, entries, opts)
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if idx.Meta.EmbedDim != 3 {
		t.Fatalf("expected EmbedDim=3, got %d", idx.Meta.EmbedDim)
	}
	if len(idx.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(idx.Records))
	}
	if _, err := os.Stat(IndexPath(dir)); err != nil {
		t.Fatalf("index file not found: %v", err)
	}

	// Reuse: run again, expect no additional Embed calls
	emb2 := &fakeEmbedder{dim: 3}
	idx2, err := BuildIndex(context.Background(), emb2, dir, entries, opts)
	if err != nil {
		t.Fatalf("rebuild index: %v", err)
	}
	if len(idx2.Records) != 3 {
		t.Fatalf("expected 3 records on reuse, got %d", len(idx2.Records))
	}
	if emb2.calls != 0 {
		t.Fatalf("expected zero embed calls on reuse, got %d", emb2.calls)
	}

	// A changed description re-embeds only that entry.
	changed := append([]codebook.Entry(nil), entries...)
	changed[1].Description = "판매한 제품 이름"
	emb3 := &fakeEmbedder{dim: 3}
	if _, err := BuildIndex(context.Background(), emb3, dir, changed, opts); err != nil {
		t.Fatalf("incremental build: %v", err)
	}
	if emb3.inputs != 1 {
		t.Fatalf("expected one re-embedded entry, got %d", emb3.inputs)
	}
}

func TestBuildIndex_ForceAndModelChange(t *testing.T) {
	dir := t.TempDir()
	emb := &fakeEmbedder{dim: 3}
	opts := BuildOptions{EmbedProvider: "gemini", EmbedModel: "e1"}
	if _, err := BuildIndex(context.Background(), emb, dir, entries, opts); err != nil {
		t.Fatalf("first build: %v", err)
	}

	emb.calls = 0
	opts.Force = true
	if _, err := BuildIndex(context.Background(), emb, dir, entries, opts); err != nil {
		t.Fatalf("force rebuild: %v", err)
	}
	if emb.calls == 0 {
		t.Fatalf("expected embed to be called on force rebuild")
	}

	emb.calls = 0
	opts.Force = false
	opts.EmbedModel = "e2"
	if _, err := BuildIndex(context.Background(), emb, dir, entries, opts); err != nil {
		t.Fatalf("model change rebuild: %v", err)
	}
	if emb.calls == 0 {
		t.Fatalf("expected a new model to invalidate stored vectors")
	}
}

func TestBuildIndexBatches(t *testing.T) {
	emb := &fakeEmbedder{dim: 3}
	if _, err := BuildIndex(context.Background(), emb, t.TempDir(), entries, BuildOptions{BatchSize: 2}); err != nil {
		t.Fatalf("build: %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("expected 2 batches, got %d", emb.calls)
	}
}

func TestAllowKindFilters(t *testing.T) {
	if !allowKind("sales data", []string{"sales*"}, nil) {
		t.Fatalf("expected include match")
	}
	if allowKind("영업일지", []string{"sales*"}, nil) {
		t.Fatalf("unexpected include match")
	}
	if allowKind("거래처 데이터", nil, []string{"거래처*"}) {
		t.Fatalf("exclude should filter out client entries")
	}
}

func TestSearcherRanking(t *testing.T) {
	dir := t.TempDir()
	fixed := map[string][]float32{"언제 발행했나": {0.9, 0.1, 0}}
	for i, e := range entries {
		v := make([]float32, 3)
		v[i] = 1
		fixed[EntryText(e)] = v
	}
	emb := &fakeEmbedder{dim: 3, fixed: fixed}
	if _, err := BuildIndex(context.Background(), emb, dir, entries, BuildOptions{EmbedModel: "e1"}); err != nil {
		t.Fatalf("build index: %v", err)
	}
	s, err := Open(dir, emb, "")
	if err != nil || s == nil {
		t.Fatalf("open: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", s.Len())
	}
	got, err := s.Search(context.Background(), "언제 발행했나", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Code != "A-2" {
		t.Fatalf("expected only A-2 above the threshold, got %+v", got)
	}
}

func TestOpenMissingIndex(t *testing.T) {
	s, err := Open(t.TempDir(), &fakeEmbedder{}, "e1")
	if err != nil || s != nil {
		t.Fatalf("expected no searcher and no error, got %v %v", s, err)
	}
}

func TestIndexRoundtrip(t *testing.T) {
	dir := t.TempDir()
	idx := &Index{Records: []Record{{Entry: entries[0], Hash: "h", Text: "x", Vector: []float32{1, 0}}}, Meta: IndexMeta{IndexVersion: 1}}
	p := IndexPath(dir)
	if err := idx.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].Entry.Code != "A-2" {
		t.Fatalf("roundtrip mismatch")
	}
}

// Package codebook holds the field dictionary that maps raw column codes such
// as "B-1" to display names and descriptions, per file kind.
package codebook

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Dictionary column headers.
const (
	ColKind        = "파일 구분"
	ColCode        = "번호"
	ColName        = "항목"
	ColDescription = "항목설명"
)

var exampleColumns = []string{"예시", "예시값", "예시 값"}

// Dataset names used by the engines.
const (
	DatasetClients = "거래처"
	DatasetSales   = "매출"
	DatasetJournal = "영업일지"
)

// Datasets lists the fixed datasets in lookup order.
var Datasets = []string{DatasetClients, DatasetSales, DatasetJournal}

// datasetKinds maps a dataset to the file kinds it may be filed under.
var datasetKinds = map[string][]string{
	DatasetClients: {"거래처 데이터"},
	DatasetSales:   {"sales data", "매출 데이터"},
	DatasetJournal: {"영업일지"},
}

// filenameKinds maps filename fragments to file kinds, checked in order.
var filenameKinds = []struct{ fragment, kind string }{
	{"sales data", "sales data"},
	{"매출", "sales data"},
	{"거래처", "거래처 데이터"},
	{"영업일지", "영업일지"},
}

// MissingColumnError means a required dictionary column is absent.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("codebook is missing required column %q", e.Column)
}

// Entry is one dictionary row.
type Entry struct {
	Kind        string `json:"kind"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Examples    string `json:"examples,omitempty"`
}

// Text is the searchable form of an entry.
func (e Entry) Text() string {
	return strings.TrimSpace(e.Code + " " + e.Name + " " + e.Description)
}

// Codebook is read-only after construction and safe for concurrent use.
type Codebook struct {
	entries []Entry
	byKind  map[string]map[string]int
}

// Load reads a dictionary file with the loader's encoding fallback.
func Load(path string, log *zap.Logger) (*Codebook, error) {
	t, err := table.LoadFile(path, table.LoadOptions{})
	if err != nil {
		return nil, fmt.Errorf("load codebook: %w", err)
	}
	cb, err := FromTable(t)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("codebook loaded",
			zap.String("file", path),
			zap.String("encoding", t.Encoding),
			zap.Int("entries", len(cb.entries)),
			zap.Strings("kinds", cb.Kinds()))
	}
	return cb, nil
}

// FromTable builds a codebook from a loaded table. Rows with an empty code or
// name are skipped; a repeated code within a kind replaces the earlier row.
func FromTable(t *table.Table) (*Codebook, error) {
	for _, c := range []string{ColKind, ColCode, ColName} {
		if !t.Has(c) {
			return nil, &MissingColumnError{Column: c}
		}
	}
	exampleCol, _ := t.First(exampleColumns...)
	var entries []Entry
	for i := 0; i < t.Len(); i++ {
		e := Entry{
			Kind:        strings.TrimSpace(t.At(i, ColKind).String()),
			Code:        strings.TrimSpace(t.At(i, ColCode).String()),
			Name:        strings.TrimSpace(t.At(i, ColName).String()),
			Description: strings.TrimSpace(t.At(i, ColDescription).String()),
		}
		if exampleCol != "" {
			e.Examples = strings.TrimSpace(t.At(i, exampleCol).String())
		}
		if e.Code == "" || e.Name == "" {
			continue
		}
		entries = append(entries, e)
	}
	return New(entries), nil
}

// New builds a codebook from entries.
func New(entries []Entry) *Codebook {
	cb := &Codebook{byKind: map[string]map[string]int{}}
	for _, e := range entries {
		m := cb.byKind[e.Kind]
		if m == nil {
			m = map[string]int{}
			cb.byKind[e.Kind] = m
		}
		if i, ok := m[e.Code]; ok {
			cb.entries[i] = e
			continue
		}
		m[e.Code] = len(cb.entries)
		cb.entries = append(cb.entries, e)
	}
	return cb
}

// Len returns the number of entries.
func (cb *Codebook) Len() int {
	if cb == nil {
		return 0
	}
	return len(cb.entries)
}

// Entries returns all entries in file order.
func (cb *Codebook) Entries() []Entry {
	if cb == nil {
		return nil
	}
	return append([]Entry(nil), cb.entries...)
}

// Kinds lists the file kinds, sorted.
func (cb *Codebook) Kinds() []string {
	if cb == nil {
		return nil
	}
	out := make([]string, 0, len(cb.byKind))
	for k := range cb.byKind {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the entry for a code within a kind.
func (cb *Codebook) Lookup(kind, code string) (Entry, bool) {
	if cb == nil {
		return Entry{}, false
	}
	i, ok := cb.byKind[kind][code]
	if !ok {
		return Entry{}, false
	}
	return cb.entries[i], true
}

// Mapping returns code → display name for a kind. Unknown kinds give an empty map.
func (cb *Codebook) Mapping(kind string) map[string]string {
	out := map[string]string{}
	if cb == nil {
		return out
	}
	for code, i := range cb.byKind[kind] {
		out[code] = cb.entries[i].Name
	}
	return out
}

// Description returns the description of a code, or "".
func (cb *Codebook) Description(kind, code string) string {
	e, _ := cb.Lookup(kind, code)
	return e.Description
}

// Translate returns the display name of a code, or the code itself.
func (cb *Codebook) Translate(kind, code string) string {
	if e, ok := cb.Lookup(kind, code); ok {
		return e.Name
	}
	return code
}

// Reverse finds the code whose display name is name.
func (cb *Codebook) Reverse(kind, name string) (string, bool) {
	if cb == nil {
		return "", false
	}
	for code, i := range cb.byKind[kind] {
		if cb.entries[i].Name == name {
			return code, true
		}
	}
	return "", false
}

// KindForDataset picks the file kind of a dataset present in this codebook.
func (cb *Codebook) KindForDataset(dataset string) string {
	kinds := datasetKinds[dataset]
	if len(kinds) == 0 {
		return dataset
	}
	if cb != nil {
		for _, k := range kinds {
			if _, ok := cb.byKind[k]; ok {
				return k
			}
		}
	}
	return kinds[0]
}

// KindForFilename infers the file kind from an uploaded file name.
func KindForFilename(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, fk := range filenameKinds {
		if strings.Contains(lower, fk.fragment) {
			return fk.kind, true
		}
	}
	return "", false
}

// Apply renames the coded columns of t to display names for kind.
func (cb *Codebook) Apply(t *table.Table, kind string) (*table.Table, int) {
	mapping := cb.Mapping(kind)
	rename := map[string]string{}
	for _, col := range t.Columns() {
		if name, ok := mapping[col]; ok {
			rename[col] = name
		}
	}
	if len(rename) == 0 {
		return t, 0
	}
	return t.Rename(rename), len(rename)
}

// TranslateColumns renames coded columns for a dataset.
func (cb *Codebook) TranslateColumns(t *table.Table, dataset string) *table.Table {
	out, _ := cb.Apply(t, cb.KindForDataset(dataset))
	return out
}

var codeRe = regexp.MustCompile(`(?i)\b([A-J]-\d+)\b`)

// Search finds entries related to a free-text query. Exact code mentions come
// first, then entries whose text contains the whole query (with or without
// spaces), then entries containing any query word. At most limit entries are
// returned; limit <= 0 means no cap.
func (cb *Codebook) Search(query string, limit int) []Entry {
	if cb == nil {
		return nil
	}
	var out []Entry
	seen := map[int]bool{}
	add := func(i int) bool {
		if seen[i] {
			return false
		}
		seen[i] = true
		out = append(out, cb.entries[i])
		return limit > 0 && len(out) >= limit
	}

	for _, m := range codeRe.FindAllStringSubmatch(query, -1) {
		code := strings.ToUpper(m[1])
		for i, e := range cb.entries {
			if e.Code == code && add(i) {
				return out
			}
		}
	}

	q := strings.ToLower(strings.TrimSpace(query))
	compact := strings.ReplaceAll(q, " ", "")
	if q != "" {
		for i, e := range cb.entries {
			text := strings.ToLower(e.Text())
			if strings.Contains(text, q) || strings.Contains(strings.ReplaceAll(text, " ", ""), compact) {
				if add(i) {
					return out
				}
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	words := searchWords(q)
	for i, e := range cb.entries {
		text := strings.ToLower(e.Text())
		for _, w := range words {
			if strings.Contains(text, w) {
				if add(i) {
					return out
				}
				break
			}
		}
	}
	return out
}

var searchStopwords = map[string]bool{
	"무엇": true, "뭐야": true, "뭔가요": true, "설명": true, "의미": true, "알려줘": true, "알려주세요": true,
	"what": true, "does": true, "is": true, "the": true, "mean": true, "field": true, "of": true,
}

var particleSuffixes = []string{"이란", "란", "은", "는", "이", "가", "을", "를", "의", "에서", "에"}

func searchWords(q string) []string {
	var out []string
	for _, w := range strings.Fields(q) {
		w = strings.Trim(w, "?!.,\"'()")
		for _, p := range particleSuffixes {
			if strings.HasSuffix(w, p) && len([]rune(w))-len([]rune(p)) >= 2 {
				w = strings.TrimSuffix(w, p)
				break
			}
		}
		if len([]rune(w)) < 2 || searchStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

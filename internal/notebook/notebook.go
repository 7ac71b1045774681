// Package notebook persists a named set of data files together with the
// conversation held over them, so a chat can be resumed later.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liszzmword/ai-data-analyst/internal/analyst"
	"github.com/liszzmword/ai-data-analyst/internal/upload"
	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

const (
	fileName = "notebook.json"
	// MaxHistory caps the persisted turns; older ones are dropped on Record.
	MaxHistory = 100
)

// ErrNameTaken means a notebook already exists in the target directory.
var ErrNameTaken = errors.New("notebook already exists")

// Notebook is a named collection of data files persisted on disk.
type Notebook struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Files       map[string]*File `json:"files"`
	History     []analyst.Turn   `json:"history"`
	Config      *Config          `json:"config"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// Not serialized: on-disk location of the notebook.json
	rootDir string `json:"-"`
}

// Config overrides the global model settings for one notebook.
type Config struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// File is the metadata kept for one data file. Contents are re-read from
// Path when the notebook is opened.
type File struct {
	ID          string      `json:"id"`
	Path        string      `json:"path"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        upload.Kind `json:"kind"`
	Size        int         `json:"size"`
	Rows        int         `json:"rows,omitempty"`
	Columns     int         `json:"columns,omitempty"`
	AddedAt     time.Time   `json:"added_at"`
}

// New constructs an in-memory notebook. Call Save() to persist.
func New(name, description, rootDir string) *Notebook {
	now := time.Now()
	return &Notebook{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Files:       make(map[string]*File),
		// Empty fields inherit the global defaults.
		Config:    &Config{},
		CreatedAt: now,
		UpdatedAt: now,
		rootDir:   rootDir,
	}
}

// Dir is where a notebook named name lives under base.
func Dir(base, name string) string {
	return filepath.Join(base, name)
}

// Create makes a new notebook under base and saves it. It fails with
// ErrNameTaken when the directory already holds one.
func Create(base, name, description string) (*Notebook, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid notebook name %q", name)
	}
	dir := Dir(base, name)
	if _, err := os.Stat(filepath.Join(dir, fileName)); err == nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrNameTaken)
	}
	nb := New(name, description, dir)
	if err := nb.Save(); err != nil {
		return nil, err
	}
	return nb, nil
}

// Load loads a notebook.json from the provided directory.
func Load(dir string) (*Notebook, error) {
	path := filepath.Join(dir, fileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("notebook not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read notebook: %w", err)
	}
	var nb Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, fmt.Errorf("parse notebook: %w", err)
	}
	if nb.Files == nil {
		nb.Files = make(map[string]*File)
	}
	nb.rootDir = dir
	return &nb, nil
}

// Find loads the notebook enclosing start, walking up the directory tree.
func Find(start string) (*Notebook, error) {
	dir, err := utils.FindRoot(start, fileName)
	if err != nil {
		return nil, err
	}
	return Load(dir)
}

// Resolve loads a notebook given either a name under base or a path.
func Resolve(base, ref string) (*Notebook, error) {
	if !strings.ContainsAny(ref, `/\`) {
		if nb, err := Load(Dir(base, ref)); err == nil {
			return nb, nil
		}
	}
	return Find(ref)
}

// List loads every notebook directly under base, sorted by name. Directories
// without a readable notebook.json are skipped.
func List(base string) ([]*Notebook, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read notebooks dir: %w", err)
	}
	var out []*Notebook
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		nb, err := Load(filepath.Join(base, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, nb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RootDir returns the on-disk notebook directory path.
func (n *Notebook) RootDir() string { return n.rootDir }

// Save writes notebook.json using atomic write.
func (n *Notebook) Save() error {
	if n.rootDir == "" {
		return errors.New("notebook root directory not set")
	}
	if err := utils.EnsureDir(n.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	n.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(n)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(n.rootDir, fileName), data)
}

// AddFile ingests a file through l to validate it and records it. A file
// with the same name replaces the earlier entry.
func (n *Notebook) AddFile(l *upload.Loader, path, description string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	up, err := l.LoadFile(abs)
	if err != nil {
		return nil, err
	}
	f := &File{
		ID:          up.ID,
		Path:        abs,
		Name:        up.Name,
		Description: description,
		Kind:        up.Kind,
		Size:        up.Size,
		AddedAt:     up.AddedAt,
	}
	if up.IsTable() {
		f.Rows, f.Columns = up.Table.Len(), up.Table.Width()
	}
	if n.Files == nil {
		n.Files = make(map[string]*File)
	}
	for id, existing := range n.Files {
		if existing.Name == f.Name {
			delete(n.Files, id)
		}
	}
	n.Files[f.ID] = f
	n.UpdatedAt = time.Now()
	return f, nil
}

// RemoveFile drops a file by id or name.
func (n *Notebook) RemoveFile(ref string) bool {
	for id, f := range n.Files {
		if id == ref || f.Name == ref {
			delete(n.Files, id)
			n.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// SortedFiles returns the files in a deterministic order.
func (n *Notebook) SortedFiles() []*File {
	out := make([]*File, 0, len(n.Files))
	for _, f := range n.Files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Open re-reads every file into an upload set. Files that can no longer be
// read are reported and left out.
func (n *Notebook) Open(l *upload.Loader) (*upload.Set, []error) {
	set := &upload.Set{}
	var errs []error
	for _, f := range n.SortedFiles() {
		up, err := l.LoadFile(f.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		set.Add(up)
	}
	return set, errs
}

// Conversation seeds a conversation window from the stored history.
func (n *Notebook) Conversation() *analyst.Conversation {
	return analyst.NewConversation(n.History)
}

// Record appends an exchange to the history. Call Save() to persist.
func (n *Notebook) Record(query, answer string) {
	n.History = append(n.History, analyst.Turn{Query: query, Answer: answer, At: time.Now()})
	if len(n.History) > MaxHistory {
		n.History = append([]analyst.Turn(nil), n.History[len(n.History)-MaxHistory:]...)
	}
	n.UpdatedAt = time.Now()
}

// ClearHistory forgets every recorded exchange.
func (n *Notebook) ClearHistory() {
	n.History = nil
	n.UpdatedAt = time.Now()
}

package upload

import (
	"sync"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/join"
	"github.com/liszzmword/ai-data-analyst/internal/parser"
)

// Set is the ordered collection of files uploaded in one session.
// It is safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	files []*File
}

// Add appends f. A file with the same name replaces the earlier upload.
func (s *Set) Add(f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.files {
		if existing.Name == f.Name {
			s.files[i] = f
			return
		}
	}
	s.files = append(s.files, f)
}

// List returns the files in upload order.
func (s *Set) List() []*File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*File(nil), s.files...)
}

// Len is the number of files.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Get finds a file by name.
func (s *Set) Get(name string) (*File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Remove drops the file with the given id.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every file.
func (s *Set) Clear() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}

// Tables returns the tabular uploads as join inputs.
func (s *Set) Tables() []join.Input {
	var out []join.Input
	for _, f := range s.List() {
		if f.IsTable() {
			out = append(out, join.Input{Name: f.Name, Table: f.Table})
		}
	}
	return out
}

// Images returns the image uploads as model attachments.
func (s *Set) Images() []ai.Image {
	var out []ai.Image
	for _, f := range s.List() {
		if f.Kind == KindImage {
			out = append(out, ai.Image{Name: f.Name, MIME: f.MIME, Data: f.Data})
		}
	}
	return out
}

// Documents returns the PDF uploads.
func (s *Set) Documents() []*File {
	var out []*File
	for _, f := range s.List() {
		if f.Kind == KindPDF {
			out = append(out, f)
		}
	}
	return out
}

// Notes returns the text of the note documents.
func (s *Set) Notes() []parser.Note {
	var out []parser.Note
	for _, f := range s.List() {
		if f.Kind == KindText {
			out = append(out, parser.Note{Name: f.Name, Text: f.Text})
		}
	}
	return out
}

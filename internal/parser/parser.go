// Package parser extracts plain text from note documents such as meeting
// memos and sales reports, so they can sit next to tables in a prompt.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/liszzmword/ai-data-analyst/internal/utils"
)

// Parser extracts text from one document format.
type Parser interface {
	CanParse(filename string) bool
	Parse(content []byte) (string, error)
}

// ErrUnsupported means no registered parser accepts the file name.
var ErrUnsupported = errors.New("unsupported document type")

var registry []Parser

// Register adds a parser implementation to the registry.
func Register(p Parser) {
	registry = append(registry, p)
}

// Note is the extracted text of one document.
type Note struct {
	Name string
	Text string
}

// Tokens estimates the prompt size of the note.
func (n Note) Tokens() int { return utils.CountTokens(n.Text) }

// Supported reports whether a registered parser accepts name.
func Supported(name string) bool {
	return find(name) != nil
}

// Parse extracts the text of the document called name.
func Parse(name string, content []byte) (string, error) {
	p := find(name)
	if p == nil {
		return "", fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	text, err := p.Parse(content)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return collapseBlankLines(text), nil
}

// ParseFile reads and parses a document from disk.
func ParseFile(path string) (Note, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Note{}, fmt.Errorf("read file: %w", err)
	}
	name := filepath.Base(path)
	text, err := Parse(name, data)
	if err != nil {
		return Note{}, err
	}
	return Note{Name: name, Text: text}, nil
}

func find(name string) Parser {
	for _, p := range registry {
		if p.CanParse(name) {
			return p
		}
	}
	return nil
}

func collapseBlankLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func init() {
	Register(txtParser{})
	Register(markdownParser{})
	Register(docxParser{})
}

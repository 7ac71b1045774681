package parser

import "github.com/liszzmword/ai-data-analyst/internal/table"

// txtParser decodes plain text, falling back to CP949 for memos saved by
// older Korean editors.
type txtParser struct{}

func (txtParser) CanParse(filename string) bool { return hasExt(filename, ".txt") }

func (txtParser) Parse(content []byte) (string, error) {
	text, _, err := table.DecodeText(content, table.DefaultEncodings)
	return text, err
}

package parser

import "github.com/liszzmword/ai-data-analyst/internal/table"

type markdownParser struct{}

func (markdownParser) CanParse(filename string) bool {
	return hasExt(filename, ".md", ".markdown")
}

// Markdown is kept as written; the model reads it directly.
func (markdownParser) Parse(content []byte) (string, error) {
	text, _, err := table.DecodeText(content, table.DefaultEncodings)
	return text, err
}

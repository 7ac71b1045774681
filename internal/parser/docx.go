package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	docxParagraph = regexp.MustCompile(`</w:p>|<w:br[^>]*/>`)
	docxTab       = regexp.MustCompile(`<w:tab[^>]*/>`)
	xmlTag        = regexp.MustCompile(`<[^>]+>`)
)

type docxParser struct{}

func (docxParser) CanParse(filename string) bool { return hasExt(filename, ".docx") }

// Parse reads word/document.xml from the archive and strips the markup,
// keeping paragraph and tab breaks.
func (docxParser) Parse(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if len(docXML) == 0 {
		return "", fmt.Errorf("document.xml not found in DOCX")
	}
	text := docxParagraph.ReplaceAllString(string(docXML), "\n")
	text = docxTab.ReplaceAllString(text, "\t")
	text = xmlTag.ReplaceAllString(text, "")
	return unescapeXML(text), nil
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string { return xmlEntities.Replace(s) }

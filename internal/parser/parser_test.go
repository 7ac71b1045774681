package parser_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"

	"github.com/liszzmword/ai-data-analyst/internal/parser"
)

func TestParseFileTXT(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "memo.txt")
	if err := os.WriteFile(p, []byte("한국상사 미팅\r\n\r\n\r\n\r\n단가 인상 요청"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := parser.ParseFile(p)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Name != "memo.txt" || n.Text != "한국상사 미팅\n\n단가 인상 요청" {
		t.Fatalf("unexpected note: %+v", n)
	}
	if n.Tokens() == 0 {
		t.Fatalf("expected a token estimate")
	}
}

func TestParseCP949Text(t *testing.T) {
	enc, err := korean.EUCKR.NewEncoder().Bytes([]byte("영업일지 메모"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := parser.Parse("memo.txt", enc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "영업일지 메모" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestParseMarkdownKeepsSyntax(t *testing.T) {
	out, err := parser.Parse("notes.MD", []byte("# 3분기 회의\n\n- 거래처 확대\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasPrefix(out, "# 3분기 회의") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestParseDocx(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	_, _ = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>보고서 &amp; 요약</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>매출</w:t><w:tab/><w:t>1,200</w:t></w:r></w:p></w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	out, err := parser.Parse("report.docx", buf.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != "보고서 & 요약\n매출\t1,200" {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := parser.Parse("broken.docx", []byte("not a zip")); err == nil {
		t.Fatalf("expected an error for a corrupt archive")
	}
}

func TestUnsupported(t *testing.T) {
	if parser.Supported("a.pdf") || !parser.Supported("a.docx") {
		t.Fatalf("unexpected support table")
	}
	if _, err := parser.Parse("a.pdf", nil); !errors.Is(err, parser.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding labels a text decoding attempted by the loader.
type Encoding string

const (
	UTF8BOM Encoding = "utf-8-sig"
	UTF8    Encoding = "utf-8"
	CP949   Encoding = "cp949"
	Latin1  Encoding = "latin-1"
	XLSX    Encoding = "xlsx"
)

// DefaultEncodings is the fallback order for files in the data directory.
// The CP949 decoder is a superset of EUC-KR, so EUC-KR needs no separate try.
var DefaultEncodings = []Encoding{UTF8BOM, UTF8, CP949}

// UploadEncodings extends the default order with Latin-1, which always decodes.
var UploadEncodings = []Encoding{UTF8BOM, UTF8, CP949, Latin1}

// ErrUndecodable means no encoding in the fallback list produced a table.
var ErrUndecodable = errors.New("no encoding could parse the file")

// ErrEmpty means the file had no header row.
var ErrEmpty = errors.New("file has no header row")

// LoadOptions tunes how a file becomes a table.
type LoadOptions struct {
	// Encodings to try in order for delimited text. Empty means DefaultEncodings.
	Encodings []Encoding
	// Delimiter for delimited text. If 0, sniffs among ',', ';', '\t'.
	Delimiter rune
	// Normalize applies numeric normalization to keyword columns.
	Normalize bool
}

// LoadFile reads a delimited or Excel file from disk.
func LoadFile(path string, opt LoadOptions) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(filepath.Base(path), b, opt)
}

// Parse builds a table from file bytes. The file name selects the format:
// .xlsx and .xlsm go through excelize, everything else is delimited text.
func Parse(name string, b []byte, opt LoadOptions) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		t, err = parseXLSX(name, b)
	case ".tsv":
		if opt.Delimiter == 0 {
			opt.Delimiter = '\t'
		}
		t, err = parseDelimited(name, b, opt)
	default:
		t, err = parseDelimited(name, b, opt)
	}
	if err != nil {
		return nil, err
	}
	if opt.Normalize {
		t = NormalizeNumeric(t)
	}
	return t, nil
}

func parseDelimited(name string, b []byte, opt LoadOptions) (*Table, error) {
	encs := opt.Encodings
	if len(encs) == 0 {
		encs = DefaultEncodings
	}
	var errs []error
	for _, enc := range encs {
		text, err := decode(b, enc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", enc, err))
			continue
		}
		t, err := readCSV(name, text, opt.Delimiter)
		if err != nil {
			if errors.Is(err, ErrEmpty) {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", enc, err))
			continue
		}
		t.Encoding = string(enc)
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w: %w", name, ErrUndecodable, errors.Join(errs...))
}

// DecodeText decodes b with the first encoding in encs that accepts it.
func DecodeText(b []byte, encs []Encoding) (string, Encoding, error) {
	if len(encs) == 0 {
		encs = DefaultEncodings
	}
	var errs []error
	for _, enc := range encs {
		text, err := decode(b, enc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", enc, err))
			continue
		}
		return text, enc, nil
	}
	return "", "", fmt.Errorf("%w: %w", ErrUndecodable, errors.Join(errs...))
}

func decode(b []byte, enc Encoding) (string, error) {
	switch enc {
	case UTF8BOM:
		if !bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
			return "", errors.New("no byte order mark")
		}
		if !utf8.Valid(b) {
			return "", errors.New("invalid utf-8")
		}
		out, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), b)
		return string(out), err
	case UTF8:
		if !utf8.Valid(b) {
			return "", errors.New("invalid utf-8")
		}
		return string(b), nil
	case CP949:
		return decodeStrict(korean.EUCKR, b)
	case Latin1:
		out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), b)
		return string(out), err
	}
	return "", fmt.Errorf("unknown encoding %q", enc)
}

// decodeStrict fails when the decoder had to substitute replacement runes for
// bytes that were not already U+FFFD in the source.
func decodeStrict(e encoding.Encoding, b []byte) (string, error) {
	out, _, err := transform.Bytes(e.NewDecoder(), b)
	if err != nil {
		return "", err
	}
	if bytes.Count(out, []byte("\uFFFD")) > bytes.Count(b, []byte("\uFFFD")) {
		return "", errors.New("invalid byte sequence")
	}
	return string(out), nil
}

func readCSV(name, text string, delim rune) (*Table, error) {
	if delim == 0 {
		delim = sniffDelimiter(text)
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = append([]string(nil), header...)
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, append([]string(nil), rec...))
	}
	return New(name, header, rows), nil
}

func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseXLSX reads the first sheet; its first row is the header.
func parseXLSX(name string, b []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: open workbook: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q: %w", name, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	var body [][]string
	for _, r := range rows[1:] {
		if !isBlank(r) {
			body = append(body, r)
		}
	}
	t := New(name, rows[0], body)
	t.Encoding = string(XLSX)
	return t, nil
}

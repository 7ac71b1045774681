// Package upload ingests user-supplied files: tables are decoded, renamed
// through the codebook and profiled, note documents are reduced to text, and
// images and PDFs are kept as bytes.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/analysis"
	"github.com/liszzmword/ai-data-analyst/internal/codebook"
	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/parser"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Kind is the broad type of an uploaded file.
type Kind string

const (
	KindCSV   Kind = "csv"
	KindExcel Kind = "excel"
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindText  Kind = "text"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes = 200 << 20

var extensions = map[string]struct {
	kind Kind
	mime string
}{
	".csv":  {KindCSV, "text/csv"},
	".xlsx": {KindExcel, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	".xlsm": {KindExcel, "application/vnd.ms-excel.sheet.macroEnabled.12"},
	".xls":  {KindExcel, "application/vnd.ms-excel"},
	".png":  {KindImage, "image/png"},
	".jpg":  {KindImage, "image/jpeg"},
	".jpeg": {KindImage, "image/jpeg"},
	".gif":  {KindImage, "image/gif"},
	".bmp":  {KindImage, "image/bmp"},
	".webp": {KindImage, "image/webp"},
	".pdf":  {KindPDF, "application/pdf"},
	".txt":  {KindText, "text/plain"},
	".md":   {KindText, "text/markdown"},
	".docx": {KindText, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

var (
	// ErrUnsupported means the file extension is not one of the accepted kinds.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrLegacyExcel means a binary .xls workbook, which cannot be read.
	ErrLegacyExcel = errors.New("legacy .xls workbooks are not supported; save as .xlsx")
)

// TooLargeError rejects a file over the size limit.
type TooLargeError struct {
	Name  string
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s: file exceeds %d MB limit", e.Name, e.Limit>>20)
}

// KindOf maps a file name to its kind and MIME type.
func KindOf(name string) (Kind, string, bool) {
	e, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return e.kind, e.mime, ok
}

// File is one ingested upload.
type File struct {
	ID      string
	Name    string
	Kind    Kind
	MIME    string
	Size    int
	AddedAt time.Time

	// Table and Report are set for csv and excel files.
	Table  *table.Table
	Report *analysis.Report
	// Dataset is the codebook file kind inferred from the name, if any.
	Dataset string
	Renamed int

	// Text is the extracted content of a note document.
	Text string

	// Data holds image and PDF bytes.
	Data []byte
}

// IsTable reports whether the file carries a table.
func (f *File) IsTable() bool { return f.Table != nil }

// Summary is the short description shown after an upload and placed in
// prompts.
func (f *File) Summary() string {
	switch f.Kind {
	case KindImage:
		return fmt.Sprintf("이미지 파일: %s (%s bytes)", f.Name, table.FormatNumber(float64(f.Size)))
	case KindPDF:
		return fmt.Sprintf("PDF 파일: %s (%s bytes)", f.Name, table.FormatNumber(float64(f.Size)))
	case KindText:
		return fmt.Sprintf("문서 파일: %s (%s자)", f.Name, table.FormatNumber(float64(utf8.RuneCountInString(f.Text))))
	}
	if f.Report == nil {
		return f.Name
	}
	return f.Report.Summary(20)
}

// Loader turns raw uploads into Files.
type Loader struct {
	cb       *codebook.Codebook
	maxBytes int64
	profile  analysis.Options
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxBytes sets the per-file size limit.
func WithMaxBytes(n int64) Option { return func(l *Loader) { l.maxBytes = n } }

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(l *Loader) { l.log = logging.OrNop(log) } }

// WithProfileOptions overrides the profiling options used for table summaries.
func WithProfileOptions(o analysis.Options) Option { return func(l *Loader) { l.profile = o } }

// NewLoader builds a loader. cb may be nil, in which case columns keep
// their raw names.
func NewLoader(cb *codebook.Codebook, opts ...Option) *Loader {
	l := &Loader{
		cb:       cb,
		maxBytes: DefaultMaxBytes,
		profile:  analysis.DefaultOptions(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// MaxBytes is the configured size limit.
func (l *Loader) MaxBytes() int64 { return l.maxBytes }

// Read ingests a file from r, stopping once the size limit is exceeded.
func (l *Loader) Read(name string, r io.Reader) (*File, error) {
	if _, _, ok := KindOf(name); !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	b, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return l.Load(name, b)
}

// LoadFile ingests a file from disk.
func (l *Loader) LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.Read(filepath.Base(path), f)
}

// Load ingests file bytes.
func (l *Loader) Load(name string, b []byte) (*File, error) {
	kind, mime, ok := KindOf(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
	if l.maxBytes > 0 && int64(len(b)) > l.maxBytes {
		return nil, &TooLargeError{Name: name, Limit: l.maxBytes}
	}
	f := &File{
		ID:      uuid.NewString(),
		Name:    name,
		Kind:    kind,
		MIME:    mime,
		Size:    len(b),
		AddedAt: l.now(),
	}
	switch kind {
	case KindCSV, KindExcel:
		if err := l.loadTable(f, b); err != nil {
			return nil, err
		}
	case KindText:
		text, err := parser.Parse(name, b)
		if err != nil {
			return nil, err
		}
		f.Text = text
	default:
		f.Data = b
	}
	l.log.Info("file uploaded", zap.String("file", name), zap.String("kind", string(kind)), zap.Int("bytes", len(b)))
	return f, nil
}

func (l *Loader) loadTable(f *File, b []byte) error {
	if strings.EqualFold(filepath.Ext(f.Name), ".xls") {
		return fmt.Errorf("%s: %w", f.Name, ErrLegacyExcel)
	}
	t, err := table.Parse(f.Name, b, table.LoadOptions{Encodings: table.UploadEncodings})
	if err != nil {
		return err
	}
	// Display names must be in place before normalization, whose column
	// cues are Korean headers.
	if kind, ok := codebook.KindForFilename(f.Name); ok {
		f.Dataset = kind
		if l.cb != nil {
			t, f.Renamed = l.cb.Apply(t, kind)
		}
	}
	t = table.NormalizeNumeric(t)
	f.Table = t
	f.Report = analysis.Profile(t, l.profile)
	l.log.Debug("table loaded",
		zap.String("file", f.Name),
		zap.String("encoding", t.Encoding),
		zap.Int("rows", t.Len()),
		zap.Int("renamed", f.Renamed))
	return nil
}

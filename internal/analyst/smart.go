package analyst

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/join"
	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/parser"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// MaxImages caps the images attached to one multimodal request.
const MaxImages = 5

// maxNoteRunes caps the text of one note document placed in the context.
const maxNoteRunes = 4000

// Files is the uploaded material an analysis runs over.
type Files interface {
	Tables() []join.Input
	Images() []ai.Image
}

// NoteSource is implemented by Files that also carry note documents.
type NoteSource interface {
	Notes() []parser.Note
}

// Request is one upload-flow question.
type Request struct {
	Query         string
	History       *Conversation
	IncludeImages bool
	// OnDelta receives answer text as it streams in.
	OnDelta func(string)
}

// Analysis is the answer to a Request.
type Analysis struct {
	Query   string         `json:"query"`
	Context string         `json:"context"`
	Answer  string         `json:"answer"`
	Images  int            `json:"images"`
	Joined  *join.Result   `json:"-"`
	Tables  []*table.Table `json:"-"`
	Usage   ai.Usage       `json:"usage"`
	Err     error          `json:"-"`
}

// SmartAnalyst answers questions over uploaded files, joining tables by
// company when it can.
type SmartAnalyst struct {
	rt  ai.Runtime
	set Settings
	log *zap.Logger
}

// NewSmartAnalyst wires an analyst.
func NewSmartAnalyst(rt ai.Runtime, s Settings, log *zap.Logger) *SmartAnalyst {
	return &SmartAnalyst{rt: rt, set: s, log: logging.OrNop(log)}
}

// Analyze builds the data context for the question, asks the model and
// records the exchange in the request history. A failed model call yields an
// answer carrying the error and the collected context.
func (a *SmartAnalyst) Analyze(ctx context.Context, files Files, req Request) *Analysis {
	inputs := files.Tables()
	var images []ai.Image
	if req.IncludeImages {
		images = files.Images()
	}
	var notes []parser.Note
	if ns, ok := files.(NoteSource); ok {
		notes = ns.Notes()
	}
	joined := a.join(inputs)
	res := &Analysis{
		Query:   req.Query,
		Context: buildContext(req.Query, inputs, joined, notes, images),
		Joined:  joined.result,
		Tables:  resultTables(req.Query, inputs),
	}

	dataContext := prepareContext(res.Context, a.set)
	history := req.History.Prompt()
	var (
		text  string
		usage ai.Usage
		err   error
	)
	if len(images) > 0 {
		if len(images) > MaxImages {
			images = images[:MaxImages]
		}
		res.Images = len(images)
		text, usage, err = generate(ctx, a.rt, a.set, call{
			prompt:  multimodalPrompt(req.Query, dataContext, history, len(images)),
			images:  images,
			onDelta: req.OnDelta,
		})
		if err != nil {
			a.log.Warn("multimodal analysis failed, retrying with text only", zap.Error(err))
			res.Images = 0
		}
	}
	if len(images) == 0 || err != nil {
		text, usage, err = generate(ctx, a.rt, a.set, call{
			prompt:  analysisPrompt(req.Query, dataContext, history),
			onDelta: req.OnDelta,
		})
	}
	if err != nil {
		a.log.Error("model call failed", zap.String("model", a.set.Model), zap.Error(err))
		res.Err = err
		res.Answer = fmt.Sprintf("분석 중 오류 발생: %v\n\n데이터 컨텍스트:\n%s", err, res.Context)
		return res
	}
	res.Answer = text
	res.Usage = usage
	if req.History != nil {
		req.History.Add(req.Query, text)
	}
	return res
}

type joinOutcome struct {
	result *join.Result
	err    error
}

func (a *SmartAnalyst) join(inputs []join.Input) joinOutcome {
	if len(inputs) < 2 {
		return joinOutcome{}
	}
	res, err := join.ByCompany(inputs)
	switch {
	case err != nil:
		a.log.Warn("company join failed", zap.Error(err))
	case res != nil:
		a.log.Info("tables joined by company",
			zap.Strings("sources", res.Sources),
			zap.Int("rows", res.Table.Len()),
			zap.Int("columns", res.Table.Width()))
	default:
		a.log.Debug("no tables to join by company")
	}
	return joinOutcome{result: res, err: err}
}

func buildContext(query string, inputs []join.Input, joined joinOutcome, notes []parser.Note, images []ai.Image) string {
	parts := []string{"=== 업로드된 데이터 ===\n"}
	if len(inputs) > 0 {
		parts = append(parts, fmt.Sprintf("**테이블 데이터** (%d개 파일):\n", len(inputs)))
		if res := joined.result; res != nil {
			parts = append(parts,
				"\n[통합 데이터 (거래처 기준 조인)]",
				fmt.Sprintf("- 총 행 수: %s", table.FormatNumber(float64(res.Table.Len()))),
				fmt.Sprintf("- 총 열 수: %d", res.Table.Width()),
				fmt.Sprintf("- 거래처 수: %d\n", res.Companies()))
			if rel := relevantData(query, res.Table); rel != "" {
				parts = append(parts, "관련 데이터:", rel)
			}
			parts = append(parts, "\n**개별 파일 정보**:")
			for _, in := range inputs {
				parts = append(parts, fmt.Sprintf("- %s: %s행, %d열", in.Name, table.FormatNumber(float64(in.Table.Len())), in.Table.Width()))
			}
		} else {
			if joined.err != nil {
				parts = append(parts, fmt.Sprintf("(거래처 기준 통합 실패: %v)", joined.err))
			}
			for _, in := range inputs {
				parts = append(parts, fileBlock(query, in)...)
			}
		}
	}
	if len(notes) > 0 {
		parts = append(parts, fmt.Sprintf("\n**문서** (%d개):", len(notes)))
		for _, n := range notes {
			parts = append(parts, fmt.Sprintf("\n[%s]", n.Name), truncateRunes(n.Text, maxNoteRunes))
		}
	}
	if len(images) > 0 {
		parts = append(parts, fmt.Sprintf("\n**이미지** (%d개):", len(images)))
		for _, img := range images {
			parts = append(parts, "- "+img.Name)
		}
	}
	return strings.Join(parts, "\n")
}

func fileBlock(query string, in join.Input) []string {
	cols := in.Table.Columns()
	if len(cols) > 10 {
		cols = cols[:10]
	}
	out := []string{
		fmt.Sprintf("\n[%s]", in.Name),
		fmt.Sprintf("- 행 수: %s", table.FormatNumber(float64(in.Table.Len()))),
		fmt.Sprintf("- 열: %s", strings.Join(cols, ", ")),
	}
	if rel := relevantData(query, in.Table); rel != "" {
		out = append(out, "\n관련 데이터:", rel)
	}
	return out
}

// resultTables picks a table worth showing next to a ranking answer: the
// ten largest rows of the first table by its first numeric column.
func resultTables(query string, inputs []join.Input) []*table.Table {
	if !containsAny(strings.ToLower(query), []string{"상위", "top", "순위"}) {
		return nil
	}
	for _, in := range inputs {
		nums := in.Table.NumericColumns()
		if len(nums) == 0 {
			continue
		}
		return []*table.Table{in.Table.SortBy(nums[0], true).Head(10)}
	}
	return nil
}

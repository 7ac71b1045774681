package analyst

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/engine"
	"github.com/liszzmword/ai-data-analyst/internal/logging"
	"github.com/liszzmword/ai-data-analyst/internal/mask"
	"github.com/liszzmword/ai-data-analyst/internal/render"
	"github.com/liszzmword/ai-data-analyst/internal/router"
	"github.com/liszzmword/ai-data-analyst/internal/table"
)

// Response is the answer to one question of the router flow.
type Response struct {
	Query         string         `json:"query"`
	Filter        string         `json:"filter,omitempty"`
	Routing       router.Result  `json:"routing"`
	DataSummary   string         `json:"data_summary"`
	Analysis      string         `json:"analysis"`
	SQLEquivalent string         `json:"sql_equivalent,omitempty"`
	Usage         ai.Usage       `json:"usage"`
	Outcome       engine.Outcome `json:"-"`
	Err           error          `json:"-"`
}

// Format renders the response as markdown.
func (r *Response) Format() string {
	parts := []string{
		fmt.Sprintf("# 📊 질문: %s\n", r.Query),
		fmt.Sprintf("🎯 처리 모드: **%s** (%s) | %s\n", r.Routing.Mode, r.Routing.Mode.Label(), r.Routing.Reasoning),
		"---\n",
		"## 💡 분석 및 의견\n",
		r.Analysis,
		"\n---\n",
		"## 📋 수집된 데이터\n",
		fmt.Sprintf("```\n%s\n```", r.DataSummary),
	}
	return strings.Join(parts, "\n")
}

// Processor answers questions over the fixed datasets: classify, run the
// matching engine, then ask the model for an analysis of what was found.
type Processor struct {
	cls *router.Classifier
	eng *engine.Engine
	rt  ai.Runtime
	set Settings
	log *zap.Logger
}

// NewProcessor wires a processor. A nil runtime skips the model call and
// returns the collected data only.
func NewProcessor(cls *router.Classifier, eng *engine.Engine, rt ai.Runtime, s Settings, log *zap.Logger) *Processor {
	if cls == nil {
		cls = router.Default()
	}
	return &Processor{cls: cls, eng: eng, rt: rt, set: s, log: logging.OrNop(log)}
}

// Process answers query. filter selects a dataset or engine.All. Model
// failures are reported inside the response, never as a returned error.
func (p *Processor) Process(ctx context.Context, query, filter string, onDelta func(string)) *Response {
	routing := p.cls.Classify(query)
	p.log.Info("question classified",
		zap.String("mode", string(routing.Mode)),
		zap.Float64("confidence", routing.Confidence),
		zap.String("reasoning", routing.Reasoning))

	out := p.eng.Run(ctx, routing.Mode, query, filter)
	resp := &Response{
		Query:       query,
		Filter:      filter,
		Routing:     routing,
		Outcome:     out,
		DataSummary: Summarize(out),
	}
	if agg, ok := out.(*engine.AggregateResult); ok {
		resp.SQLEquivalent = agg.SQLEquivalent
	}
	if p.rt == nil {
		resp.Analysis = out.Answer()
		return resp
	}

	prompt := processorPrompt(query, prepareContext(resp.DataSummary, p.set))
	text, usage, err := generate(ctx, p.rt, p.set, call{prompt: prompt, onDelta: onDelta})
	if err != nil {
		p.log.Error("model call failed", zap.String("model", p.set.Model), zap.Error(err))
		resp.Err = err
		resp.Analysis = fmt.Sprintf("분석 중 오류 발생: %v\n\n수집된 데이터:\n%s", err, resp.DataSummary)
		return resp
	}
	resp.Analysis = text
	resp.Usage = usage
	return resp
}

// Summarize renders an engine outcome as the data section of a prompt.
func Summarize(out engine.Outcome) string {
	switch r := out.(type) {
	case *engine.AggregateResult:
		return summarizeAggregate(r)
	case *engine.LookupResult:
		return summarizeLookup(r)
	case *engine.ExplainResult:
		return summarizeExplain(r)
	}
	return ""
}

func summarizeAggregate(r *engine.AggregateResult) string {
	var parts []string
	if len(r.Conditions) > 0 {
		parts = append(parts, "**적용 조건**: "+strings.Join(r.Conditions, ", "))
	}
	if r.Table == nil || r.Table.Len() == 0 {
		parts = append(parts, r.Answer())
		return strings.Join(parts, "\n")
	}
	parts = append(parts, fmt.Sprintf("\n**계산 결과** (%d개 항목):\n", r.Table.Len()))
	parts = append(parts, render.Markdown(r.Table, 10))
	if len(r.SampleRows) > 0 {
		parts = append(parts, "\n\n**원본 데이터 샘플**:")
		for i, rec := range r.SampleRows {
			if i == 3 {
				break
			}
			parts = append(parts, fmt.Sprintf("\n%d. %s", i+1, recordLine(rec)))
		}
	}
	return strings.Join(parts, "\n")
}

func recordLine(rec table.Record) string {
	fields := make([]string, 0, len(rec.Fields))
	for _, f := range rec.Fields {
		if f.Value.IsNull() {
			continue
		}
		fields = append(fields, f.Name+": "+mask.Field(f.Name, f.Value.Display()))
	}
	return "{" + strings.Join(fields, ", ") + "}"
}

func summarizeLookup(r *engine.LookupResult) string {
	var parts []string
	if !r.Conditions.IsZero() {
		parts = append(parts, "**검색 조건**: "+r.Conditions.String())
	}
	if len(r.Records) == 0 {
		parts = append(parts, "검색 결과 없음")
		return strings.Join(parts, "\n")
	}
	parts = append(parts, fmt.Sprintf("\n**검색 결과**: %d개 레코드\n", len(r.Records)))
	for i, m := range r.Records {
		if i == 5 {
			break
		}
		parts = append(parts, fmt.Sprintf("\n[레코드 %d]", i+1))
		for j, f := range m.Fields {
			if j == 10 {
				break
			}
			parts = append(parts, fmt.Sprintf("  %s: %s", f.Name, f.Value))
		}
	}
	return strings.Join(parts, "\n")
}

func summarizeExplain(r *engine.ExplainResult) string {
	parts := []string{"**코드북 정보**:\n"}
	if len(r.Entries) == 0 {
		parts = append(parts, "관련 코드북 항목 없음")
		return strings.Join(parts, "\n")
	}
	for i, e := range r.Entries {
		parts = append(parts,
			fmt.Sprintf("%d. 번호: %s", i+1, orNA(e.Code)),
			fmt.Sprintf("   항목: %s", orNA(e.Name)),
			fmt.Sprintf("   설명: %s", orNA(e.Description)),
			fmt.Sprintf("   파일: %s\n", orNA(e.Kind)))
	}
	return strings.Join(parts, "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	cfgpkg "github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/notebook"
)

const testCodebookCSV = "파일 구분,번호,항목,항목설명\n" +
	"sales data,A-2,매출일,세금계산서 발행일\n" +
	"sales data,B-1,거래처,거래처 상호\n" +
	"sales data,D-5,합계,공급가액과 부가세의 합\n" +
	"거래처 데이터,B-1,거래처명,거래처 상호\n"

const testSalesCSV = "A-2,B-1,D-5\n" +
	"2024-01-05,한국상사,\"1,200\"\n" +
	"2024-02-10,대한기공,300\n"

type fakeRuntime struct {
	text string
	err  error
}

func (f fakeRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: f.text}}}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

// setupHome isolates config, notebooks and data under a temp HOME and writes
// the data directory. It returns the data directory.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ANALYST_API_KEY", "test-key-123456")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ANALYST_PROVIDER", "gemini")

	data := filepath.Join(home, "data")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	for name, body := range map[string]string{
		"데이터 db.csv":     testCodebookCSV,
		"sales data.csv": testSalesCSV,
		"거래처 데이터.csv":    "B-1,B-2\n한국상사,C001\n",
	} {
		if err := os.WriteFile(filepath.Join(data, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	t.Setenv("ANALYST_DATA_DIR", data)
	return data
}

// stubModels replaces the runtime and embedder constructors for one test.
func stubModels(t *testing.T, rt ai.Runtime) {
	t.Helper()
	prevRT, prevEmb := runtimeFactory, embedderFactory
	runtimeFactory = func(c *cfgpkg.Global, _ string) (ai.Runtime, string, error) {
		return rt, ai.ProviderGemini, nil
	}
	embedderFactory = func(*cfgpkg.Global) (ai.Embedder, string, error) {
		return fakeEmbedder{}, "fake", nil
	}
	t.Cleanup(func() { runtimeFactory, embedderFactory = prevRT, prevEmb })
}

// resetFlags restores every flag to its default so state does not leak
// between invocations of the shared root command.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		if sv, ok := fl.Value.(interface{ Replace([]string) error }); ok {
			_ = sv.Replace(nil)
		} else {
			_ = fl.Value.Set(fl.DefValue)
		}
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func TestCLI_Classify(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "classify", "2024년 매출 상위 5개 거래처")
	if !strings.Contains(out, "AGGREGATE") || !strings.Contains(out, "집계") {
		t.Fatalf("expected aggregate routing, got:\n%s", out)
	}
}

func TestCLI_AskWithoutModel(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "ask", "--no-llm", "--raw", "매출 상위 1개 거래처")
	if !strings.Contains(out, "한국상사") {
		t.Fatalf("expected top company in output, got:\n%s", out)
	}
	if !strings.Contains(out, "## 📋 수집된 데이터") {
		t.Fatalf("expected data section, got:\n%s", out)
	}
}

func TestCLI_AskUsesRuntime(t *testing.T) {
	setupHome(t)
	stubModels(t, fakeRuntime{text: "한국상사가 매출 1위입니다"})
	out := mustRun(t, "ask", "--raw", "매출 상위 1개 거래처")
	if !strings.Contains(out, "한국상사가 매출 1위입니다") {
		t.Fatalf("expected model answer, got:\n%s", out)
	}
}

func TestCLI_AskJSONReportsModelFailure(t *testing.T) {
	setupHome(t)
	stubModels(t, fakeRuntime{err: &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}}})
	out := mustRun(t, "ask", "--json", "매출 상위 1개 거래처")
	var payload struct {
		Query   string `json:"query"`
		Error   string `json:"error"`
		Hint    string `json:"hint"`
		Routing struct {
			Mode string `json:"mode"`
		} `json:"routing"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if payload.Error == "" || payload.Hint == "" {
		t.Fatalf("expected error and hint, got %+v", payload)
	}
	if payload.Routing.Mode != "AGGREGATE" {
		t.Fatalf("unexpected routing %q", payload.Routing.Mode)
	}
}

func TestCLI_AskValidation(t *testing.T) {
	setupHome(t)
	if _, err := runCmd(t, "ask", "--no-llm", "--dataset", "재고", "매출 합계"); err == nil {
		t.Fatalf("expected an error for an unknown dataset")
	}

	t.Setenv("ANALYST_API_KEY", "")
	_, err := runCmd(t, "ask", "매출 합계")
	if !errors.Is(err, cfgpkg.ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestCLI_Codebook(t *testing.T) {
	setupHome(t)
	out := mustRun(t, "codebook", "search", "매출일")
	if !strings.Contains(out, "A-2") {
		t.Fatalf("expected A-2 in search results, got:\n%s", out)
	}
	out = mustRun(t, "codebook", "list", "--kind", "거래처 데이터")
	if !strings.Contains(out, "거래처명") || strings.Contains(out, "매출일") {
		t.Fatalf("expected only client entries, got:\n%s", out)
	}
	out = mustRun(t, "codebook", "show", "d-5")
	if !strings.Contains(out, "공급가액과 부가세의 합") {
		t.Fatalf("expected D-5 description, got:\n%s", out)
	}
	if _, err := runCmd(t, "codebook", "show", "Z-9"); err == nil {
		t.Fatalf("expected an error for an unknown code")
	}
}

func TestCLI_IndexBuildAndSemanticSearch(t *testing.T) {
	setupHome(t)
	stubModels(t, fakeRuntime{text: "ok"})
	out := mustRun(t, "index", "build")
	if !strings.Contains(out, "Indexed 4 entries") {
		t.Fatalf("unexpected index output:\n%s", out)
	}
	out = mustRun(t, "index", "build", "--include", "sales data")
	if !strings.Contains(out, "Indexed 3 entries") {
		t.Fatalf("expected include filter to apply, got:\n%s", out)
	}
	out = mustRun(t, "codebook", "search", "--semantic", "발행일")
	if !strings.Contains(out, "A-2") {
		t.Fatalf("expected text hit to remain, got:\n%s", out)
	}
}

func TestCLI_Profile(t *testing.T) {
	data := setupHome(t)
	src := filepath.Join(data, "sales data.csv")
	out := mustRun(t, "profile", "-q", src)
	if !strings.Contains(out, "[데이터 요약]") || !strings.Contains(out, "행 수: 2") {
		t.Fatalf("unexpected profile output:\n%s", out)
	}

	dest := t.TempDir()
	mustRun(t, "profile", "-q", "--output", dest, filepath.Join(data, "*.csv"))
	if _, err := os.Stat(filepath.Join(dest, "sales data.summary.md")); err != nil {
		t.Fatalf("expected summary file: %v", err)
	}

	if _, err := runCmd(t, "profile", "-q", filepath.Join(data, "missing.csv")); err == nil {
		t.Fatalf("expected an error when no file can be profiled")
	}
}

func TestCLI_NotebookFlow(t *testing.T) {
	data := setupHome(t)
	mustRun(t, "notebook", "init", "q1", "-d", "1분기 검토")
	if _, err := runCmd(t, "notebook", "init", "q1"); !errors.Is(err, notebook.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	out := mustRun(t, "notebook", "add", "-n", "q1", filepath.Join(data, "sales data.csv"))
	if !strings.Contains(out, "2행 × 3열") {
		t.Fatalf("expected table shape, got:\n%s", out)
	}
	mustRun(t, "notebook", "set-model", "-n", "q1", "gemini-2.5-flash")

	out = mustRun(t, "notebook", "list")
	if !strings.Contains(out, "q1") || !strings.Contains(out, "1분기 검토") {
		t.Fatalf("expected notebook in list, got:\n%s", out)
	}
	out = mustRun(t, "notebook", "show", "q1")
	if !strings.Contains(out, "sales data.csv") || !strings.Contains(out, "model: gemini-2.5-flash") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	mustRun(t, "notebook", "remove", "-n", "q1", "sales data.csv")
	if _, err := runCmd(t, "notebook", "remove", "-n", "q1", "sales data.csv"); err == nil {
		t.Fatalf("expected an error removing a missing file")
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	setupHome(t)
	mustRun(t, "config", "set", "model", "gemini-2.5-pro")
	mustRun(t, "config", "set", "provider", "local")
	out := mustRun(t, "config", "show")
	if !strings.Contains(out, "gemini-2.5-pro") {
		t.Fatalf("expected saved model, got:\n%s", out)
	}
	if !strings.Contains(out, "tes****456") || strings.Contains(out, "test-key-123456") {
		t.Fatalf("expected masked api key, got:\n%s", out)
	}

	for _, args := range [][]string{
		{"config", "set", "provider", "openai"},
		{"config", "set", "max_tokens", "many"},
		{"config", "set", "temperature", "3"},
		{"config", "set", "nope", "1"},
	} {
		if _, err := runCmd(t, args...); err == nil {
			t.Fatalf("expected %v to fail", args)
		}
	}
}

func TestCLI_ModelsPresetPersists(t *testing.T) {
	setupHome(t)
	mustRun(t, "models", "preset", "ollama")
	dir, _ := cfgpkg.Dir()
	if _, err := os.Stat(filepath.Join(dir, "models.json")); err != nil {
		t.Fatalf("expected saved catalog: %v", err)
	}
	out := mustRun(t, "models", "show")
	if !strings.Contains(out, "llama3.1:8b") {
		t.Fatalf("expected preset model in catalog, got:\n%s", out)
	}
	out = mustRun(t, "models", "recommend", "--tier", "vision")
	if !strings.Contains(out, "gemini-2.5-flash") {
		t.Fatalf("unexpected recommendation:\n%s", out)
	}
	if _, err := runCmd(t, "models", "preset", "anthropic"); err == nil {
		t.Fatalf("expected an error for an unknown preset")
	}
}

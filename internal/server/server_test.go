package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/liszzmword/ai-data-analyst/internal/ai"
	"github.com/liszzmword/ai-data-analyst/internal/config"
	"github.com/liszzmword/ai-data-analyst/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoRuntime struct{ err error }

func (e echoRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if e.err != nil {
		return nil, e.err
	}
	text := "분석 완료"
	if len(req.Images) > 0 {
		text = "이미지 포함 분석 완료"
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: ai.RoleAssistant, Content: text}}}}, nil
}

func newTestServer(t *testing.T, rt ai.Runtime) *Server {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"데이터 db.csv": "파일 구분,번호,항목,항목설명\n" +
			"sales data,A-2,매출일,세금계산서 발행일\n" +
			"sales data,B-1,거래처,거래처 상호\n" +
			"sales data,D-5,합계,공급가액과 부가세의 합\n" +
			"영업일지,J-6,방문 목적,영업 담당자가 기록한 방문 사유\n",
		"sales data.csv": "A-2,B-1,D-5\n2024-01-05,한국상사,1200\n2024-02-10,대한기공,300\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	live, err := workspace.Open(context.Background(), workspace.PathsFrom(&config.Global{
		DataDir:      dir,
		CodebookFile: "데이터 db.csv",
		SalesFile:    "sales data.csv",
	}), nil)
	require.NoError(t, err)
	s, err := New(Config{Workspace: live, Runtime: rt, SessionSecret: "test-secret"})
	require.NoError(t, err)
	return s
}

type client struct {
	t       *testing.T
	h       http.Handler
	cookies []*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if got := rec.Result().Cookies(); len(got) > 0 {
		c.cookies = got
	}
	return rec
}

func (c *client) postJSON(path string, body any) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	require.NoError(c.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) upload(files map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, body := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(c.t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.WriteField("note", "ignored"))
	require.NoError(c.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, echoRuntime{}).Handler()}
	rec := c.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"매출"}, body["datasets"])
	assert.EqualValues(t, 4, body["codebook_entries"])
}

func TestClassify(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, nil).Handler()}
	rec := c.postJSON("/api/classify", map[string]string{"query": "what does field J-6 mean?"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "EXPLAIN", body["mode"])
	assert.Equal(t, "설명", body["label"])

	rec = c.postJSON("/api/classify", map[string]string{"query": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, echoRuntime{}).Handler()}
	rec := c.postJSON("/api/ask", map[string]string{"query": "매출 상위 1개 거래처"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "분석 완료", body["analysis"])
	assert.Contains(t, body["data_summary"], "한국상사")
	assert.Contains(t, body["markdown"], "## 💡 분석 및 의견")
	assert.NotContains(t, body, "error")

	rec = c.postJSON("/api/ask", map[string]string{"query": "합계", "dataset": "재고"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskReportsModelFailure(t *testing.T) {
	rt := echoRuntime{err: &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}}}
	c := &client{t: t, h: newTestServer(t, rt).Handler()}
	rec := c.postJSON("/api/ask", map[string]string{"query": "매출 합계"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.NotEmpty(t, body["hint"])
	assert.True(t, strings.HasPrefix(body["analysis"].(string), "분석 중 오류 발생"))
}

func TestCodebook(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, nil).Handler()}
	rec := c.do(httptest.NewRequest(http.MethodGet, "/api/codebook?q=J-6", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec)["entries"].([]any)
	require.NotEmpty(t, entries)
	assert.Equal(t, "J-6", entries[0].(map[string]any)["code"])

	rec = c.do(httptest.NewRequest(http.MethodGet, "/api/codebook?limit=2", nil))
	assert.Len(t, decode(t, rec)["entries"], 2)

	rec = c.do(httptest.NewRequest(http.MethodGet, "/api/codebook?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadChatAndDelete(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, echoRuntime{}).Handler()}

	rec := c.postJSON("/api/chat", map[string]string{"query": "요약해줘"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, c.cookies, "session cookie should be set")

	rec = c.upload(map[string]string{
		"sales data.csv": "거래처,합계\n한국상사,100\n대한기공,250\n",
		"setup.exe":      "x",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	require.Len(t, body["files"], 1)
	require.Len(t, body["errors"], 1)
	uploaded := body["files"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 2, uploaded["rows"])

	rec = c.upload(map[string]string{"회의록.txt": "대한기공 단가 협의\n다음 주 재방문"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	require.Len(t, body["files"], 1)
	assert.Empty(t, body["errors"])
	note := body["files"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", note["kind"])
	assert.Contains(t, note["summary"], "문서 파일: 회의록.txt")

	rec = c.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Len(t, decode(t, rec)["files"], 2)

	rec = c.postJSON("/api/chat", map[string]string{"query": "대한기공 매출 알려줘"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "분석 완료", body["answer"])
	assert.Contains(t, body["context"], "[대한기공 거래처 상세 분석]")
	assert.Contains(t, body["context"], "대한기공 단가 협의")

	// Another browser has its own session.
	other := &client{t: t, h: c.h}
	rec = other.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Empty(t, decode(t, rec)["files"])

	req := httptest.NewRequest(http.MethodDelete, "/api/files?id=missing", nil)
	assert.Equal(t, http.StatusNotFound, c.do(req).Code)
	req = httptest.NewRequest(http.MethodDelete, "/api/files?id="+uploaded["id"].(string), nil)
	assert.Equal(t, http.StatusNoContent, c.do(req).Code)
	req = httptest.NewRequest(http.MethodDelete, "/api/files?id="+note["id"].(string), nil)
	assert.Equal(t, http.StatusNoContent, c.do(req).Code)
	rec = c.do(httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Empty(t, decode(t, rec)["files"])
}

func TestUploadRejectsOnly(t *testing.T) {
	c := &client{t: t, h: newTestServer(t, nil).Handler()}
	rec := c.upload(map[string]string{"old.xls": "binary"})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestStateStorePrune(t *testing.T) {
	st := newStateStore()
	st.get("a")
	st.get("b").lastSeen = time.Now().Add(-2 * time.Hour)
	assert.Equal(t, 1, st.prune(time.Hour))
	assert.Equal(t, 1, st.len())
}

func TestServeListenerShutsDown(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	cl := &http.Client{Transport: tr, Timeout: 2 * time.Second}
	require.Eventually(t, func() bool {
		resp, err := cl.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	tr.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewRequiresWorkspace(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

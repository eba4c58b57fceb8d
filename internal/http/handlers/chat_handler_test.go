package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/llm"
	"github.com/averla/portfolio-ai-backend/internal/orchestrator"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

//
// Test fixtures
//

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// stubPipeline counts calls and replays a canned response or error.
type stubPipeline struct {
	resp      *orchestrator.Response
	err       error
	fragments []string

	queryCalls  int
	streamCalls int
}

func (s *stubPipeline) Query(_ context.Context, _ int64, _, _, _ string) (*orchestrator.Response, error) {
	s.queryCalls++
	return s.resp, s.err
}

func (s *stubPipeline) QueryStream(_ context.Context, _ int64, _, _, _ string, sink func(string) error) (*orchestrator.Response, error) {
	s.streamCalls++
	if s.err != nil {
		return nil, s.err
	}
	for _, f := range s.fragments {
		if err := sink(f); err != nil {
			return nil, err
		}
	}
	return s.resp, nil
}

type stubCatalog struct{ defs []llm.ToolDefinition }

func (s stubCatalog) Definitions() []llm.ToolDefinition { return s.defs }

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/ai/chat/query", h.ChatQuery)
	r.POST("/ai/chat/stream", h.ChatStream)
	r.GET("/ai/tools", h.ListTools)
	r.GET("/ai/chat/threads", h.ListThreads)
	r.GET("/ai/chat/threads/:id", h.GetThread)
	r.DELETE("/ai/chat/threads/:id", h.DeactivateThread)
	r.GET("/ai/chat/threads/:id/messages", h.ListThreadMessages)
	r.GET("/ai/incidents", h.ListIncidents)
	r.POST("/ai/incidents/:id/resolve", h.ResolveIncident)
	return r
}

func postJSON(r *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func getPath(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

//
// ChatQuery
//

func TestChatQuery_Validation(t *testing.T) {
	pipe := &stubPipeline{}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	// Missing query
	if w := postJSON(r, "/ai/chat/query", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing query = %d", w.Code)
	}
	// Whitespace-only query survives binding but fails sanitization
	if w := postJSON(r, "/ai/chat/query", `{"query":"  \n\n  "}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("blank query = %d", w.Code)
	}
	// Malformed thread id
	if w := postJSON(r, "/ai/chat/query", `{"query":"hi","thread_id":"not-a-uuid"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad thread id = %d", w.Code)
	}

	// Over the rune cap
	h.MaxQueryRunes = 5
	if w := postJSON(r, "/ai/chat/query", `{"query":"this is too long"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("over cap = %d", w.Code)
	}

	if pipe.queryCalls != 0 {
		t.Fatalf("pipeline reached on invalid input: %d calls", pipe.queryCalls)
	}
}

func TestChatQuery_CompletedTurn(t *testing.T) {
	db := newTestDB(t)
	pipe := &stubPipeline{resp: &orchestrator.Response{
		Status:   orchestrator.StatusCompleted,
		ThreadID: "51f46c39-3e3d-4b42-bd69-ef8a6a43d0a4",
		Content:  "Your top holding is AAPL.",
	}}
	h := New(db, pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/query", `{"query":"top holdings?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp orchestrator.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp.Status != orchestrator.StatusCompleted || resp.Content != "Your top holding is AAPL." {
		t.Fatalf("resp = %+v", resp)
	}
	if pipe.queryCalls != 1 {
		t.Fatalf("queryCalls = %d", pipe.queryCalls)
	}
}

func TestChatQuery_ThreadNotFoundMapsTo404(t *testing.T) {
	pipe := &stubPipeline{err: orchestrator.ErrThreadNotFound}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/query", `{"query":"hi","thread_id":"51f46c39-3e3d-4b42-bd69-ef8a6a43d0a4"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeNotFound {
		t.Fatalf("envelope = %s (err %v)", w.Body.String(), err)
	}
}

func TestChatQuery_PipelineErrorMapsTo500(t *testing.T) {
	pipe := &stubPipeline{err: context.DeadlineExceeded}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/query", `{"query":"hi"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeQueryFailed {
		t.Fatalf("envelope = %s (err %v)", w.Body.String(), err)
	}
}

func TestChatQuery_IdempotencyStoreAndReplay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Real thread + assistant message so the replay path can load content.
	th, err := repo.CreateThread(ctx, db, 1, "Holdings")
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	msg, err := repo.CreateMessage(db, th.ID, domain.RoleAssistant, "AAPL leads at 23%.", "", 6)
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	pipe := &stubPipeline{resp: &orchestrator.Response{
		Status:    orchestrator.StatusCompleted,
		ThreadID:  th.ID,
		MessageID: msg.ID,
		Content:   "AAPL leads at 23%.",
	}}
	h := New(db, pipe, stubCatalog{})
	r := newRouter(h)

	body := `{"query":"top holdings?","thread_id":"` + th.ID + `"}`
	headers := map[string]string{"Idempotency-Key": "retry-abc"}

	// First call goes to the pipeline and stores the key.
	w := postJSON(r, "/ai/chat/query", body, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("first call = %d body=%s", w.Code, w.Body.String())
	}
	if pipe.queryCalls != 1 {
		t.Fatalf("queryCalls = %d", pipe.queryCalls)
	}
	if _, err := repo.GetIdempotency(ctx, db, 1, th.ID, "retry-abc", time.Now().UTC()); err != nil {
		t.Fatalf("idempotency record not stored: %v", err)
	}

	// Retry replays the recorded message without a second pipeline call.
	w = postJSON(r, "/ai/chat/query", body, headers)
	if w.Code != http.StatusOK {
		t.Fatalf("retry = %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("missing Idempotency-Replayed header")
	}
	if pipe.queryCalls != 1 {
		t.Fatalf("pipeline re-invoked on replay: %d calls", pipe.queryCalls)
	}
	var resp orchestrator.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp.MessageID != msg.ID || resp.Content != "AAPL leads at 23%." {
		t.Fatalf("replayed resp = %+v", resp)
	}
}

func TestChatQuery_RejectedTurnNotStored(t *testing.T) {
	db := newTestDB(t)
	pipe := &stubPipeline{resp: &orchestrator.Response{
		Status:  orchestrator.StatusRejected,
		Content: "I can only help with portfolio and market questions.",
	}}
	h := New(db, pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/query", `{"query":"hi"}`, map[string]string{"Idempotency-Key": "k-rejected"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if has, _ := repo.HasIdempotency(context.Background(), db, 1, "k-rejected", time.Now().UTC()); has {
		t.Fatalf("rejected turn must not store an idempotency record")
	}
}

//
// ChatStream
//

func TestChatStream_DeltasAndTerminalFrame(t *testing.T) {
	pipe := &stubPipeline{
		fragments: []string{"Your top ", "holding is AAPL."},
		resp: &orchestrator.Response{
			Status:    orchestrator.StatusCompleted,
			ThreadID:  "51f46c39-3e3d-4b42-bd69-ef8a6a43d0a4",
			MessageID: "5b1e59da-9d4b-4a2c-b7fe-1f8d3f6de111",
			Content:   "Your top holding is AAPL.",
		},
	}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/stream", `{"query":"top holdings?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	body := w.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("frames = %d body=%q", len(frames), body)
	}

	var first streamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &first); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if first.Delta != "Your top " || first.Done {
		t.Fatalf("frame 0 = %+v", first)
	}

	var last streamEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[2], "data: ")), &last); err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if !last.Done || last.Status != string(orchestrator.StatusCompleted) || last.Content != "Your top holding is AAPL." {
		t.Fatalf("terminal frame = %+v", last)
	}
}

func TestChatStream_ValidationBeforeStreaming(t *testing.T) {
	pipe := &stubPipeline{}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/stream", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if pipe.streamCalls != 0 {
		t.Fatalf("streamCalls = %d", pipe.streamCalls)
	}
}

func TestChatStream_UnknownThreadReturns404BeforeSSE(t *testing.T) {
	db := newTestDB(t)
	pipe := &stubPipeline{
		fragments: []string{"Markets were calm."},
		resp:      &orchestrator.Response{Status: orchestrator.StatusCompleted, Content: "Markets were calm."},
	}
	h := New(db, pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/stream", `{"query":"hi","thread_id":"51f46c39-3e3d-4b42-bd69-ef8a6a43d0a4"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		t.Fatalf("SSE preamble written for unknown thread: %q", ct)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeNotFound {
		t.Fatalf("envelope = %s (err %v)", w.Body.String(), err)
	}
	if pipe.streamCalls != 0 {
		t.Fatalf("pipeline reached for unknown thread: %d calls", pipe.streamCalls)
	}

	// A thread the caller owns passes the pre-check and streams normally.
	th, err := repo.CreateThread(context.Background(), db, 1, "Markets")
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	w = postJSON(r, "/ai/chat/stream", `{"query":"hi","thread_id":"`+th.ID+`"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if pipe.streamCalls != 1 {
		t.Fatalf("streamCalls = %d; want 1", pipe.streamCalls)
	}
}

func TestChatStream_AbandonedWritesNothingFurther(t *testing.T) {
	pipe := &stubPipeline{err: orchestrator.ErrStreamAbandoned}
	h := New(newTestDB(t), pipe, stubCatalog{})
	r := newRouter(h)

	w := postJSON(r, "/ai/chat/stream", `{"query":"hi"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "done") {
		t.Fatalf("abandoned stream must not emit a terminal frame: %q", w.Body.String())
	}
}

//
// Tools
//

func TestListTools(t *testing.T) {
	defs := []llm.ToolDefinition{{
		Type:     "function",
		Function: llm.FunctionSpec{Name: "portfolio_holdings", Description: "current holdings", Parameters: json.RawMessage(`{"type":"object"}`)},
	}}
	h := New(newTestDB(t), &stubPipeline{}, stubCatalog{defs: defs})
	r := newRouter(h)

	w := getPath(r, "/ai/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListToolsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp.Count != 1 || len(resp.Tools) != 1 || resp.Tools[0].Function.Name != "portfolio_holdings" {
		t.Fatalf("resp = %+v", resp)
	}
}

//
// Helpers
//

func Test_sanitizeQuery(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"p1\n\n\n\n\np2", "p1\n\np2"},
		{"\n\n\n", ""},
	}
	for _, tc := range cases {
		if got := sanitizeQuery(tc.in); got != tc.want {
			t.Fatalf("sanitizeQuery(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func Test_accountID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Fallback without context or header
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	if got := accountID(c); got != 1 {
		t.Fatalf("fallback = %d", got)
	}

	// Header wins over fallback
	c.Request.Header.Set("X-Account-ID", "42")
	if got := accountID(c); got != 42 {
		t.Fatalf("header = %d", got)
	}

	// Context value wins over header
	c.Set("accountID", int64(7))
	if got := accountID(c); got != 7 {
		t.Fatalf("context = %d", got)
	}
}

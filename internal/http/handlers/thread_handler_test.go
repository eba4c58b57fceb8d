package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

func TestListThreads_PaginationAndETag(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, title := range []string{"Holdings", "Performance", "Rebalancing"} {
		if _, err := repo.CreateThread(ctx, db, 1, title); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Another account's thread must not leak into the listing.
	if _, err := repo.CreateThread(ctx, db, 2, "Other account"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	w := getPath(r, "/ai/chat/threads?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	var resp ListThreadsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Threads) != 2 {
		t.Fatalf("page len = %d", len(resp.Threads))
	}
	if resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
	for _, th := range resp.Threads {
		if th.AccountID != 1 {
			t.Fatalf("foreign thread leaked: %+v", th)
		}
	}

	// Conditional revalidation returns 304 with no body.
	w = getPath(r, "/ai/chat/threads?page=1&page_size=2", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("revalidation = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("304 carried a body: %q", w.Body.String())
	}

	// New activity changes the ETag, so the stale tag misses.
	if _, err := repo.CreateThread(ctx, db, 1, "Dividends"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w = getPath(r, "/ai/chat/threads?page=1&page_size=2", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag should refetch, got %d", w.Code)
	}
}

func TestGetThread(t *testing.T) {
	db := newTestDB(t)
	th, err := repo.CreateThread(context.Background(), db, 1, "Holdings")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	// Happy path
	w := getPath(r, "/ai/chat/threads/"+th.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.ConversationThread
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.ID != th.ID {
		t.Fatalf("body = %s (err %v)", w.Body.String(), err)
	}

	// Malformed id
	if w := getPath(r, "/ai/chat/threads/nope", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}

	// Unknown id
	if w := getPath(r, "/ai/chat/threads/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown id = %d", w.Code)
	}

	// Wrong owner
	if w := getPath(r, "/ai/chat/threads/"+th.ID, map[string]string{"X-Account-ID": "2"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign owner = %d", w.Code)
	}
}

func TestDeactivateThread(t *testing.T) {
	db := newTestDB(t)
	th, err := repo.CreateThread(context.Background(), db, 1, "Holdings")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/ai/chat/threads/"+th.ID, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}

	got, err := repo.GetThread(context.Background(), db, th.ID, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.IsActive {
		t.Fatalf("thread still active after deactivation")
	}

	// Deactivating a missing thread is a 404.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/ai/chat/threads/"+uuid.NewString(), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing thread = %d", w.Code)
	}
}

func TestListThreadMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	th, err := repo.CreateThread(ctx, db, 1, "Holdings")
	if err != nil {
		t.Fatalf("seed thread: %v", err)
	}
	if _, err := repo.CreateMessage(db, th.ID, domain.RoleUser, "top holdings?", "", 3); err != nil {
		t.Fatalf("seed msg: %v", err)
	}
	if _, err := repo.CreateMessage(db, th.ID, domain.RoleAssistant, "AAPL leads.", "", 3); err != nil {
		t.Fatalf("seed msg: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	// Ownership: another account sees 404, not an empty page.
	if w := getPath(r, "/ai/chat/threads/"+th.ID+"/messages", map[string]string{"X-Account-ID": "2"}); w.Code != http.StatusNotFound {
		t.Fatalf("foreign owner = %d", w.Code)
	}

	w := getPath(r, "/ai/chat/threads/"+th.ID+"/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag")
	}

	var resp ListThreadMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Messages) != 2 || resp.Pagination.Total != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	// Oldest first.
	if resp.Messages[0].Role != domain.RoleUser || resp.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("ordering = [%s, %s]", resp.Messages[0].Role, resp.Messages[1].Role)
	}

	// page_size=1 splits the history.
	w = getPath(r, "/ai/chat/threads/"+th.ID+"/messages?page=2&page_size=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("page 2 = %d", w.Code)
	}
	resp = ListThreadMessagesResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Pagination.HasNext {
		t.Fatalf("page 2 resp = %+v", resp)
	}
}

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mk := func(q string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+q, nil)
		return c
	}

	if p, s := clampPagination(mk("")); p != 1 || s != 20 {
		t.Fatalf("defaults = (%d, %d)", p, s)
	}
	if p, s := clampPagination(mk("page=0&page_size=0")); p != 1 || s != 1 {
		t.Fatalf("floors = (%d, %d)", p, s)
	}
	if p, s := clampPagination(mk("page=3&page_size=500")); p != 3 || s != 100 {
		t.Fatalf("ceiling = (%d, %d)", p, s)
	}
	if p, s := clampPagination(mk("page=x&page_size=y")); p != 1 || s != 20 {
		t.Fatalf("junk = (%d, %d)", p, s)
	}
}

func Test_paginationMeta(t *testing.T) {
	m := paginationMeta(1, 20, 45)
	if m.TotalPages != 3 || !m.HasNext {
		t.Fatalf("meta = %+v", m)
	}
	m = paginationMeta(3, 20, 45)
	if m.HasNext {
		t.Fatalf("last page should not have next: %+v", m)
	}
	m = paginationMeta(1, 20, 0)
	if m.TotalPages != 0 || m.HasNext {
		t.Fatalf("empty meta = %+v", m)
	}
}

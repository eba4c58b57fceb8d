// Thread HTTP handlers.
//
// This file exposes REST endpoints for conversation threads:
//   - GET    /ai/chat/threads                (list, paginated, ETag support)
//   - GET    /ai/chat/threads/{id}           (fetch one thread)
//   - DELETE /ai/chat/threads/{id}           (deactivate)
//   - GET    /ai/chat/threads/{id}/messages  (list paginated messages, ETag support)
//
// Handlers are transport-thin: they validate input, call the repository
// layer, and translate results into HTTP responses (including conditional
// responses).
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
	"github.com/averla/portfolio-ai-backend/internal/utils"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListThreadsResponse wraps a page of threads and pagination information.
type ListThreadsResponse struct {
	Threads    []domain.ConversationThread `json:"threads"`
	Pagination Pagination                  `json:"pagination"`
}

// ListThreadMessagesResponse contains a page of messages and pagination metadata.
type ListThreadMessagesResponse struct {
	Messages   []domain.ChatMessage `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// ListThreads godoc
// @ID          listThreads
// @Summary     List conversation threads (paginated)
// @Description Returns a page of the account's threads, newest activity first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Threads
// @Produce     json
//
// @Param       X-Account-ID   header  string  false "Account ID (demo header)"     example(1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                   minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"                minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListThreadsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /ai/chat/threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	acct := accountID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.ThreadsStats(ctx, h.DB, acct); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"threads:%d:%d:%d"`, acct, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	total, err := repo.CountThreads(ctx, h.DB, acct)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListThreadsPage(ctx, h.DB, acct, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListThreadsResponse{
		Threads:    items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// GetThread godoc
// @ID          getThread
// @Summary     Fetch a conversation thread
// @Description Returns a single thread owned by the current account.
// @Tags        Threads
// @Produce     json
//
// @Param       X-Account-ID  header  string  false "Account ID (demo header)"  example(1)
// @Param       id            path    string  true  "Thread ID (UUID)"          format(uuid)
//
// @Success     200  {object} domain.ConversationThread
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /ai/chat/threads/{id} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	th, err := repo.GetThread(c.Request.Context(), h.DB, threadID, accountID(c))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, th)
}

// DeactivateThread godoc
// @ID          deactivateThread
// @Summary     Deactivate a conversation thread
// @Description Marks a thread inactive. Deactivated threads are excluded from
// @Description thread resolution and eventually purged by the retention job;
// @Description their history remains readable until then.
// @Tags        Threads
//
// @Param       X-Account-ID  header  string  false "Account ID (demo header)"  example(1)
// @Param       id            path    string  true  "Thread ID (UUID)"          format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Router      /ai/chat/threads/{id} [delete]
func (h *Handlers) DeactivateThread(c *gin.Context) {
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	if err := repo.DeactivateThread(c.Request.Context(), h.DB, threadID, accountID(c)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListThreadMessages godoc
// @ID          listThreadMessages
// @Summary     List messages in a thread
// @Description Returns a paginated list of messages for the given thread,
// @Description oldest first. Supports weak ETag via If-None-Match.
// @Tags        Threads
// @Produce     json
//
// @Param       X-Account-ID   header  string  false "Account ID (demo header)"    example(1)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Thread ID (UUID)"            format(uuid)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListThreadMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /ai/chat/threads/{id}/messages [get]
func (h *Handlers) ListThreadMessages(c *gin.Context) {
	ctx := c.Request.Context()
	threadID := c.Param("id")

	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	// Ownership check before exposing history.
	if _, err := repo.GetThread(ctx, h.DB, threadID, accountID(c)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	// ETag pre-check (best effort).
	if count, maxTS, err := repo.MessagesStats(ctx, h.DB, threadID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, threadID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampPagination(c)

	total, err := repo.CountMessages(h.DB, threadID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListMessagesPage(h.DB, threadID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListThreadMessagesResponse{
		Messages:   items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

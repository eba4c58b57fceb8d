// Chat HTTP handlers.
//
// This file exposes the REST endpoints driving the AI pipeline:
//   - POST /ai/chat/query    (one-shot query, full pipeline)
//   - POST /ai/chat/stream   (streaming query over SSE)
//   - GET  /ai/tools         (advertised tool definitions)
//
// Handlers are transport-thin: they validate input, call the orchestrator,
// and translate results into HTTP responses. Guardrail rejections and
// pipeline failures are normal 200 responses; the envelope's `status` field
// tells the client how to render them.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (account, thread, key), the handler returns the recorded
// assistant message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/http/middleware"
	"github.com/averla/portfolio-ai-backend/internal/llm"
	"github.com/averla/portfolio-ai-backend/internal/orchestrator"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

//
// Service contracts (context-aware)
//

// QueryService runs the chat pipeline for one user turn. Satisfied by
// *orchestrator.Orchestrator; implementations must be safe for concurrent
// use and must honor the provided context.
type QueryService interface {
	// Query runs the full single-shot pipeline.
	Query(ctx context.Context, accountID int64, threadID, query, contextDate string) (*orchestrator.Response, error)
	// QueryStream runs the pipeline forwarding answer fragments to sink.
	QueryStream(ctx context.Context, accountID int64, threadID, query, contextDate string, sink func(string) error) (*orchestrator.Response, error)
}

// ToolCatalog exposes the advertised tool definitions. Satisfied by
// *tools.Registry.
type ToolCatalog interface {
	Definitions() []llm.ToolDefinition
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for chat, threads, and incidents.
// The DB handle serves read-side concerns the orchestrator does not cover:
// listings, ETags, and idempotency records.
type Handlers struct {
	DB       *gorm.DB
	Pipeline QueryService
	Tools    ToolCatalog

	// MaxQueryRunes caps query length at the edge; <= 0 disables the check
	// (the input guardrail still enforces its own ceiling).
	MaxQueryRunes int

	// IdempotencyTTL bounds how long a stored Idempotency-Key replays.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given collaborators.
func New(db *gorm.DB, pipeline QueryService, catalog ToolCatalog) *Handlers {
	return &Handlers{DB: db, Pipeline: pipeline, Tools: catalog, MaxQueryRunes: 5000, IdempotencyTTL: 24 * time.Hour}
}

// accountID extracts the authenticated account id from Gin context (set by
// upstream middleware). If absent, it falls back to the "X-Account-ID"
// header (tests use it), and finally to the demo account 1.
func accountID(c *gin.Context) int64 {
	if v, ok := c.Get("accountID"); ok {
		if id, ok := v.(int64); ok && id > 0 {
			return id
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Account-ID")); h != "" {
			if id, err := strconv.ParseInt(h, 10, 64); err == nil && id > 0 {
				return id
			}
		}
	}
	return 1
}

//
// DTOs
//

// ChatQueryRequest is the JSON payload for submitting a chat query.
type ChatQueryRequest struct {
	// Query is the user's question. It must be non-empty.
	Query string `json:"query" binding:"required,min=1" example:"What are my top holdings today?"`
	// ThreadID optionally continues an existing conversation thread.
	ThreadID string `json:"thread_id,omitempty" format:"uuid"`
	// ContextDate optionally anchors "today" for date resolution (YYYY-MM-DD).
	ContextDate string `json:"context_date,omitempty" example:"2026-08-28"`
}

// ListToolsResponse wraps the advertised tool definitions.
type ListToolsResponse struct {
	Tools []llm.ToolDefinition `json:"tools"`
	Count int                  `json:"count"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeQuery normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeQuery(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// idempotencyKey reads a validated key if an upstream middleware stashed
// one; it falls back to the raw "Idempotency-Key" header so the handlers
// also work when mounted without the validator.
func idempotencyKey(c *gin.Context) string {
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		return key
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

//
// Handlers
//

// ChatQuery godoc
// @ID          chatQuery
// @Summary     Submit a chat query
// @Description Runs the full AI pipeline: input validation, tool-assisted model call,
// @Description output validation, and persistence. Rejections and failures are returned
// @Description as 200 responses with the corresponding `status`.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-Account-ID     header  string  false "Account ID (demo header)"  example(1)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.ChatQueryRequest  true  "Query payload"
//
// @Success     200  {object}  orchestrator.Response
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Thread not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /ai/chat/query [post]
func (h *Handlers) ChatQuery(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}
	if req.ThreadID != "" {
		if _, err := uuid.Parse(req.ThreadID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
			return
		}
	}

	query := sanitizeQuery(req.Query)
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}
	if h.MaxQueryRunes > 0 && utf8.RuneCountInString(query) > h.MaxQueryRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("query too long: max %d runes", h.MaxQueryRunes))
		return
	}

	acct := accountID(c)

	// Idempotency (replay path).
	idemKey := idempotencyKey(c)
	if idemKey != "" && h.DB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.DB, acct, req.ThreadID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := repo.GetMessage(h.DB, rec.MessageID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, orchestrator.Response{
					Status:    orchestrator.StatusCompleted,
					ThreadID:  prev.ThreadID,
					MessageID: prev.ID,
					Content:   prev.Content,
				})
				return
			}
		}
	}

	resp, err := h.Pipeline.Query(ctx, acct, req.ThreadID, query, req.ContextDate)
	if err != nil {
		if errors.Is(err, orchestrator.ErrThreadNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, err.Error())
		return
	}

	// Idempotency (store path) – completed turns only, best effort. Records
	// key on the client-supplied thread id so retries of the same request
	// tuple replay deterministically.
	if idemKey != "" && h.DB != nil && resp.Status == orchestrator.StatusCompleted && resp.MessageID != "" {
		ttl := h.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		_, _ = repo.CreateIdempotency(ctx, h.DB, acct, req.ThreadID, idemKey, resp.MessageID, http.StatusOK, ttl)
	}

	ok(c, http.StatusOK, resp)
}

// streamEvent is one SSE data frame. Exactly one of Delta or the terminal
// fields is populated per frame.
type streamEvent struct {
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Status    string `json:"status,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ChatStream godoc
// @ID          chatStream
// @Summary     Submit a chat query with a streamed answer
// @Description Runs the AI pipeline in streaming mode over Server-Sent Events.
// @Description Each data frame is a JSON object carrying either a `delta` fragment or
// @Description the terminal frame (`done: true`) with the turn's final status. A client
// @Description disconnect abandons the turn without persistence.
// @Tags        Chat
// @Accept      json
// @Produce     text/event-stream
//
// @Param       X-Account-ID  header  string  false "Account ID (demo header)"  example(1)
// @Param       body          body    handlers.ChatQueryRequest  true  "Query payload"
//
// @Success     200  {string}  string "SSE stream"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Thread not found"
// @Router      /ai/chat/stream [post]
func (h *Handlers) ChatStream(c *gin.Context) {
	ctx := c.Request.Context()

	var req ChatQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}
	if req.ThreadID != "" {
		if _, err := uuid.Parse(req.ThreadID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
			return
		}
	}
	query := sanitizeQuery(req.Query)
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "query required")
		return
	}

	// Resolve the thread before committing to SSE: once the preamble is
	// written, an unknown thread could only surface as a failed terminal
	// frame instead of the 404 the one-shot endpoint returns.
	if req.ThreadID != "" && h.DB != nil {
		if _, err := repo.GetThread(ctx, h.DB, req.ThreadID, accountID(c)); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				fail(c, http.StatusNotFound, ErrCodeNotFound, "thread not found")
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeQueryFailed, err.Error())
			return
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	sink := func(fragment string) error {
		return writeSSE(c, streamEvent{Delta: fragment})
	}

	resp, err := h.Pipeline.QueryStream(ctx, accountID(c), req.ThreadID, query, req.ContextDate, sink)
	if err != nil {
		// Abandoned stream: the client is gone, nothing left to write.
		if errors.Is(err, orchestrator.ErrStreamAbandoned) {
			return
		}
		_ = writeSSE(c, streamEvent{Done: true, Status: string(orchestrator.StatusFailed)})
		return
	}

	_ = writeSSE(c, streamEvent{
		Done:      true,
		Status:    string(resp.Status),
		ThreadID:  resp.ThreadID,
		MessageID: resp.MessageID,
		Content:   resp.Content,
	})
}

// writeSSE serializes one event as an SSE data frame and flushes it.
func writeSSE(c *gin.Context, ev streamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// ListTools godoc
// @ID          listTools
// @Summary     List available AI tools
// @Description Returns the tool definitions the model may call, including their
// @Description JSON Schema parameter contracts.
// @Tags        Chat
// @Produce     json
//
// @Success     200  {object}  handlers.ListToolsResponse
// @Router      /ai/tools [get]
func (h *Handlers) ListTools(c *gin.Context) {
	defs := h.Tools.Definitions()
	ok(c, http.StatusOK, ListToolsResponse{Tools: defs, Count: len(defs)})
}

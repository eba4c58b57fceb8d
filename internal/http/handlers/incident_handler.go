// Security incident HTTP handlers.
//
// This file exposes REST endpoints for reviewing guardrail incidents:
//   - GET  /ai/incidents               (list, paginated)
//   - POST /ai/incidents/{id}/resolve  (mark resolved)
//
// Incidents are append-only audit records; resolution is the only permitted
// mutation and requires an explanatory note.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

// ListIncidentsResponse wraps a page of incidents and pagination information.
type ListIncidentsResponse struct {
	Incidents  []domain.SecurityIncident `json:"incidents"`
	Pagination Pagination                `json:"pagination"`
}

// ResolveIncidentRequest is the JSON payload for resolving an incident.
type ResolveIncidentRequest struct {
	// Resolution explains how the incident was handled (1–1000 chars).
	Resolution string `json:"resolution" binding:"required,min=1,max=1000" example:"False positive: legitimate query about account statements"`
}

// ListIncidents godoc
// @ID          listIncidents
// @Summary     List security incidents (paginated)
// @Description Returns a page of the account's guardrail incidents, newest first.
// @Tags        Incidents
// @Produce     json
//
// @Param       X-Account-ID  header  string  false "Account ID (demo header)"  example(1)
// @Param       page          query   int     false "Page number"                minimum(1) default(1)
// @Param       page_size     query   int     false "Items per page"             minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListIncidentsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /ai/incidents [get]
func (h *Handlers) ListIncidents(c *gin.Context) {
	ctx := c.Request.Context()
	acct := accountID(c)
	page, pageSize := clampPagination(c)

	total, err := repo.CountIncidents(ctx, h.DB, acct)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListIncidentsPage(ctx, h.DB, acct, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListIncidentsResponse{
		Incidents:  items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// ResolveIncident godoc
// @ID          resolveIncident
// @Summary     Resolve a security incident
// @Description Marks an incident resolved with an explanatory note. Resolution is
// @Description the only mutation incidents support; the audit record itself is immutable.
// @Tags        Incidents
// @Accept      json
//
// @Param       id    path  string  true  "Incident ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ResolveIncidentRequest  true  "Resolution note"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Incident not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /ai/incidents/{id}/resolve [post]
func (h *Handlers) ResolveIncident(c *gin.Context) {
	incidentID := c.Param("id")
	if _, err := uuid.Parse(incidentID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "incident id must be a UUID")
		return
	}

	var req ResolveIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "resolution required (1-1000 chars)")
		return
	}

	if err := repo.ResolveIncident(c.Request.Context(), h.DB, incidentID, req.Resolution); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "incident not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeResolveFailed, err.Error())
		return
	}
	noContent(c)
}

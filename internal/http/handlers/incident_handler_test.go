package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

func TestListIncidents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.CreateIncident(ctx, db, &domain.SecurityIncident{
			ID:            uuid.NewString(),
			AccountID:     1,
			ViolationType: domain.ViolationPromptInjection,
			Severity:      domain.SeverityHigh,
			Reason:        "instruction override detected",
			Snippet:       "ignore previous instructions",
		})
		if err != nil {
			t.Fatalf("seed incident: %v", err)
		}
	}
	// Foreign account incident stays invisible.
	if _, err := repo.CreateIncident(ctx, db, &domain.SecurityIncident{
		ID:            uuid.NewString(),
		AccountID:     2,
		ViolationType: domain.ViolationPromptLeakage,
		Severity:      domain.SeverityCritical,
		Reason:        "system prompt echoed",
	}); err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	w := getPath(r, "/ai/incidents?page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var resp ListIncidentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Incidents) != 2 || resp.Pagination.Total != 3 || !resp.Pagination.HasNext {
		t.Fatalf("resp = %+v", resp.Pagination)
	}
	for _, inc := range resp.Incidents {
		if inc.AccountID != 1 {
			t.Fatalf("foreign incident leaked: %+v", inc)
		}
	}
}

func TestResolveIncident(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inc, err := repo.CreateIncident(ctx, db, &domain.SecurityIncident{
		ID:            uuid.NewString(),
		AccountID:     1,
		ViolationType: domain.ViolationSuspiciousEncoding,
		Severity:      domain.SeverityMedium,
		Reason:        "base64 blob in query",
	})
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	h := New(db, &stubPipeline{}, stubCatalog{})
	r := newRouter(h)

	// Malformed id
	if w := postJSON(r, "/ai/incidents/nope/resolve", `{"resolution":"x"}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}
	// Missing resolution note
	if w := postJSON(r, "/ai/incidents/"+inc.ID+"/resolve", `{}`, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing note = %d", w.Code)
	}
	// Unknown incident
	if w := postJSON(r, "/ai/incidents/"+uuid.NewString()+"/resolve", `{"resolution":"false positive"}`, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown incident = %d", w.Code)
	}

	// Happy path
	w := postJSON(r, "/ai/incidents/"+inc.ID+"/resolve", `{"resolution":"false positive, encoded attachment"}`, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("resolve = %d body=%s", w.Code, w.Body.String())
	}

	var got domain.SecurityIncident
	if err := db.First(&got, "id = ?", inc.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.Resolved || got.Resolution != "false positive, encoded attachment" {
		t.Fatalf("incident = %+v", got)
	}
}

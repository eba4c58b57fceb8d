// Package security persists guardrail violations as auditable incidents.
// Recording never fails the calling pipeline: when the database write
// fails, the incident is still emitted as a structured log entry so the
// signal survives.
package security

import (
	"context"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

const maxSnippetLen = 200

// Sink records security incidents.
type Sink struct {
	db *gorm.DB
}

// NewSink returns a Sink writing to db.
func NewSink(db *gorm.DB) *Sink {
	return &Sink{db: db}
}

// Record persists one incident. It never returns an error: persistence
// failures are logged with the full incident context instead, so guardrail
// handling can't be broken by a storage hiccup. The offending text is
// clipped before storage.
func (s *Sink) Record(ctx context.Context, accountID int64, vt domain.ViolationType, sev domain.Severity, reason, snippet string) {
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}

	inc := &domain.SecurityIncident{
		AccountID:     accountID,
		ViolationType: vt,
		Severity:      sev,
		Reason:        reason,
		Snippet:       snippet,
		ThreatLevel:   string(sev),
	}
	if _, err := repo.CreateIncident(ctx, s.db, inc); err != nil {
		log.Error().
			Err(err).
			Int64("account_id", accountID).
			Str("violation_type", string(vt)).
			Str("severity", string(sev)).
			Str("reason", reason).
			Msg("failed to persist security incident")
		return
	}

	log.Warn().
		Int64("account_id", accountID).
		Str("violation_type", string(vt)).
		Str("severity", string(sev)).
		Str("incident_id", inc.ID).
		Msg("security incident recorded")
}

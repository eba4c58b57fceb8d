package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/config"
	"github.com/averla/portfolio-ai-backend/internal/domain"
	"github.com/averla/portfolio-ai-backend/internal/repo"
)

// Summarizer condenses one day of messages into free-text summary and
// learned user preferences. The default extractive implementation is used
// when no model-backed summarizer is wired in.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.ChatMessage) (summary, preferences string, err error)
}

// Context is what the orchestrator puts in front of the model: the most
// recent daily summary (nil when none exists) plus a bounded window of raw
// messages in chronological order.
type Context struct {
	Summary *domain.MemorySummary
	Recent  []domain.ChatMessage
}

// Manager implements bounded conversation memory over the message and
// summary tables.
type Manager struct {
	db         *gorm.DB
	cfg        config.MemoryConfig
	summarizer Summarizer
}

// NewManager returns a Manager. summarizer may be nil, in which case daily
// summaries are built extractively from the messages themselves.
func NewManager(db *gorm.DB, cfg config.MemoryConfig, summarizer Summarizer) *Manager {
	return &Manager{db: db, cfg: cfg, summarizer: summarizer}
}

// GetRecentContext returns the latest summary and the last RecentWindow
// messages for a thread. A thread with no summary yet returns Summary nil;
// a brand-new thread returns both empty.
func (m *Manager) GetRecentContext(ctx context.Context, threadID string) (*Context, error) {
	recent, err := repo.ListRecentMessages(m.db.WithContext(ctx), threadID, m.cfg.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	out := &Context{Recent: recent}
	summary, err := repo.LatestSummary(ctx, m.db, threadID)
	switch {
	case err == nil:
		out.Summary = summary
	case errors.Is(err, repo.ErrNotFound):
		// no summary yet
	default:
		return nil, fmt.Errorf("load latest summary: %w", err)
	}
	return out, nil
}

// Summarize compacts a thread's messages for one UTC day (YYYY-MM-DD) into
// a MemorySummary. It is idempotent per (threadID, date): re-running updates
// the existing row in place. Days with no messages are a no-op returning nil.
func (m *Manager) Summarize(ctx context.Context, threadID, date string) (*domain.MemorySummary, error) {
	msgs, err := repo.ListMessagesForDay(m.db.WithContext(ctx), threadID, date)
	if err != nil {
		return nil, fmt.Errorf("load day messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	var summary, prefs string
	if m.summarizer != nil {
		summary, prefs, err = m.summarizer.Summarize(ctx, msgs)
		if err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("model summarization failed, falling back to extractive")
			summary, prefs = extractiveSummary(msgs)
		}
	} else {
		summary, prefs = extractiveSummary(msgs)
	}

	texts := make([]string, 0, len(msgs))
	tokens := 0
	for _, msg := range msgs {
		texts = append(texts, msg.Content)
		tokens += msg.TokenCount
	}

	row := &domain.MemorySummary{
		ThreadID:        threadID,
		SummaryDate:     date,
		Summary:         summary,
		KeyTopics:       strings.Join(ExtractTopics(texts, 5), ","),
		UserPreferences: prefs,
		MessageCount:    len(msgs),
		TotalTokens:     tokens,
	}
	saved, err := repo.UpsertSummary(ctx, m.db, row)
	if err != nil {
		return nil, fmt.Errorf("upsert summary: %w", err)
	}
	log.Info().
		Str("thread_id", threadID).
		Str("date", date).
		Int("messages", saved.MessageCount).
		Msg("thread day summarized")
	return saved, nil
}

// SummarizeIfDue summarizes the given day only when its message count has
// reached the configured threshold. Returns true when a summary was written.
func (m *Manager) SummarizeIfDue(ctx context.Context, threadID, date string) (bool, error) {
	msgs, err := repo.ListMessagesForDay(m.db.WithContext(ctx), threadID, date)
	if err != nil {
		return false, err
	}
	if len(msgs) < m.cfg.SummaryThreshold {
		return false, nil
	}
	_, err = m.Summarize(ctx, threadID, date)
	return err == nil, err
}

// PurgeExpired hard-deletes inactive threads whose last activity predates
// the retention cutoff. Messages and summaries follow via FK cascade.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.UTC().Add(-m.cfg.RetentionCutoff)
	n, err := repo.PurgeInactiveThreads(ctx, m.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge inactive threads: %w", err)
	}
	if n > 0 {
		log.Info().Int64("threads", n).Time("cutoff", cutoff).Msg("purged inactive threads")
	}
	return n, nil
}

// extractiveSummary builds a cheap summary without a model: the day's user
// questions, clipped, joined into one digest. Preferences are not inferred
// on this path.
func extractiveSummary(msgs []domain.ChatMessage) (summary, preferences string) {
	var asked []string
	for _, m := range msgs {
		if m.Role != domain.RoleUser {
			continue
		}
		q := strings.TrimSpace(m.Content)
		if len(q) > 140 {
			q = q[:140] + "..."
		}
		if q != "" {
			asked = append(asked, q)
		}
	}
	if len(asked) == 0 {
		return "No user questions recorded.", ""
	}
	return "User asked: " + strings.Join(asked, " | "), ""
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MemorySummary model.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// UpsertSummary writes the daily summary for (threadID, date), updating the
// existing row in place when one exists. This is what makes summarization
// idempotent per (thread, date): re-running never duplicates.
func UpsertSummary(ctx context.Context, db *gorm.DB, s *domain.MemorySummary) (*domain.MemorySummary, error) {
	var existing domain.MemorySummary
	err := db.WithContext(ctx).
		Where("thread_id = ? AND summary_date = ?", s.ThreadID, s.SummaryDate).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"summary":          s.Summary,
			"key_topics":       s.KeyTopics,
			"user_preferences": s.UserPreferences,
			"message_count":    s.MessageCount,
			"total_tokens":     s.TotalTokens,
		}
		if uerr := db.WithContext(ctx).Model(&existing).Updates(updates).Error; uerr != nil {
			return nil, uerr
		}
		existing.Summary = s.Summary
		existing.KeyTopics = s.KeyTopics
		existing.UserPreferences = s.UserPreferences
		existing.MessageCount = s.MessageCount
		existing.TotalTokens = s.TotalTokens
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.ID = uuid.NewString()
		s.CreatedAt = time.Now().UTC()
		if cerr := db.WithContext(ctx).Create(s).Error; cerr != nil {
			return nil, cerr
		}
		return s, nil
	default:
		return nil, err
	}
}

// LatestSummary returns the thread's most recent summary by summary date,
// or ErrNotFound when none exists yet.
func LatestSummary(ctx context.Context, db *gorm.DB, threadID string) (*domain.MemorySummary, error) {
	var s domain.MemorySummary
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("summary_date DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountSummaries returns the number of summaries stored for a thread.
func CountSummaries(ctx context.Context, db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MemorySummary{}).
		Where("thread_id = ?", threadID).
		Count(&total).Error
	return total, err
}

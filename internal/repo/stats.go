// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// ThreadsStats returns aggregate metadata for an account's threads: the
// total number of rows and the maximum UpdatedAt timestamp among them.
// When the account has no threads, count is 0 and maxUpdatedAt is nil.
func ThreadsStats(ctx context.Context, db *gorm.DB, accountID int64) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ConversationThread{}).Where("account_id = ?", accountID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns aggregate metadata for messages within a thread:
// the total number of rows and the maximum UpdatedAt timestamp among them.
// When the thread has no messages, count is 0 and maxUpdatedAt is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, threadID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ChatMessage{}).Where("thread_id = ?", threadID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// CreateMessage inserts a new message row.
func CreateMessage(db *gorm.DB, threadID, role, content, metadata string, tokenCount int) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		Role:       role,
		Content:    content,
		Metadata:   metadata,
		TokenCount: tokenCount,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListRecentMessages returns the last `limit` messages of a thread in
// chronological order. It selects newest-first and reverses, so the window
// always covers the most recent turns.
func ListRecentMessages(db *gorm.DB, threadID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.Where("thread_id = ?", threadID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListMessagesForDay returns all of a thread's messages created on the given
// UTC day (date formatted YYYY-MM-DD), in chronological order. Used by the
// summarization job.
func ListMessagesForDay(db *gorm.DB, threadID, date string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.
		Where("thread_id = ? AND date(created_at) = ?", threadID, date).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, threadID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM chat_messages WHERE thread_id = ? AND deleted_at IS NULL", threadID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, threadID string, offset, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// BackfillTokenCount sets the token count of an existing message. Messages
// are otherwise immutable; this is the one allowed post-hoc update besides
// metadata.
func BackfillTokenCount(db *gorm.DB, id string, tokens int) error {
	res := db.Model(&domain.ChatMessage{}).Where("id = ?", id).Update("token_count", tokens)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ConversationThread model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a thread is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the orchestrator and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleThread is returned by TouchThread when the optimistic timestamp
// guard matched no row: a concurrent turn already advanced the thread.
var ErrStaleThread = errors.New("thread activity advanced concurrently")

// CreateThread inserts a new active thread owned by accountID with the given
// title. The thread ID is a randomly generated UUID, and both CreatedAt and
// LastActivityAt are set to UTC now.
func CreateThread(ctx context.Context, db *gorm.DB, accountID int64, title string) (*domain.ConversationThread, error) {
	now := time.Now().UTC()
	t := &domain.ConversationThread{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Title:          title,
		IsActive:       true,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// MostRecentActiveThread returns the account's active thread with the
// greatest LastActivityAt (ID descending as a deterministic tie-break).
// Returns ErrNotFound when the account has no active thread.
func MostRecentActiveThread(ctx context.Context, db *gorm.DB, accountID int64) (*domain.ConversationThread, error) {
	var t domain.ConversationThread
	err := db.WithContext(ctx).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Order("last_activity_at DESC, id DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThread fetches a single thread by its ID and owner account. If the
// record does not exist, it returns ErrNotFound.
func GetThread(ctx context.Context, db *gorm.DB, id string, accountID int64) (*domain.ConversationThread, error) {
	var t domain.ConversationThread
	err := db.WithContext(ctx).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TouchThread advances LastActivityAt to `to`, guarded by the previously
// observed timestamp so concurrent turns against the same thread resolve
// last-writer-wins without locks. Returns ErrStaleThread when the guard
// matched no row.
func TouchThread(ctx context.Context, db *gorm.DB, id string, observed, to time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("id = ? AND last_activity_at = ?", id, observed).
		Update("last_activity_at", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleThread
	}
	return nil
}

// UpdateThreadTitle updates the title of a thread identified by id and owned
// by accountID. If no rows are affected (thread missing or not owned), it
// returns ErrNotFound.
func UpdateThreadTitle(ctx context.Context, db *gorm.DB, id string, accountID int64, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateThread clears IsActive; the row survives for audit/history
// until the retention purge removes it. Returns ErrNotFound when the thread
// is missing or not owned by accountID.
func DeactivateThread(ctx context.Context, db *gorm.DB, id string, accountID int64) error {
	res := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("id = ? AND account_id = ?", id, accountID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// PurgeInactiveThreads hard-deletes deactivated threads whose last activity
// is older than cutoff. Messages and summaries cascade. Returns the number
// of threads removed.
func PurgeInactiveThreads(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Unscoped().
		Where("is_active = ? AND last_activity_at < ?", false, cutoff).
		Delete(&domain.ConversationThread{})
	return res.RowsAffected, res.Error
}

// CountThreads returns the total number of threads owned by accountID.
func CountThreads(ctx context.Context, db *gorm.DB, accountID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ConversationThread{}).
		Where("account_id = ?", accountID).
		Count(&total).Error
	return total, err
}

// ListThreadsPage returns a paginated slice of threads for accountID,
// ordered by last activity descending. The caller computes offset and limit.
func ListThreadsPage(ctx context.Context, db *gorm.DB, accountID int64, offset, limit int) ([]domain.ConversationThread, error) {
	var out []domain.ConversationThread
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("last_activity_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to implement safe-retry semantics for the chat query endpoint.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (account_id, thread_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, accountID int64, threadID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("account_id = ? AND thread_id = ? AND key = ? AND expires_at > ?", accountID, threadID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// HasIdempotency reports whether any non-expired record exists for
// (accountID, key) regardless of thread. Used by the transport layer for the
// rate-limit bypass hint; the precise (account, thread, key) replay is the
// handler's job.
func HasIdempotency(ctx context.Context, db *gorm.DB, accountID int64, key string, now time.Time) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("account_id = ? AND key = ? AND expires_at > ?", accountID, key, now).
		Count(&n).Error
	return n > 0, err
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, accountID int64, threadID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ThreadID:  threadID,
		Key:       key,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

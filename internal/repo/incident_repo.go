// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// SecurityIncident model. Incidents are append-only; resolution is the only
// allowed mutation.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/averla/portfolio-ai-backend/internal/domain"
)

// CreateIncident inserts a new incident row and returns it.
func CreateIncident(ctx context.Context, db *gorm.DB, inc *domain.SecurityIncident) (*domain.SecurityIncident, error) {
	inc.ID = uuid.NewString()
	inc.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(inc).Error; err != nil {
		return nil, err
	}
	return inc, nil
}

// CountIncidents returns the total number of incidents for accountID; a
// zero accountID counts across all accounts.
func CountIncidents(ctx context.Context, db *gorm.DB, accountID int64) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.SecurityIncident{})
	if accountID != 0 {
		q = q.Where("account_id = ?", accountID)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListIncidentsPage returns a paginated slice of incidents, newest first.
// A zero accountID lists across all accounts (audit view).
func ListIncidentsPage(ctx context.Context, db *gorm.DB, accountID int64, offset, limit int) ([]domain.SecurityIncident, error) {
	q := db.WithContext(ctx).Model(&domain.SecurityIncident{})
	if accountID != 0 {
		q = q.Where("account_id = ?", accountID)
	}
	var out []domain.SecurityIncident
	err := q.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ResolveIncident marks an incident resolved with the given resolution
// text. Returns ErrNotFound when the incident does not exist.
func ResolveIncident(ctx context.Context, db *gorm.DB, id, resolution string) error {
	res := db.WithContext(ctx).
		Model(&domain.SecurityIncident{}).
		Where("id = ?", id).
		Updates(map[string]any{"resolved": true, "resolution": resolution})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed chat
// query, keyed by (account_id, thread_id, key). It enables safe retries of
// POST /chat/query by returning the originally persisted assistant message
// without re-running the model pipeline.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	AccountID int64     `gorm:"not null;uniqueIndex:ux_account_thread_key,priority:1"`
	ThreadID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_account_thread_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_account_thread_key,priority:3"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

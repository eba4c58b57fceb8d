// Package domain defines the persistence models for conversation threads,
// chat messages, memory summaries, and security incidents. These types are
// mapped with GORM and form the core data layer of the AI chat pipeline.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles within a thread.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Severity classifies how serious a guardrail violation is.
type Severity string

// Severity levels, ordered from least to most serious.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank(s) >= severityRank(min)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// ViolationType tags the category of a guardrail violation.
type ViolationType string

// Known violation categories.
const (
	ViolationPromptInjection    ViolationType = "prompt_injection"
	ViolationSuspiciousEncoding ViolationType = "suspicious_encoding"
	ViolationPromptLeakage      ViolationType = "prompt_leakage"
	ViolationInvalidInput       ViolationType = "invalid_input"
	ViolationEmptyOutput        ViolationType = "empty_output"
)

// ConversationThread represents a running dialogue scoped to one account.
// At most one thread per account is considered "current": the active thread
// with the most recent activity. Threads are deactivated rather than
// physically deleted; a retention job purges long-inactive ones.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - AccountID: owner account; indexed for the most-recent-active lookup.
//   - Title: human-readable title (auto-generated from the first query).
//   - IsActive: cleared on deactivation instead of deleting the row.
//   - LastActivityAt: bumped on every completed turn; tie-breaker for the
//     most-recent-active lookup.
type ConversationThread struct {
	ID             string         `json:"id"               gorm:"type:char(36);primaryKey"`
	AccountID      int64          `json:"account_id"       gorm:"not null;index:idx_account_threads"`
	Title          string         `json:"title"            gorm:"type:varchar(255);not null;default:'New conversation'"`
	IsActive       bool           `json:"is_active"        gorm:"not null;default:true;index:idx_account_threads"`
	LastActivityAt time.Time      `json:"last_activity_at" gorm:"not null;index"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                gorm:"index"`
}

// TableName returns the database table name for ConversationThread.
func (ConversationThread) TableName() string { return "conversation_threads" }

// ChatMessage is one utterance within a thread, authored either by the
// "user" or the "assistant". Messages are immutable after creation except
// for metadata and token-count backfill.
//
// Fields:
//   - ThreadID: foreign key to the owning thread (indexed, cascade delete).
//   - Role: "user" or "assistant" (enforced by DB constraint).
//   - Metadata: optional serialized JSON with structured extras
//     (tool calls made, model settings, etc.).
//   - TokenCount: approximate tokens in Content; backfilled after the turn.
type ChatMessage struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ThreadID   string         `json:"thread_id"   gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1"`
	Role       string         `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	Metadata   string         `json:"metadata,omitempty" gorm:"type:text"`
	TokenCount int            `json:"token_count" gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_thread_msgs,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	// Thread is the parent conversation. Messages are cascade-deleted
	// if their thread is removed.
	Thread ConversationThread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// MemorySummary is a compacted daily digest of a thread's messages, used in
// place of raw history to bound prompt size. At most one summary exists per
// (thread, summary date); re-summarization updates the row in place.
//
// KeyTopics and UserPreferences hold serialized JSON.
type MemorySummary struct {
	ID              string         `json:"id"               gorm:"type:char(36);primaryKey"`
	ThreadID        string         `json:"thread_id"        gorm:"type:char(36);not null;uniqueIndex:ux_summary_thread_date,priority:1"`
	SummaryDate     string         `json:"summary_date"     gorm:"type:char(10);not null;uniqueIndex:ux_summary_thread_date,priority:2"`
	Summary         string         `json:"summary"          gorm:"type:text;not null"`
	KeyTopics       string         `json:"key_topics"       gorm:"type:text"`
	UserPreferences string         `json:"user_preferences" gorm:"type:text"`
	MessageCount    int            `json:"message_count"    gorm:"not null;default:0"`
	TotalTokens     int            `json:"total_tokens"     gorm:"not null;default:0"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`

	Thread ConversationThread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MemorySummary.
func (MemorySummary) TableName() string { return "memory_summaries" }

// SecurityIncident is an append-only audit record of a guardrail violation.
// Resolution (Resolved + Resolution) is the only allowed mutation.
type SecurityIncident struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	AccountID     int64          `json:"account_id"     gorm:"not null;index"`
	ViolationType ViolationType  `json:"violation_type" gorm:"type:varchar(32);not null;index"`
	Severity      Severity       `json:"severity"       gorm:"type:varchar(16);not null"`
	Reason        string         `json:"reason"         gorm:"type:text;not null"`
	Snippet       string         `json:"snippet"        gorm:"type:text"`
	ThreatLevel   string         `json:"threat_level"   gorm:"type:varchar(16)"`
	Metadata      string         `json:"metadata,omitempty" gorm:"type:text"`
	Resolved      bool           `json:"resolved"       gorm:"not null;default:false"`
	Resolution    string         `json:"resolution,omitempty" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for SecurityIncident.
func (SecurityIncident) TableName() string { return "security_incidents" }

// Holding is a read-only view of one position in an account's portfolio as
// of a given date. Rows are produced by the portfolio CRUD subsystem; this
// service only reads them through the portfolio provider.
type Holding struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	AccountID int64     `json:"account_id" gorm:"not null;index:idx_account_holdings,priority:1"`
	Ticker    string    `json:"ticker"     gorm:"type:varchar(16);not null"`
	Name      string    `json:"name"       gorm:"type:varchar(128)"`
	Quantity  float64   `json:"quantity"   gorm:"not null"`
	Value     float64   `json:"value"      gorm:"not null"`
	AsOf      string    `json:"as_of"      gorm:"type:char(10);not null;index:idx_account_holdings,priority:2"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Holding.
func (Holding) TableName() string { return "holdings" }

// InstrumentPrice is a read-only daily close for one instrument.
type InstrumentPrice struct {
	ID        string    `json:"id"     gorm:"type:char(36);primaryKey"`
	Ticker    string    `json:"ticker" gorm:"type:varchar(16);not null;index:idx_ticker_prices,priority:1"`
	Date      string    `json:"date"   gorm:"type:char(10);not null;index:idx_ticker_prices,priority:2"`
	Close     float64   `json:"close"  gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for InstrumentPrice.
func (InstrumentPrice) TableName() string { return "instrument_prices" }

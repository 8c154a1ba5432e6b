package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/llm-auth-hub/internal/util"
)

// EventKind is the lifecycle operation that was attempted.
type EventKind string

const (
	EventLogin   EventKind = "login"
	EventRefresh EventKind = "refresh"
	EventLogout  EventKind = "logout"
	EventMigrate EventKind = "migrate"
)

// Outcome is how the operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeReauth  Outcome = "reauth_required"
)

// AuthEvent is one audit record. Tokens are never stored here.
type AuthEvent struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Timestamp int64     `gorm:"index" json:"timestamp"`
	Provider  string    `gorm:"index" json:"provider"`
	AccountID string    `gorm:"index" json:"account_id"`
	Kind      EventKind `json:"kind"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// EventLog records and queries audit events. A nil EventLog is a no-op so
// callers never have to branch on whether auditing is enabled.
type EventLog struct {
	db *gorm.DB
}

// NewEventLog wraps an open database.
func NewEventLog(gdb *gorm.DB) *EventLog {
	return &EventLog{db: gdb}
}

// Record appends one event. Failures are returned but callers are expected
// to log and move on.
func (l *EventLog) Record(provider, accountID string, kind EventKind, outcome Outcome, detail string) error {
	if l == nil || l.db == nil {
		return nil
	}
	event := AuthEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().Unix(),
		Provider:  provider,
		AccountID: accountID,
		Kind:      kind,
		Outcome:   outcome,
		Detail:    util.TruncateDetail(detail),
	}
	return l.db.Create(&event).Error
}

// Recent returns the newest events, newest first.
func (l *EventLog) Recent(limit int) ([]AuthEvent, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	var events []AuthEvent
	err := l.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// RecentForAccount returns the newest events for one provider account.
func (l *EventLog) RecentForAccount(provider, accountID string, limit int) ([]AuthEvent, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	var events []AuthEvent
	err := l.db.Where("provider = ? AND account_id = ?", provider, accountID).
		Order("timestamp DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// PruneBefore deletes events older than the cutoff and reports how many
// rows went away.
func (l *EventLog) PruneBefore(cutoff time.Time) (int64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	result := l.db.Where("timestamp < ?", cutoff.Unix()).Delete(&AuthEvent{})
	return result.RowsAffected, result.Error
}

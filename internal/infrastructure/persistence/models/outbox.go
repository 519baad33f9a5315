package models

import (
	"time"

	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/google/uuid"
)

// NotificationOutboxModel is a queued notification awaiting delivery by the
// relay. Rows are written in the same transaction as the state change that
// produced them.
type NotificationOutboxModel struct {
	ID          uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	Kind        string                    `gorm:"type:varchar(50);not null"`
	UserID      uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Payload     []byte                    `gorm:"type:jsonb;not null"`
	Status      notification.OutboxStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_notification_outbox_status_created,priority:1"`
	RetryCount  int                       `gorm:"not null;default:0"`
	MaxRetries  int                       `gorm:"not null;default:5"`
	LastError   string                    `gorm:"type:text"`
	NextRetryAt *time.Time                `gorm:"index:idx_notification_outbox_next_retry"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index:idx_notification_outbox_status_created,priority:2"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NotificationOutboxModel) TableName() string {
	return "notification_outbox"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *NotificationOutboxModel) ToDomain() *notification.OutboxEntry {
	return &notification.OutboxEntry{
		ID:          m.ID,
		Kind:        notification.Kind(m.Kind),
		UserID:      m.UserID,
		Payload:     m.Payload,
		Status:      m.Status,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		NextRetryAt: m.NextRetryAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// NotificationOutboxModelFromDomain creates a persistence model from a domain OutboxEntry
func NotificationOutboxModelFromDomain(e *notification.OutboxEntry) *NotificationOutboxModel {
	return &NotificationOutboxModel{
		ID:          e.ID,
		Kind:        string(e.Kind),
		UserID:      e.UserID,
		Payload:     e.Payload,
		Status:      e.Status,
		RetryCount:  e.RetryCount,
		MaxRetries:  e.MaxRetries,
		LastError:   e.LastError,
		NextRetryAt: e.NextRetryAt,
		ProcessedAt: e.ProcessedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
	OutboxStatusSkipped    OutboxStatus = "SKIPPED"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = 30 * time.Second
)

// OutboxEntry is a queued notification awaiting delivery
type OutboxEntry struct {
	ID          uuid.UUID
	Kind        Kind
	UserID      uuid.UUID
	Payload     []byte
	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEntry serializes a message into a pending outbox entry
func NewOutboxEntry(msg Message, now time.Time) (*OutboxEntry, error) {
	if msg.UserID == uuid.Nil {
		return nil, errors.New("notification: user ID is required")
	}
	if msg.Kind == "" {
		return nil, errors.New("notification: kind is required")
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEntry{
		ID:         uuid.New(),
		Kind:       msg.Kind,
		UserID:     msg.UserID,
		Payload:    payload,
		Status:     OutboxStatusPending,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Message rebuilds the queued message
func (e *OutboxEntry) Message() (Message, error) {
	msg := Message{Kind: e.Kind, UserID: e.UserID}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &msg.Payload); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

// CanRetry returns true if the entry can be retried
func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

// MarkSent marks the entry as delivered
func (e *OutboxEntry) MarkSent(now time.Time) {
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkSkipped closes the entry without delivery, e.g. the recipient is no
// longer contactable
func (e *OutboxEntry) MarkSkipped(reason string, now time.Time) {
	e.Status = OutboxStatusSkipped
	e.LastError = reason
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure and schedules the next attempt with
// exponential backoff. The entry goes dead after MaxRetries failures.
func (e *OutboxEntry) MarkFailed(errMsg string, now time.Time) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	backoff := DefaultBaseBackoff * time.Duration(1<<uint(e.RetryCount-1))
	next := now.Add(backoff)
	e.NextRetryAt = &next
}

// IsDead returns true if the entry is in dead letter status
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository persists queued notifications
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindDue returns pending entries and failed entries whose retry time has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	// Claim atomically moves the given entries to PROCESSING and returns the
	// ones this caller won
	Claim(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteDeliveredBefore removes sent and skipped entries processed before the cutoff
	DeleteDeliveredBefore(ctx context.Context, before time.Time) (int64, error)
}

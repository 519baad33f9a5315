package persistence

import (
	"context"
	"time"

	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOutboxRepository implements notification.OutboxRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*notification.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.NotificationOutboxModel, len(entries))
	for i, e := range entries {
		rows[i] = models.NotificationOutboxModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(rows).Error
}

// FindDue returns pending entries and failed entries whose retry time has
// passed, oldest first
func (r *GormOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*notification.OutboxEntry, error) {
	var rows []models.NotificationOutboxModel
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND next_retry_at <= ?)",
			notification.OutboxStatusPending, notification.OutboxStatusFailed, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toOutboxEntries(rows), nil
}

// Claim locks the given entries with FOR UPDATE SKIP LOCKED, moves the
// ones still claimable to PROCESSING and returns them. Entries locked by
// another relay are skipped.
func (r *GormOutboxRepository) Claim(ctx context.Context, ids []uuid.UUID, now time.Time) ([]*notification.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.NotificationOutboxModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			}).
			Where("id IN ? AND status IN ?", ids, []notification.OutboxStatus{
				notification.OutboxStatusPending,
				notification.OutboxStatusFailed,
			}).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		claimed := make([]uuid.UUID, len(rows))
		for i := range rows {
			claimed[i] = rows[i].ID
		}
		if err := tx.Model(&models.NotificationOutboxModel{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{
				"status":     notification.OutboxStatusProcessing,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].Status = notification.OutboxStatusProcessing
			rows[i].UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toOutboxEntries(rows), nil
}

// Update writes the delivery state of an entry
func (r *GormOutboxRepository) Update(ctx context.Context, entry *notification.OutboxEntry) error {
	return r.db.WithContext(ctx).
		Model(&models.NotificationOutboxModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":        entry.Status,
			"retry_count":   entry.RetryCount,
			"last_error":    entry.LastError,
			"next_retry_at": entry.NextRetryAt,
			"processed_at":  entry.ProcessedAt,
			"updated_at":    entry.UpdatedAt,
		}).Error
}

// DeleteDeliveredBefore removes sent and skipped entries processed before the cutoff
func (r *GormOutboxRepository) DeleteDeliveredBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND processed_at < ?", []notification.OutboxStatus{
			notification.OutboxStatusSent,
			notification.OutboxStatusSkipped,
		}, before).
		Delete(&models.NotificationOutboxModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns the number of entries in each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[notification.OutboxStatus]int64, error) {
	type statusCount struct {
		Status notification.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.NotificationOutboxModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[notification.OutboxStatus]int64, len(results))
	for _, c := range results {
		counts[c.Status] = c.Count
	}
	return counts, nil
}

func toOutboxEntries(rows []models.NotificationOutboxModel) []*notification.OutboxEntry {
	out := make([]*notification.OutboxEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// OutboxDispatcher implements notification.Dispatcher by writing to the
// outbox through whatever transaction its repository is bound to
type OutboxDispatcher struct {
	repo       notification.OutboxRepository
	maxRetries int
	now        func() time.Time
}

// NewOutboxDispatcher creates a dispatcher. maxRetries <= 0 keeps the domain default.
func NewOutboxDispatcher(repo notification.OutboxRepository, maxRetries int) *OutboxDispatcher {
	return &OutboxDispatcher{repo: repo, maxRetries: maxRetries, now: time.Now}
}

// Enqueue stores msg for asynchronous delivery
func (d *OutboxDispatcher) Enqueue(ctx context.Context, msg notification.Message) error {
	entry, err := notification.NewOutboxEntry(msg, d.now())
	if err != nil {
		return err
	}
	if d.maxRetries > 0 {
		entry.MaxRetries = d.maxRetries
	}
	return d.repo.Save(ctx, entry)
}

var (
	_ notification.OutboxRepository = (*GormOutboxRepository)(nil)
	_ notification.Dispatcher       = (*OutboxDispatcher)(nil)
)

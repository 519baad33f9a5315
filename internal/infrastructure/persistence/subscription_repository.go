package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSubscriptionRepository implements subscription.Repository using GORM.
// State transitions are single conditional UPDATE statements so that the
// sweeper and payment settlement never overwrite each other.
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: tx}
}

// Create inserts a new subscription
func (r *GormSubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) error {
	model := models.SubscriptionModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "business_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return subscription.ErrAlreadyExisting
	}
	return nil
}

// FindByID finds a subscription by ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Subscription, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByBusinessID finds the subscription of a business
func (r *GormSubscriptionRepository) FindByBusinessID(ctx context.Context, businessID uuid.UUID) (*subscription.Subscription, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("business_id = ?", businessID))
}

func (r *GormSubscriptionRepository) findOne(_ context.Context, q *gorm.DB) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrNoSubscription
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save writes a modified subscription with optimistic locking. The caller
// has already incremented Version through a domain transition.
func (r *GormSubscriptionRepository) Save(ctx context.Context, s *subscription.Subscription) error {
	model := models.SubscriptionModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", s.ID, s.Version-1).
		Updates(map[string]any{
			"plan_id":        model.PlanID,
			"status":         model.Status,
			"trial_ends_at":  model.TrialEndsAt,
			"starts_at":      model.StartsAt,
			"ends_at":        model.EndsAt,
			"last_warned_at": model.LastWarnedAt,
			"version":        model.Version,
			"updated_at":     model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		r.db.WithContext(ctx).Model(&models.SubscriptionModel{}).Where("id = ?", s.ID).Count(&count)
		if count == 0 {
			return subscription.ErrNoSubscription
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Activate upserts the business's subscription to active. The update is
// guarded only by status <> cancelled, so it wins over a concurrent expiry
// of the previous period.
func (r *GormSubscriptionRepository) Activate(ctx context.Context, businessID, planID uuid.UUID, startsAt, endsAt, now time.Time) (*subscription.Subscription, error) {
	if !endsAt.After(startsAt) {
		return nil, subscription.ErrInvalidPeriod
	}

	existing, err := r.FindByBusinessID(ctx, businessID)
	switch {
	case errors.Is(err, subscription.ErrNoSubscription):
		s := &subscription.Subscription{
			BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
			BusinessID:        businessID,
			Status:            subscription.StatusExpired,
			StartsAt:          startsAt,
		}
		if err := subscription.Activate(s, planID, startsAt, endsAt, now); err != nil {
			return nil, err
		}
		createErr := r.Create(ctx, s)
		if createErr == nil {
			return s, nil
		}
		if !errors.Is(createErr, subscription.ErrAlreadyExisting) {
			return nil, createErr
		}
		// Lost the insert race; fall through to the guarded update.
	case err != nil:
		return nil, err
	case existing.Status == subscription.StatusCancelled:
		return nil, subscription.ErrCancelled
	}

	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("business_id = ? AND status <> ?", businessID, string(subscription.StatusCancelled)).
		Updates(map[string]any{
			"status":     string(subscription.StatusActive),
			"plan_id":    planID,
			"starts_at":  startsAt,
			"ends_at":    endsAt,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, subscription.ErrCancelled
	}
	return r.FindByBusinessID(ctx, businessID)
}

// ExpireTrial moves a lapsed trial to expired
func (r *GormSubscriptionRepository) ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.expire(ctx, r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND trial_ends_at < ?", id, string(subscription.StatusTrial), now), now)
}

// ExpireActive moves a lapsed paid subscription to expired
func (r *GormSubscriptionRepository) ExpireActive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return r.expire(ctx, r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND ends_at < ?", id, string(subscription.StatusActive), now), now)
}

func (r *GormSubscriptionRepository) expire(_ context.Context, q *gorm.DB, now time.Time) (bool, error) {
	result := q.Model(&models.SubscriptionModel{}).
		Updates(map[string]any{
			"status":     string(subscription.StatusExpired),
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkTrialWarned stamps last_warned_at once per trial
func (r *GormSubscriptionRepository) MarkTrialWarned(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ? AND status = ? AND last_warned_at IS NULL", id, string(subscription.StatusTrial)).
		Updates(map[string]any{
			"last_warned_at": now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindTrialsEndingBetween returns unwarned trials ending in [from, to)
func (r *GormSubscriptionRepository) FindTrialsEndingBetween(ctx context.Context, from, to time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND last_warned_at IS NULL AND trial_ends_at >= ? AND trial_ends_at < ?",
			string(subscription.StatusTrial), from, to)
	return r.scan(q, page)
}

// FindLapsedTrials returns trials whose trial_ends_at is before now
func (r *GormSubscriptionRepository) FindLapsedTrials(ctx context.Context, now time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND trial_ends_at < ?", string(subscription.StatusTrial), now)
	return r.scan(q, page)
}

// FindLapsedActive returns active subscriptions whose ends_at is before now
func (r *GormSubscriptionRepository) FindLapsedActive(ctx context.Context, now time.Time, page subscription.Page) ([]subscription.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND ends_at < ?", string(subscription.StatusActive), now)
	return r.scan(q, page)
}

func (r *GormSubscriptionRepository) scan(q *gorm.DB, page subscription.Page) ([]subscription.Subscription, error) {
	if page.AfterID != uuid.Nil {
		q = q.Where("id > ?", page.AfterID)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	var rows []models.SubscriptionModel
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]subscription.Subscription, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

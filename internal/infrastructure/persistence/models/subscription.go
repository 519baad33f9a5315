package models

import (
	"time"

	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/google/uuid"
)

// SubscriptionModel is the persistence model for a business subscription
type SubscriptionModel struct {
	AggregateModel
	BusinessID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	PlanID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status       string     `gorm:"type:varchar(20);not null;index:idx_subscriptions_status_trial_ends,priority:1;index:idx_subscriptions_status_ends,priority:1"`
	TrialEndsAt  *time.Time `gorm:"index:idx_subscriptions_status_trial_ends,priority:2"`
	StartsAt     time.Time  `gorm:"not null"`
	EndsAt       *time.Time `gorm:"index:idx_subscriptions_status_ends,priority:2"`
	LastWarnedAt *time.Time
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the model to a domain Subscription
func (m *SubscriptionModel) ToDomain() *subscription.Subscription {
	return &subscription.Subscription{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		BusinessID:        m.BusinessID,
		PlanID:            m.PlanID,
		Status:            subscription.Status(m.Status),
		TrialEndsAt:       m.TrialEndsAt,
		StartsAt:          m.StartsAt,
		EndsAt:            m.EndsAt,
		LastWarnedAt:      m.LastWarnedAt,
	}
}

// SubscriptionModelFromDomain creates a persistence model from a domain Subscription
func SubscriptionModelFromDomain(s *subscription.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{
		BusinessID:   s.BusinessID,
		PlanID:       s.PlanID,
		Status:       string(s.Status),
		TrialEndsAt:  s.TrialEndsAt,
		StartsAt:     s.StartsAt,
		EndsAt:       s.EndsAt,
		LastWarnedAt: s.LastWarnedAt,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}

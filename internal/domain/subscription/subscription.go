// Package subscription owns the per-business subscription record and the
// rules for moving it between trial, active, expired and cancelled.
package subscription

import (
	"math"
	"time"

	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a subscription
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsValid returns true if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// AllowsWrites returns true if accounts in this status may perform writes
func (s Status) AllowsWrites() bool {
	return s == StatusTrial || s == StatusActive
}

// Domain errors for subscription transitions
var (
	ErrCancelled       = shared.NewDomainError(shared.CodeInvalidState, "Subscription is cancelled")
	ErrNotInTrial      = shared.NewDomainError(shared.CodeInvalidState, "Subscription is not in trial")
	ErrNotActive       = shared.NewDomainError(shared.CodeInvalidState, "Subscription is not active")
	ErrNotYetEnded     = shared.NewDomainError(shared.CodeInvalidState, "Subscription period has not ended")
	ErrInvalidPeriod   = shared.NewValidationError("Subscription period end must be after its start")
	ErrNoSubscription  = shared.NewNotFoundError("Subscription")
	ErrAlreadyExisting = shared.NewDomainError(shared.CodeAlreadyExists, "Business already has a subscription")
)

// Subscription is the single entitlement record of a business account
type Subscription struct {
	shared.BaseAggregateRoot
	BusinessID   uuid.UUID
	PlanID       uuid.UUID
	Status       Status
	TrialEndsAt  *time.Time
	StartsAt     time.Time
	EndsAt       *time.Time
	LastWarnedAt *time.Time
}

// NewTrial creates a trial subscription that ends trialLength after now
func NewTrial(businessID, planID uuid.UUID, now time.Time, trialLength time.Duration) (*Subscription, error) {
	if businessID == uuid.Nil {
		return nil, shared.NewValidationError("business ID is required")
	}
	if trialLength <= 0 {
		return nil, shared.NewValidationError("trial length must be positive")
	}
	trialEnds := now.Add(trialLength)
	s := &Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		BusinessID:        businessID,
		PlanID:            planID,
		Status:            StatusTrial,
		TrialEndsAt:       &trialEnds,
		StartsAt:          now,
	}
	return s, nil
}

// Activate moves the subscription to active for the given plan and period.
// Any prior status except cancelled is accepted; activation supersedes a
// trial or expired state.
func Activate(s *Subscription, planID uuid.UUID, startsAt, endsAt, now time.Time) error {
	if s.Status == StatusCancelled {
		return ErrCancelled
	}
	if !endsAt.After(startsAt) {
		return ErrInvalidPeriod
	}
	end := endsAt
	s.Status = StatusActive
	s.PlanID = planID
	s.StartsAt = startsAt
	s.EndsAt = &end
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// ExpireTrial marks a lapsed trial as expired. It returns false with no error
// when the subscription is already expired.
func ExpireTrial(s *Subscription, now time.Time) (bool, error) {
	switch s.Status {
	case StatusExpired:
		return false, nil
	case StatusTrial:
	default:
		return false, ErrNotInTrial
	}
	if s.TrialEndsAt == nil || !s.TrialEndsAt.Before(now) {
		return false, ErrNotYetEnded
	}
	s.Status = StatusExpired
	s.Touch(now)
	s.IncrementVersion()
	return true, nil
}

// ExpireSubscription marks a lapsed paid subscription as expired. It returns
// false with no error when the subscription is already expired.
func ExpireSubscription(s *Subscription, now time.Time) (bool, error) {
	switch s.Status {
	case StatusExpired:
		return false, nil
	case StatusActive:
	default:
		return false, ErrNotActive
	}
	if s.EndsAt == nil || !s.EndsAt.Before(now) {
		return false, ErrNotYetEnded
	}
	s.Status = StatusExpired
	s.Touch(now)
	s.IncrementVersion()
	return true, nil
}

// Cancel moves a trial or active subscription to the terminal cancelled state
func Cancel(s *Subscription, now time.Time) error {
	switch s.Status {
	case StatusCancelled:
		return nil
	case StatusTrial, StatusActive:
	default:
		return shared.NewDomainError(shared.CodeInvalidState, "Only trial or active subscriptions can be cancelled")
	}
	s.Status = StatusCancelled
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// PeriodEnd returns the timestamp at which the current status lapses
func (s *Subscription) PeriodEnd() *time.Time {
	switch s.Status {
	case StatusTrial:
		return s.TrialEndsAt
	case StatusActive:
		return s.EndsAt
	}
	return nil
}

// EffectiveStatus returns the status as observed at now. A trial or paid
// period whose end has passed reads as expired even before the sweeper runs.
func (s *Subscription) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusTrial || s.Status == StatusActive {
		if end := s.PeriodEnd(); end != nil && end.Before(now) {
			return StatusExpired
		}
	}
	return s.Status
}

// Entitlement is the read-only projection used by the feature gate and status APIs
type Entitlement struct {
	BusinessID    uuid.UUID
	Status        Status
	PlanID        uuid.UUID
	PlanName      string
	TrialEndsAt   *time.Time
	EndsAt        *time.Time
	DaysRemaining int
}

// CurrentEntitlement projects the subscription at now
func CurrentEntitlement(s *Subscription, now time.Time) Entitlement {
	e := Entitlement{
		BusinessID:  s.BusinessID,
		Status:      s.EffectiveStatus(now),
		PlanID:      s.PlanID,
		TrialEndsAt: s.TrialEndsAt,
		EndsAt:      s.EndsAt,
	}
	if e.Status.AllowsWrites() {
		if end := s.PeriodEnd(); end != nil {
			e.DaysRemaining = daysUntil(now, *end)
		}
	}
	return e
}

// daysUntil rounds the remaining time up to whole days
func daysUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

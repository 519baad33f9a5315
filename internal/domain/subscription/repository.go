package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Page is a keyset page request for sweeper scans, ordered by ID
type Page struct {
	AfterID uuid.UUID
	Limit   int
}

// Repository persists subscriptions. The transition methods are atomic
// conditional updates on a single row: they serialize against each other
// through the store and never hold a lock across calls.
type Repository interface {
	// Create inserts a new subscription. Returns ErrAlreadyExisting if the
	// business already has one.
	Create(ctx context.Context, s *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByBusinessID(ctx context.Context, businessID uuid.UUID) (*Subscription, error)
	// Save writes a modified subscription using optimistic locking on Version
	Save(ctx context.Context, s *Subscription) error

	// Activate sets status=active with the plan and period unless the row is
	// cancelled, creating the row when the business has none. Returns
	// ErrCancelled for cancelled subscriptions.
	Activate(ctx context.Context, businessID, planID uuid.UUID, startsAt, endsAt, now time.Time) (*Subscription, error)
	// ExpireTrial sets status=expired only if the row is still a trial whose
	// trial_ends_at is before now. Returns whether a row changed.
	ExpireTrial(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// ExpireActive sets status=expired only if the row is still active and
	// ends_at is before now. Returns whether a row changed.
	ExpireActive(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// MarkTrialWarned records the expiring-soon warning once per trial.
	// Returns false if the trial was already warned or is no longer a trial.
	MarkTrialWarned(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// FindTrialsEndingBetween returns unwarned trials with from <= trial_ends_at < to
	FindTrialsEndingBetween(ctx context.Context, from, to time.Time, page Page) ([]Subscription, error)
	// FindLapsedTrials returns trials with trial_ends_at before now
	FindLapsedTrials(ctx context.Context, now time.Time, page Page) ([]Subscription, error)
	// FindLapsedActive returns active subscriptions with ends_at before now
	FindLapsedActive(ctx context.Context, now time.Time, page Page) ([]Subscription, error)
}

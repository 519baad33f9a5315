// Package subscription implements the subscription ledger use cases: starting
// trials, activating paid periods, expiring lapsed records and projecting the
// current entitlement.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTrialLength is used when no trial length is configured
const DefaultTrialLength = 14 * 24 * time.Hour

// LedgerService owns subscription state transitions
type LedgerService struct {
	subscriptions subscription.Repository
	plans         plan.Repository
	trialLength   time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// LedgerServiceConfig contains dependencies for LedgerService
type LedgerServiceConfig struct {
	Subscriptions subscription.Repository
	Plans         plan.Repository
	TrialLength   time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	trialLength := cfg.TrialLength
	if trialLength <= 0 {
		trialLength = DefaultTrialLength
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		subscriptions: cfg.Subscriptions,
		plans:         cfg.Plans,
		trialLength:   trialLength,
		logger:        logger,
		now:           now,
	}
}

// StartTrial creates the trial subscription for a newly registered business
func (s *LedgerService) StartTrial(ctx context.Context, businessID, planID uuid.UUID) (*subscription.Subscription, error) {
	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		return nil, fmt.Errorf("trial plan: %w", err)
	}

	sub, err := subscription.NewTrial(businessID, planID, s.now(), s.trialLength)
	if err != nil {
		return nil, err
	}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("Trial started",
		zap.String("business_id", businessID.String()),
		zap.String("plan_id", planID.String()),
		zap.Time("trial_ends_at", *sub.TrialEndsAt))
	return sub, nil
}

// Activate sets the business's subscription to active for the given period.
// Callers must only invoke it after a payment outcome was applied, so a
// replayed confirmation never reaches here twice.
func (s *LedgerService) Activate(ctx context.Context, businessID uuid.UUID, p *plan.Plan, startsAt, endsAt time.Time) (*subscription.Subscription, error) {
	return ActivateWith(ctx, s.subscriptions, s.logger, businessID, p.ID, startsAt, endsAt, s.now())
}

// ActivateForPlan activates a full billing period of the plan starting now
func (s *LedgerService) ActivateForPlan(ctx context.Context, businessID uuid.UUID, p *plan.Plan) (*subscription.Subscription, error) {
	return ActivatePlanPeriod(ctx, s.subscriptions, s.logger, businessID, p, s.now())
}

// ActivatePlanPeriod activates one billing period of p starting at now using repo
func ActivatePlanPeriod(ctx context.Context, repo subscription.Repository, logger *zap.Logger, businessID uuid.UUID, p *plan.Plan, now time.Time) (*subscription.Subscription, error) {
	endsAt, err := p.PeriodEnd(now)
	if err != nil {
		return nil, err
	}
	return ActivateWith(ctx, repo, logger, businessID, p.ID, now, endsAt, now)
}

// ActivateWith runs the activation transition against repo. The pure
// transition validates the request first; the repository then applies it
// as a single conditional update that supersedes trial and expired states.
func ActivateWith(ctx context.Context, repo subscription.Repository, logger *zap.Logger, businessID, planID uuid.UUID, startsAt, endsAt, now time.Time) (*subscription.Subscription, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "subscription", "activate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrBusinessID, businessID.String(), telemetry.SpanAttrPlanID, planID.String())

	current, err := repo.FindByBusinessID(ctx, businessID)
	switch {
	case err == nil:
		candidate := *current
		if err := subscription.Activate(&candidate, planID, startsAt, endsAt, now); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	case errors.Is(err, shared.ErrNotFound):
		if !endsAt.After(startsAt) {
			return nil, subscription.ErrInvalidPeriod
		}
	default:
		telemetry.RecordError(span, err)
		return nil, err
	}

	sub, err := repo.Activate(ctx, businessID, planID, startsAt, endsAt, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.Info("Subscription activated",
		zap.String("business_id", businessID.String()),
		zap.String("plan_id", planID.String()),
		zap.Time("starts_at", startsAt),
		zap.Time("ends_at", endsAt))
	return sub, nil
}

// ExpireTrial expires a lapsed trial. It returns false when another actor
// already changed the row (expired it, or activated it first).
func (s *LedgerService) ExpireTrial(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	return ExpireTrialWith(ctx, s.subscriptions, sub, s.now())
}

// ExpireSubscription expires a lapsed paid subscription. It returns false
// when the row is no longer active or was renewed concurrently.
func (s *LedgerService) ExpireSubscription(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	return ExpireSubscriptionWith(ctx, s.subscriptions, sub, s.now())
}

// ExpireTrialWith checks the trial transition against sub and applies it
// through repo's guarded update
func ExpireTrialWith(ctx context.Context, repo subscription.Repository, sub *subscription.Subscription, now time.Time) (bool, error) {
	candidate := *sub
	changed, err := subscription.ExpireTrial(&candidate, now)
	if err != nil || !changed {
		return false, err
	}
	return repo.ExpireTrial(ctx, sub.ID, now)
}

// ExpireSubscriptionWith checks the paid-period transition against sub and
// applies it through repo's guarded update
func ExpireSubscriptionWith(ctx context.Context, repo subscription.Repository, sub *subscription.Subscription, now time.Time) (bool, error) {
	candidate := *sub
	changed, err := subscription.ExpireSubscription(&candidate, now)
	if err != nil || !changed {
		return false, err
	}
	return repo.ExpireActive(ctx, sub.ID, now)
}

// Cancel moves the business's subscription to the terminal cancelled state
func (s *LedgerService) Cancel(ctx context.Context, businessID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := s.subscriptions.FindByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := subscription.Cancel(sub, s.now()); err != nil {
		return nil, err
	}
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("Subscription cancelled", zap.String("business_id", businessID.String()))
	return sub, nil
}

// EntitlementView is the current entitlement joined with its plan
type EntitlementView struct {
	subscription.Entitlement
	Plan *plan.Plan
}

// CurrentEntitlement returns the read-only entitlement of a business.
// Returns subscription.ErrNoSubscription if the business has none.
func (s *LedgerService) CurrentEntitlement(ctx context.Context, businessID uuid.UUID) (*EntitlementView, error) {
	sub, err := s.subscriptions.FindByBusinessID(ctx, businessID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, subscription.ErrNoSubscription
		}
		return nil, err
	}

	view := &EntitlementView{Entitlement: subscription.CurrentEntitlement(sub, s.now())}
	p, err := s.plans.FindByID(ctx, sub.PlanID)
	switch {
	case err == nil:
		view.Plan = p
		view.PlanName = p.Name
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("Subscription references unknown plan",
			zap.String("business_id", businessID.String()),
			zap.String("plan_id", sub.PlanID.String()))
	default:
		return nil, err
	}
	return view, nil
}

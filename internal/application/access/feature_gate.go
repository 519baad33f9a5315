// Package access evaluates per-request authorization against the
// subscription ledger and the plan catalog. It never writes.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy decides one aspect of a request. An error means the decision could
// not be made and the caller should fail the request.
type Policy func(ctx context.Context, subject access.Subject) (access.Decision, error)

// Evaluate runs policies left to right and returns the first denial
func Evaluate(ctx context.Context, subject access.Subject, policies ...Policy) (access.Decision, error) {
	for _, p := range policies {
		d, err := p(ctx, subject)
		if err != nil {
			return access.Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
	}
	return access.Allow(), nil
}

// RequireUserType denies subjects whose account type differs from t
func RequireUserType(t account.Type) Policy {
	return func(_ context.Context, subject access.Subject) (access.Decision, error) {
		if subject.Type != t {
			return access.Deny(access.ReasonWrongAccountType), nil
		}
		return access.Allow(), nil
	}
}

// FeatureGate answers write and feature checks for a subject
type FeatureGate struct {
	subscriptions subscription.Repository
	plans         plan.Repository
	logger        *zap.Logger
	now           func() time.Time
}

// FeatureGateConfig contains dependencies for FeatureGate
type FeatureGateConfig struct {
	Subscriptions subscription.Repository
	Plans         plan.Repository
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewFeatureGate creates a new FeatureGate
func NewFeatureGate(cfg FeatureGateConfig) *FeatureGate {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &FeatureGate{
		subscriptions: cfg.Subscriptions,
		plans:         cfg.Plans,
		logger:        logger,
		now:           now,
	}
}

// Write returns the AuthorizeWrite policy
func (g *FeatureGate) Write() Policy {
	return g.AuthorizeWrite
}

// Feature returns the AuthorizeFeature policy for a feature name
func (g *FeatureGate) Feature(name string) Policy {
	return func(ctx context.Context, subject access.Subject) (access.Decision, error) {
		return g.AuthorizeFeature(ctx, subject, name)
	}
}

// AuthorizeWrite allows individuals unconditionally and business accounts
// while their subscription is in trial or active at the current instant.
func (g *FeatureGate) AuthorizeWrite(ctx context.Context, subject access.Subject) (access.Decision, error) {
	if subject.IsIndividual() {
		return access.Allow(), nil
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "access", "authorize_write")
	defer span.End()

	sub, err := g.subscriptionOf(ctx, *subject.BusinessID)
	if err != nil {
		telemetry.RecordError(span, err)
		return access.Decision{}, err
	}
	if sub == nil {
		return access.Deny(access.ReasonNoSubscription), nil
	}
	if sub.EffectiveStatus(g.now()).AllowsWrites() {
		return access.Allow(), nil
	}
	return access.Deny(access.ReasonSubscriptionExpired), nil
}

// AuthorizeFeature checks a named feature. Individuals are denied the fixed
// business-only set. Business accounts follow their plan's feature map, where
// undeclared features are allowed.
func (g *FeatureGate) AuthorizeFeature(ctx context.Context, subject access.Subject, feature string) (access.Decision, error) {
	if subject.IsIndividual() {
		if access.IsBusinessOnly(feature) {
			d := access.Deny(access.ReasonFeatureNotAvailable)
			d.Feature = feature
			return d, nil
		}
		return access.Allow(), nil
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "access", "authorize_feature")
	defer span.End()
	telemetry.SetAttributes(span, "feature", feature)

	sub, err := g.subscriptionOf(ctx, *subject.BusinessID)
	if err != nil {
		telemetry.RecordError(span, err)
		return access.Decision{}, err
	}
	if sub == nil {
		d := access.Deny(access.ReasonNoSubscription)
		d.Feature = feature
		return d, nil
	}

	p, err := g.plans.FindByID(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			g.logger.Warn("Subscription references unknown plan; allowing feature",
				zap.String("business_id", subject.BusinessID.String()),
				zap.String("plan_id", sub.PlanID.String()),
				zap.String("feature", feature))
			return access.Allow(), nil
		}
		telemetry.RecordError(span, err)
		return access.Decision{}, err
	}
	if p.HasFeature(feature) {
		return access.Allow(), nil
	}

	d := access.Deny(access.ReasonFeatureNotInPlan)
	d.Feature = feature
	d.CurrentPlan = p.Name
	d.UpgradeAvailable = g.upgradeAvailable(ctx, p.ID, feature)
	return d, nil
}

// upgradeAvailable reports whether another active plan enables feature.
// Catalog errors only cost the hint, never the decision.
func (g *FeatureGate) upgradeAvailable(ctx context.Context, current uuid.UUID, feature string) bool {
	plans, err := g.plans.FindActive(ctx)
	if err != nil {
		g.logger.Warn("Failed to load plans for upgrade hint", zap.Error(err))
		return false
	}
	return len(plan.FindUpgrades(plans, current, feature)) > 0
}

func (g *FeatureGate) subscriptionOf(ctx context.Context, businessID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := g.subscriptions.FindByBusinessID(ctx, businessID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

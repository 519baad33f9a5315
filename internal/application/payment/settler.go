package payment

import (
	"context"
	"errors"
	"time"

	ledger "github.com/bizbook/backend/internal/application/subscription"
	"github.com/bizbook/backend/internal/application/uow"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Settler applies terminal payment outcomes. Applying the outcome, activating
// the subscription and queueing the notification commit in one unit of work,
// and all three happen only for the caller that wins the outcome update.
type Settler struct {
	uow      uow.UnitOfWork
	payments payment.Store
	plans    plan.Repository
	metrics  *telemetry.PaymentMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// SettlerConfig contains dependencies for Settler
type SettlerConfig struct {
	UnitOfWork uow.UnitOfWork
	Payments   payment.Store
	Plans      plan.Repository
	Metrics    *telemetry.PaymentMetrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewSettler creates a new Settler
func NewSettler(cfg SettlerConfig) *Settler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Settler{
		uow:      cfg.UnitOfWork,
		payments: cfg.Payments,
		plans:    cfg.Plans,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      now,
	}
}

// Settlement is the result of one Settle call
type Settlement struct {
	// Applied is true only for the call that moved the transaction to a
	// terminal status
	Applied      bool
	Transaction  *payment.Transaction
	Subscription *subscription.Subscription
}

// Settle applies outcome to the transaction identified by referenceID.
// Replays and races against an already-terminal transaction return
// Applied=false without side effects.
func (s *Settler) Settle(ctx context.Context, referenceID string, outcome payment.Outcome, detail payment.OutcomeDetail) (*Settlement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "settle")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReferenceID, referenceID, telemetry.SpanAttrOutcome, string(outcome))

	current, err := s.payments.FindByReference(ctx, referenceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !outcome.ValidFor(current.Type) {
		return nil, payment.ErrOutcomeMismatch
	}
	if current.Status.IsTerminal() {
		return &Settlement{Transaction: current}, nil
	}

	// Plans are reference data; load outside the unit of work.
	var purchased *plan.Plan
	if outcome.IsSuccess() && current.PlanID != nil && current.BusinessID != nil {
		purchased, err = s.plans.FindByID(ctx, *current.PlanID)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	settlement := &Settlement{}
	err = s.uow.Do(ctx, func(ctx context.Context, stores uow.Stores) error {
		res, err := stores.Payments.ApplyOutcome(ctx, referenceID, outcome, detail)
		if err != nil {
			return err
		}
		settlement.Applied = res.Applied
		settlement.Transaction = res.Transaction
		if !res.Applied {
			return nil
		}

		tx := res.Transaction
		if purchased != nil {
			sub, err := ledger.ActivatePlanPeriod(ctx, stores.Subscriptions, s.logger, *tx.BusinessID, purchased, s.now())
			switch {
			case err == nil:
				settlement.Subscription = sub
			case errors.Is(err, subscription.ErrCancelled):
				s.logger.Warn("Payment settled for cancelled subscription",
					zap.String("reference_id", referenceID),
					zap.String("business_id", tx.BusinessID.String()))
			default:
				return err
			}
		}

		return stores.Notifications.Enqueue(ctx, settlementMessage(tx, outcome, purchased, settlement.Subscription, detail.Notes))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if settlement.Applied {
		s.metrics.RecordSettled(ctx, string(settlement.Transaction.Type), string(outcome))
		s.logger.Info("Payment settled",
			zap.String("reference_id", referenceID),
			zap.String("outcome", string(outcome)),
			zap.Bool("activated", settlement.Subscription != nil))
	} else {
		s.logger.Info("Payment outcome already applied",
			zap.String("reference_id", referenceID),
			zap.String("status", string(settlement.Transaction.Status)))
	}
	return settlement, nil
}

func settlementMessage(tx *payment.Transaction, outcome payment.Outcome, p *plan.Plan, sub *subscription.Subscription, notes string) notification.Message {
	var kind notification.Kind
	switch outcome {
	case payment.OutcomeSuccess:
		kind = notification.KindSubscriptionActivated
	case payment.OutcomeFailed:
		kind = notification.KindPaymentFailed
	case payment.OutcomeApproved:
		kind = notification.KindOfflineApproved
	case payment.OutcomeRejected:
		kind = notification.KindOfflineRejected
	}

	payload := map[string]string{
		"reference_id": tx.ReferenceID,
		"amount":       tx.Amount.StringFixed(2),
		"currency":     tx.Currency,
	}
	if p != nil {
		payload["plan_name"] = p.Name
	}
	if sub != nil && sub.EndsAt != nil {
		payload["ends_at"] = sub.EndsAt.Format(time.RFC3339)
	}
	if !outcome.IsSuccess() && notes != "" {
		payload["reason"] = notes
	}
	return notification.Message{Kind: kind, UserID: tx.UserID, Payload: payload}
}

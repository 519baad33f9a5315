// Package sweeper runs the scheduled subscription expiry job.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	ledger "github.com/bizbook/backend/internal/application/subscription"
	"github.com/bizbook/backend/internal/application/uow"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sweeper defaults
const (
	DefaultWarningWindow = 3 * 24 * time.Hour
	DefaultBatchSize     = 100
)

// Pass names one of the sweeper's independent passes
type Pass string

const (
	PassTrialWarning       Pass = "trial_warning"
	PassTrialExpiry        Pass = "trial_expiry"
	PassSubscriptionExpiry Pass = "subscription_expiry"
)

// Failure is one record the sweeper could not process
type Failure struct {
	Pass           Pass
	SubscriptionID uuid.UUID
	Err            error
}

// PassReport summarizes one pass
type PassReport struct {
	Pass Pass
	// Scanned is the number of candidate records read
	Scanned int
	// Transitioned is the number of records this run changed
	Transitioned int
	// Notified is the number of notifications queued
	Notified int
	// Skipped counts transitions whose owner could not be notified
	Skipped  int
	Failures []Failure
}

// Report summarizes a sweeper run
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Passes     []PassReport
}

// Failed reports whether any record or pass failed
func (r *Report) Failed() bool {
	for _, p := range r.Passes {
		if len(p.Failures) > 0 {
			return true
		}
	}
	return false
}

// Transitions returns the total number of records changed
func (r *Report) Transitions() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Transitioned
	}
	return n
}

// ExpirySweeper transitions lapsed trials and subscriptions and warns trials
// that are about to end
type ExpirySweeper struct {
	uow           uow.UnitOfWork
	subscriptions subscription.Repository
	users         account.Directory
	warningWindow time.Duration
	batchSize     int
	metrics       *telemetry.PaymentMetrics
	logger        *zap.Logger
	now           func() time.Time
}

// ExpirySweeperConfig contains dependencies for ExpirySweeper
type ExpirySweeperConfig struct {
	UnitOfWork    uow.UnitOfWork
	Subscriptions subscription.Repository
	Users         account.Directory
	WarningWindow time.Duration
	BatchSize     int
	Metrics       *telemetry.PaymentMetrics
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewExpirySweeper creates a new ExpirySweeper
func NewExpirySweeper(cfg ExpirySweeperConfig) *ExpirySweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	window := cfg.WarningWindow
	if window <= 0 {
		window = DefaultWarningWindow
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &ExpirySweeper{
		uow:           cfg.UnitOfWork,
		subscriptions: cfg.Subscriptions,
		users:         cfg.Users,
		warningWindow: window,
		batchSize:     batch,
		metrics:       cfg.Metrics,
		logger:        logger,
		now:           now,
	}
}

// Run executes the three passes once. Record-level failures are collected in
// the report; an error is returned only when ctx ends the run early.
func (s *ExpirySweeper) Run(ctx context.Context) (*Report, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sweeper", "run")
	defer span.End()

	now := s.now()
	report := &Report{StartedAt: now}

	passes := []struct {
		pass Pass
		fn   func(context.Context, time.Time, *PassReport) error
	}{
		{PassTrialWarning, s.warnTrials},
		{PassTrialExpiry, s.expireTrials},
		{PassSubscriptionExpiry, s.expireSubscriptions},
	}
	for _, p := range passes {
		pr := PassReport{Pass: p.pass}
		err := p.fn(ctx, now, &pr)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				report.Passes = append(report.Passes, pr)
				report.FinishedAt = s.now()
				telemetry.RecordError(span, ctxErr)
				return report, ctxErr
			}
			pr.Failures = append(pr.Failures, Failure{Pass: p.pass, Err: err})
		}
		report.Passes = append(report.Passes, pr)
		s.metrics.RecordSweepPass(ctx, string(p.pass), pr.Transitioned, len(pr.Failures))
		s.logger.Info("Sweeper pass finished",
			zap.String("pass", string(p.pass)),
			zap.Int("scanned", pr.Scanned),
			zap.Int("transitioned", pr.Transitioned),
			zap.Int("notified", pr.Notified),
			zap.Int("skipped", pr.Skipped),
			zap.Int("failures", len(pr.Failures)))
	}

	report.FinishedAt = s.now()
	telemetry.SetAttributes(span, "transitions", report.Transitions(), "failed", report.Failed())
	return report, nil
}

type pageFunc func(ctx context.Context, page subscription.Page) ([]subscription.Subscription, error)

// each walks all candidates in keyset pages and applies fn to each one.
// A failing record is recorded and the walk continues.
func (s *ExpirySweeper) each(ctx context.Context, pr *PassReport, find pageFunc, fn func(context.Context, *subscription.Subscription) error) error {
	page := subscription.Page{Limit: s.batchSize}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := find(ctx, page)
		if err != nil {
			return fmt.Errorf("load %s candidates: %w", pr.Pass, err)
		}
		for i := range batch {
			sub := &batch[i]
			pr.Scanned++
			if err := fn(ctx, sub); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("Sweeper failed to process subscription",
					zap.String("pass", string(pr.Pass)),
					zap.String("subscription_id", sub.ID.String()),
					zap.Error(err))
				pr.Failures = append(pr.Failures, Failure{Pass: pr.Pass, SubscriptionID: sub.ID, Err: err})
			}
		}
		if len(batch) < page.Limit {
			return nil
		}
		page.AfterID = batch[len(batch)-1].ID
	}
}

// contactableOwner returns the business owner if they can receive mail.
// Missing, inactive and address-less owners return nil without error.
func (s *ExpirySweeper) contactableOwner(ctx context.Context, businessID uuid.UUID) (*account.User, error) {
	owner, err := s.users.FindOwner(ctx, businessID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !owner.IsContactable() {
		return nil, nil
	}
	return owner, nil
}

func (s *ExpirySweeper) warnTrials(ctx context.Context, now time.Time, pr *PassReport) error {
	until := now.Add(s.warningWindow)
	find := func(ctx context.Context, page subscription.Page) ([]subscription.Subscription, error) {
		return s.subscriptions.FindTrialsEndingBetween(ctx, now, until, page)
	}
	return s.each(ctx, pr, find, func(ctx context.Context, sub *subscription.Subscription) error {
		owner, err := s.contactableOwner(ctx, sub.BusinessID)
		if err != nil {
			return err
		}
		if owner == nil {
			pr.Skipped++
			return nil
		}

		ent := subscription.CurrentEntitlement(sub, now)
		warned := false
		err = s.uow.Do(ctx, func(ctx context.Context, stores uow.Stores) error {
			marked, err := stores.Subscriptions.MarkTrialWarned(ctx, sub.ID, now)
			if err != nil || !marked {
				return err
			}
			warned = true
			return stores.Notifications.Enqueue(ctx, notification.Message{
				Kind:   notification.KindTrialExpiring,
				UserID: owner.ID,
				Payload: map[string]string{
					"trial_ends_at":  sub.TrialEndsAt.Format(time.RFC3339),
					"days_remaining": strconv.Itoa(ent.DaysRemaining),
				},
			})
		})
		if err != nil {
			return err
		}
		if warned {
			pr.Transitioned++
			pr.Notified++
		}
		return nil
	})
}

func (s *ExpirySweeper) expireTrials(ctx context.Context, now time.Time, pr *PassReport) error {
	find := func(ctx context.Context, page subscription.Page) ([]subscription.Subscription, error) {
		return s.subscriptions.FindLapsedTrials(ctx, now, page)
	}
	return s.each(ctx, pr, find, func(ctx context.Context, sub *subscription.Subscription) error {
		return s.expire(ctx, now, pr, sub, ledger.ExpireTrialWith, notification.Message{
			Kind:    notification.KindTrialExpired,
			Payload: map[string]string{"trial_ended_at": sub.TrialEndsAt.Format(time.RFC3339)},
		})
	})
}

func (s *ExpirySweeper) expireSubscriptions(ctx context.Context, now time.Time, pr *PassReport) error {
	find := func(ctx context.Context, page subscription.Page) ([]subscription.Subscription, error) {
		return s.subscriptions.FindLapsedActive(ctx, now, page)
	}
	return s.each(ctx, pr, find, func(ctx context.Context, sub *subscription.Subscription) error {
		return s.expire(ctx, now, pr, sub, ledger.ExpireSubscriptionWith, notification.Message{
			Kind:    notification.KindSubscriptionExpired,
			Payload: map[string]string{"ended_at": sub.EndsAt.Format(time.RFC3339)},
		})
	})
}

type expireFunc func(ctx context.Context, repo subscription.Repository, sub *subscription.Subscription, now time.Time) (bool, error)

// expire applies a guarded expiry and queues msg to the owner in the same
// unit of work. A row that changed since it was read is left alone.
func (s *ExpirySweeper) expire(ctx context.Context, now time.Time, pr *PassReport, sub *subscription.Subscription, transition expireFunc, msg notification.Message) error {
	owner, err := s.contactableOwner(ctx, sub.BusinessID)
	if err != nil {
		return err
	}

	changed := false
	err = s.uow.Do(ctx, func(ctx context.Context, stores uow.Stores) error {
		changed, err = transition(ctx, stores.Subscriptions, sub, now)
		if err != nil || !changed || owner == nil {
			return err
		}
		msg.UserID = owner.ID
		return stores.Notifications.Enqueue(ctx, msg)
	})
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	pr.Transitioned++
	if owner == nil {
		pr.Skipped++
	} else {
		pr.Notified++
	}
	s.logger.Info("Subscription expired",
		zap.String("pass", string(pr.Pass)),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("business_id", sub.BusinessID.String()))
	return nil
}

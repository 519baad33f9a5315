// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PaymentMetrics tracks payment settlement and subscription sweep activity.
// A nil *PaymentMetrics is valid and records nothing.
type PaymentMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics
	initiatedTotal          *Counter
	settledTotal            *Counter
	sweeperTransitionsTotal *Counter
	sweeperFailuresTotal    *Counter

	// Gauge metrics
	pendingApprovals *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	pendingProvider PendingApprovalsProvider
}

// PendingApprovalsProvider reports how many offline payments await review
type PendingApprovalsProvider interface {
	CountPendingApprovals(ctx context.Context) (int64, error)
}

// PaymentMetricsConfig holds configuration for payment metrics.
type PaymentMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	PendingProvider PendingApprovalsProvider
}

// NewPaymentMetrics creates a new PaymentMetrics instance.
func NewPaymentMetrics(cfg PaymentMetricsConfig) (*PaymentMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PaymentMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		pendingProvider: cfg.PendingProvider,
	}

	var err error
	pm.initiatedTotal, err = NewCounter(cfg.Meter,
		"payments_initiated_total",
		"Total number of payment attempts created",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	pm.settledTotal, err = NewCounter(cfg.Meter,
		"payments_settled_total",
		"Total number of payment outcomes applied",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	pm.sweeperTransitionsTotal, err = NewCounter(cfg.Meter,
		"sweeper_transitions_total",
		"Total number of subscription records changed by the expiry sweeper",
		"{subscriptions}",
	)
	if err != nil {
		return nil, err
	}

	pm.sweeperFailuresTotal, err = NewCounter(cfg.Meter,
		"sweeper_failures_total",
		"Total number of subscription records the expiry sweeper failed to process",
		"{subscriptions}",
	)
	if err != nil {
		return nil, err
	}

	pm.pendingApprovals, err = NewGauge(cfg.Meter,
		"payments_pending_approval",
		"Offline payments waiting for admin review",
		"{payments}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// Metric attribute keys
var (
	AttrPaymentType = attribute.Key("payment_type")
	AttrOutcome     = attribute.Key("outcome")
	AttrSweepPass   = attribute.Key("pass")
)

// RecordInitiated records a newly created payment attempt
func (pm *PaymentMetrics) RecordInitiated(ctx context.Context, paymentType string) {
	if pm == nil {
		return
	}
	pm.initiatedTotal.Inc(ctx, AttrPaymentType.String(paymentType))
}

// RecordSettled records an applied payment outcome
func (pm *PaymentMetrics) RecordSettled(ctx context.Context, paymentType, outcome string) {
	if pm == nil {
		return
	}
	pm.settledTotal.Inc(ctx,
		AttrPaymentType.String(paymentType),
		AttrOutcome.String(outcome),
	)
}

// RecordSweepPass records the result of one sweeper pass
func (pm *PaymentMetrics) RecordSweepPass(ctx context.Context, pass string, transitions, failures int) {
	if pm == nil {
		return
	}
	if transitions > 0 {
		pm.sweeperTransitionsTotal.Add(ctx, int64(transitions), AttrSweepPass.String(pass))
	}
	if failures > 0 {
		pm.sweeperFailuresTotal.Add(ctx, int64(failures), AttrSweepPass.String(pass))
	}
}

// StartPeriodicCollection samples the pending approval queue at interval
// until Stop is called or ctx is done. Only the first call has an effect.
func (pm *PaymentMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if pm == nil || pm.pendingProvider == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	pm.collectOnce.Do(func() {
		go pm.runPeriodicCollection(ctx, interval)
	})
}

func (pm *PaymentMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collectPending(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-pm.stopChan:
			return
		case <-ticker.C:
			pm.collectPending(ctx)
		}
	}
}

func (pm *PaymentMetrics) collectPending(ctx context.Context) {
	count, err := pm.pendingProvider.CountPendingApprovals(ctx)
	if err != nil {
		pm.logger.Warn("Failed to count pending approvals", zap.Error(err))
		return
	}
	pm.pendingApprovals.Record(ctx, count)
}

// Stop stops the periodic collection.
func (pm *PaymentMetrics) Stop() {
	if pm == nil {
		return
	}
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPaymentMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

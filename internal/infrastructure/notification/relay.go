// Package notification delivers queued notifications from the outbox table.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayConfig holds configuration for the outbox relay
type RelayConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultRelayConfig returns default configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:        50,
		PollInterval:     10 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxRelay drains the notification outbox in the background
type OutboxRelay struct {
	repo   notification.OutboxRepository
	users  account.Directory
	sender notification.Sender
	config RelayConfig
	logger *zap.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOutboxRelay creates a new relay
func NewOutboxRelay(
	repo notification.OutboxRepository,
	users account.Directory,
	sender notification.Sender,
	config RelayConfig,
	logger *zap.Logger,
) *OutboxRelay {
	defaults := DefaultRelayConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CleanupRetention <= 0 {
		config.CleanupRetention = defaults.CleanupRetention
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		repo:   repo,
		users:  users,
		sender: sender,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Start starts the background delivery loop
func (r *OutboxRelay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.processLoop(ctx)

	if r.config.CleanupEnabled {
		r.wg.Add(1)
		go r.cleanupLoop(ctx)
	}

	r.logger.Info("Notification relay started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the relay
func (r *OutboxRelay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Notification relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *OutboxRelay) processLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch delivers one batch of due entries and returns how many were
// claimed by this relay
func (r *OutboxRelay) ProcessBatch(ctx context.Context) int {
	due, err := r.repo.FindDue(ctx, r.now(), r.config.BatchSize)
	if err != nil {
		r.logger.Error("Failed to find due notifications", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	claimed, err := r.repo.Claim(ctx, ids, r.now())
	if err != nil {
		r.logger.Error("Failed to claim notifications", zap.Error(err))
		return 0
	}

	for _, entry := range claimed {
		r.processEntry(ctx, entry)
	}
	return len(claimed)
}

func (r *OutboxRelay) processEntry(ctx context.Context, entry *notification.OutboxEntry) {
	log := r.logger.With(
		zap.String("entry_id", entry.ID.String()),
		zap.String("kind", string(entry.Kind)),
		zap.String("user_id", entry.UserID.String()),
	)

	msg, err := entry.Message()
	if err != nil {
		r.fail(ctx, log, entry, err)
		return
	}

	user, err := r.users.FindByID(ctx, entry.UserID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		r.skip(ctx, log, entry, "recipient not found")
		return
	case err != nil:
		r.fail(ctx, log, entry, err)
		return
	case !user.IsContactable():
		r.skip(ctx, log, entry, "recipient is not contactable")
		return
	}

	to := notification.Recipient{UserID: user.ID, Name: user.Name, Email: user.Email}
	if err := r.sender.Send(ctx, to, msg); err != nil {
		r.fail(ctx, log, entry, err)
		return
	}

	entry.MarkSent(r.now())
	if err := r.repo.Update(ctx, entry); err != nil {
		log.Error("Failed to mark notification as sent", zap.Error(err))
		return
	}
	log.Debug("Notification delivered")
}

func (r *OutboxRelay) skip(ctx context.Context, log *zap.Logger, entry *notification.OutboxEntry, reason string) {
	entry.MarkSkipped(reason, r.now())
	if err := r.repo.Update(ctx, entry); err != nil {
		log.Error("Failed to mark notification as skipped", zap.Error(err))
		return
	}
	log.Info("Notification skipped", zap.String("reason", reason))
}

func (r *OutboxRelay) fail(ctx context.Context, log *zap.Logger, entry *notification.OutboxEntry, cause error) {
	entry.MarkFailed(cause.Error(), r.now())
	if entry.IsDead() {
		log.Warn("Notification moved to dead letter",
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	} else {
		log.Error("Notification delivery failed", zap.Error(cause), zap.Int("retry_count", entry.RetryCount))
	}
	if err := r.repo.Update(ctx, entry); err != nil {
		log.Error("Failed to update notification", zap.Error(err))
	}
}

func (r *OutboxRelay) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup(ctx)
		}
	}
}

// Cleanup removes delivered entries older than the retention period
func (r *OutboxRelay) Cleanup(ctx context.Context) {
	cutoff := r.now().Add(-r.config.CleanupRetention)
	deleted, err := r.repo.DeleteDeliveredBefore(ctx, cutoff)
	if err != nil {
		r.logger.Error("Failed to clean up notifications", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("Cleaned up delivered notifications",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}

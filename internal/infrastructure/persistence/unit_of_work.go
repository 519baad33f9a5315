package persistence

import (
	"context"

	"github.com/bizbook/backend/internal/application/uow"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/subscription"
	"gorm.io/gorm"
)

// GormUnitOfWork runs a function inside one database transaction with the
// payment, subscription and outbox stores bound to it
type GormUnitOfWork struct {
	db               *gorm.DB
	outboxMaxRetries int
	transactions     *GormTransactionStore
	subscriptions    *GormSubscriptionRepository
	outbox           *GormOutboxRepository
}

// NewGormUnitOfWork creates a unit of work over db. outboxMaxRetries sets the
// retry budget of notifications enqueued through it.
func NewGormUnitOfWork(db *gorm.DB, outboxMaxRetries int) *GormUnitOfWork {
	return &GormUnitOfWork{
		db:               db,
		outboxMaxRetries: outboxMaxRetries,
		transactions:     NewGormTransactionStore(db),
		subscriptions:    NewGormSubscriptionRepository(db),
		outbox:           NewGormOutboxRepository(db),
	}
}

// Do commits if fn returns nil and rolls back otherwise
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, stores uow.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, uow.Stores{
			Payments:      u.transactions.WithTx(tx),
			Subscriptions: u.subscriptions.WithTx(tx),
			Notifications: NewOutboxDispatcher(u.outbox.WithTx(tx), u.outboxMaxRetries),
		})
	})
}

// Transactions returns the non-transactional payment store
func (u *GormUnitOfWork) Transactions() *GormTransactionStore { return u.transactions }

// Subscriptions returns the non-transactional subscription repository
func (u *GormUnitOfWork) Subscriptions() *GormSubscriptionRepository { return u.subscriptions }

// Outbox returns the non-transactional outbox repository
func (u *GormUnitOfWork) Outbox() *GormOutboxRepository { return u.outbox }

var (
	_ uow.UnitOfWork          = (*GormUnitOfWork)(nil)
	_ payment.Store           = (*GormTransactionStore)(nil)
	_ subscription.Repository = (*GormSubscriptionRepository)(nil)
	_ plan.Repository         = (*GormPlanRepository)(nil)
)

// Package uow defines the transactional boundary shared by the payment,
// subscription and sweeper services.
package uow

import (
	"context"

	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/subscription"
)

// Stores are the repositories bound to one unit of work
type Stores struct {
	Payments      payment.Store
	Subscriptions subscription.Repository
	Notifications notification.Dispatcher
}

// UnitOfWork runs fn so that all writes through the given stores commit or
// roll back together. fn must not perform network I/O to the gateway.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

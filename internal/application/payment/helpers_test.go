package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/application/uow/uowtest"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) IsConfigured() bool {
	return m.Called().Bool(0)
}

func (m *MockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.GatewayResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayResult), args.Error(1)
}

func (m *MockGateway) QueryStatus(ctx context.Context, referenceID string) (*payment.GatewayResult, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.GatewayResult), args.Error(1)
}

// fixedLimiter allows the first n calls per key
type fixedLimiter struct {
	mu     sync.Mutex
	n      int
	counts map[string]int
	err    error
}

func newFixedLimiter(n int) *fixedLimiter {
	return &fixedLimiter{n: n, counts: make(map[string]int)}
}

func (l *fixedLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= l.n, nil
}

type fixture struct {
	mem        *uowtest.Memory
	settler    *Settler
	plan       plan.Plan
	businessID uuid.UUID
	owner      account.User
	trial      subscription.Subscription
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := uowtest.New()
	mem.Now = clock

	p := plan.Plan{
		ID:           uuid.New(),
		Code:         "pro",
		Name:         "Pro",
		Price:        decimal.NewFromInt(25),
		Currency:     "USD",
		BillingCycle: plan.BillingCycleMonthly,
		IsActive:     true,
	}
	mem.AddPlan(p)

	businessID := uuid.New()
	owner := account.User{
		ID:         uuid.New(),
		BusinessID: &businessID,
		Type:       account.TypeBusiness,
		Name:       "Amina",
		Email:      "amina@example.com",
		IsActive:   true,
	}
	mem.AddUser(owner)

	trial, err := subscription.NewTrial(businessID, p.ID, fixedNow.Add(-10*24*time.Hour), 14*24*time.Hour)
	require.NoError(t, err)
	mem.PutSubscription(*trial)

	settler := NewSettler(SettlerConfig{
		UnitOfWork: mem,
		Payments:   mem.Payments,
		Plans:      mem.Plans,
		Now:        clock,
	})
	return &fixture{mem: mem, settler: settler, plan: p, businessID: businessID, owner: owner, trial: *trial}
}

func (f *fixture) seedTransaction(t *testing.T, ref string, typ payment.Type) *payment.Transaction {
	t.Helper()
	planID := f.plan.ID
	tx, err := payment.NewTransaction(payment.NewTransactionInput{
		ReferenceID: ref,
		UserID:      f.owner.ID,
		BusinessID:  f.owner.BusinessID,
		PlanID:      &planID,
		Type:        typ,
		Amount:      f.plan.Price,
		Currency:    f.plan.Currency,
		Channel:     "TEST",
	}, fixedNow)
	require.NoError(t, err)
	require.NoError(t, f.mem.Payments.Create(context.Background(), tx))
	return tx
}

func (f *fixture) subscription(t *testing.T) *subscription.Subscription {
	t.Helper()
	sub, err := f.mem.Subscriptions.FindByBusinessID(context.Background(), f.businessID)
	require.NoError(t, err)
	return sub
}

var errBoom = shared.NewDomainError("BOOM", "boom")

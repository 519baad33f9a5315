package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProofStorage is a mock implementation of ProofStorage
type MockProofStorage struct {
	mock.Mock
}

func (m *MockProofStorage) GenerateUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, time.Time, error) {
	args := m.Called(ctx, key, contentType, expiresIn)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockProofStorage) GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	args := m.Called(ctx, key, expiresIn)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockProofStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func newOfflineService(f *fixture, limiter RateLimiter, proofs ProofStorage) *OfflinePaymentService {
	return NewOfflinePaymentService(OfflinePaymentServiceConfig{
		UnitOfWork: f.mem,
		Payments:   f.mem.Payments,
		Plans:      f.mem.Plans,
		Users:      f.mem.Users,
		Settler:    f.settler,
		Limiter:    limiter,
		Proofs:     proofs,
		Settings:   OfflineSettings{Enabled: true, Instructions: "Pay to account 0001"},
		Now:        clock,
	})
}

func TestOfflinePaymentService_Instructions(t *testing.T) {
	f := newFixture(t)
	text, err := newOfflineService(f, newFixedLimiter(10), nil).Instructions()
	require.NoError(t, err)
	assert.Equal(t, "Pay to account 0001", text)

	disabled := NewOfflinePaymentService(OfflinePaymentServiceConfig{Settings: OfflineSettings{Instructions: "x"}})
	_, err = disabled.Instructions()
	assert.True(t, shared.IsCode(err, shared.CodeNotConfigured))
}

func TestOfflinePaymentService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending approval and notifies", func(t *testing.T) {
		f := newFixture(t)
		res, err := newOfflineService(f, newFixedLimiter(10), nil).Initiate(ctx, OfflineInitiateInput{
			UserID: f.owner.ID, PlanID: f.plan.ID, ProofOfPayment: "Transfer ref 7781",
		})
		require.NoError(t, err)
		assert.Regexp(t, `^OFF-`, res.ReferenceID)
		assert.Equal(t, payment.StatusPendingApproval, res.Status)
		assert.True(t, res.Amount.Equal(f.plan.Price))

		msgs := f.mem.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, notification.KindOfflineSubmitted, msgs[0].Kind)
	})

	t.Run("individual accounts are forbidden", func(t *testing.T) {
		f := newFixture(t)
		individual := account.User{ID: uuid.New(), Type: account.TypeIndividual, IsActive: true}
		f.mem.AddUser(individual)

		_, err := newOfflineService(f, newFixedLimiter(10), nil).Initiate(ctx, OfflineInitiateInput{UserID: individual.ID, PlanID: f.plan.ID})
		var fe *shared.ForbiddenError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, string(access.ReasonWrongAccountType), fe.Reason)
		assert.Zero(t, f.mem.TransactionCount())
	})

	t.Run("eleventh submission in a minute is rate limited", func(t *testing.T) {
		f := newFixture(t)
		svc := newOfflineService(f, newFixedLimiter(10), nil)
		for i := 0; i < 10; i++ {
			_, err := svc.Initiate(ctx, OfflineInitiateInput{UserID: f.owner.ID, PlanID: f.plan.ID})
			require.NoError(t, err)
		}

		_, err := svc.Initiate(ctx, OfflineInitiateInput{UserID: f.owner.ID, PlanID: f.plan.ID})
		assert.ErrorIs(t, err, shared.ErrRateLimited)
		assert.Equal(t, 10, f.mem.TransactionCount())
	})

	t.Run("limiter failure creates nothing", func(t *testing.T) {
		f := newFixture(t)
		limiter := newFixedLimiter(10)
		limiter.err = errors.New("redis down")

		_, err := newOfflineService(f, limiter, nil).Initiate(ctx, OfflineInitiateInput{UserID: f.owner.ID, PlanID: f.plan.ID})
		require.Error(t, err)
		assert.Zero(t, f.mem.TransactionCount())
	})

	t.Run("uploaded proof must exist", func(t *testing.T) {
		f := newFixture(t)
		proofs := new(MockProofStorage)
		proofs.On("ObjectExists", mock.Anything, "payment-proofs/x.png").Return(false, nil)

		_, err := newOfflineService(f, newFixedLimiter(10), proofs).Initiate(ctx, OfflineInitiateInput{
			UserID: f.owner.ID, PlanID: f.plan.ID, ProofOfPayment: "payment-proofs/x.png",
		})
		assert.True(t, shared.IsCode(err, shared.CodeValidation))
	})
}

func TestOfflinePaymentService_ApproveTwice(t *testing.T) {
	f := newFixture(t)
	f.seedTransaction(t, "OFF-1001", payment.TypeOffline)
	svc := newOfflineService(f, newFixedLimiter(10), nil)
	admin := uuid.New()
	ctx := context.Background()

	first, err := svc.Approve(ctx, "OFF-1001", admin, "checked bank statement")
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, payment.StatusApproved, first.Status)
	require.NotNil(t, first.Subscription)
	endsAt := *first.Subscription.EndsAt
	assert.Equal(t, fixedNow.AddDate(0, 1, 0), endsAt)

	second, err := svc.Approve(ctx, "OFF-1001", admin, "")
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, "Payment was already approved", second.Message)

	sub := f.subscription(t)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, endsAt, *sub.EndsAt)

	msgs := f.mem.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notification.KindOfflineApproved, msgs[0].Kind)

	tx, err := f.mem.Payments.FindByReference(ctx, "OFF-1001")
	require.NoError(t, err)
	assert.Equal(t, admin, *tx.ProcessedBy)
}

func TestOfflinePaymentService_Reject(t *testing.T) {
	f := newFixture(t)
	f.seedTransaction(t, "OFF-2002", payment.TypeOffline)
	svc := newOfflineService(f, newFixedLimiter(10), nil)
	ctx := context.Background()

	_, err := svc.Reject(ctx, "OFF-2002", "  ", uuid.New())
	assert.True(t, shared.IsCode(err, shared.CodeValidation))

	res, err := svc.Reject(ctx, "OFF-2002", "Amount does not match", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRejected, res.Status)
	assert.Equal(t, subscription.StatusTrial, f.subscription(t).Status)

	msgs := f.mem.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notification.KindOfflineRejected, msgs[0].Kind)
	assert.Equal(t, "Amount does not match", msgs[0].Payload["reason"])

	again, err := svc.Approve(ctx, "OFF-2002", uuid.New(), "")
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Equal(t, payment.StatusRejected, again.Status)
}

func TestOfflinePaymentService_ApproveOnlineTransaction(t *testing.T) {
	f := newFixture(t)
	f.seedTransaction(t, "WP-1", payment.TypeOnline)

	_, err := newOfflineService(f, newFixedLimiter(10), nil).Approve(context.Background(), "WP-1", uuid.New(), "")
	assert.ErrorIs(t, err, payment.ErrOutcomeMismatch)
}

func TestOfflinePaymentService_Status(t *testing.T) {
	f := newFixture(t)
	f.seedTransaction(t, "OFF-3", payment.TypeOffline)
	svc := newOfflineService(f, newFixedLimiter(10), nil)

	res, err := svc.Status(context.Background(), "OFF-3", f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPendingApproval, res.Status)

	_, err = svc.Status(context.Background(), "OFF-3", uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOfflinePaymentService_ProofURLs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expires := fixedNow.Add(15 * time.Minute)

	t.Run("unavailable without storage", func(t *testing.T) {
		_, err := newOfflineService(f, newFixedLimiter(10), nil).ProofUploadURL(ctx, f.owner.ID, "image/png")
		assert.True(t, shared.IsCode(err, shared.CodeNotConfigured))
	})

	t.Run("rejects unsupported content type", func(t *testing.T) {
		_, err := newOfflineService(f, newFixedLimiter(10), new(MockProofStorage)).ProofUploadURL(ctx, f.owner.ID, "text/html")
		assert.True(t, shared.IsCode(err, shared.CodeValidation))
	})

	t.Run("presigns upload under the user prefix", func(t *testing.T) {
		proofs := new(MockProofStorage)
		proofs.On("GenerateUploadURL", mock.Anything, mock.MatchedBy(func(key string) bool {
			return len(key) > 0 && key[len(key)-4:] == ".pdf"
		}), "application/pdf", 15*time.Minute).Return("https://s3/upload", expires, nil)

		up, err := newOfflineService(f, newFixedLimiter(10), proofs).ProofUploadURL(ctx, f.owner.ID, "application/pdf")
		require.NoError(t, err)
		assert.Contains(t, up.StorageKey, "payment-proofs/"+f.owner.ID.String()+"/")
		assert.Equal(t, "https://s3/upload", up.UploadURL)
		proofs.AssertExpectations(t)
	})

	t.Run("download needs a stored file", func(t *testing.T) {
		f.seedTransaction(t, "OFF-TEXT", payment.TypeOffline)
		_, _, err := newOfflineService(f, newFixedLimiter(10), new(MockProofStorage)).ProofDownloadURL(ctx, "OFF-TEXT")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

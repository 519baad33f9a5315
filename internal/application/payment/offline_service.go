package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bizbook/backend/internal/application/uow"
	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/notification"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/domain/subscription"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChannelBankTransfer is the channel recorded for offline payments
const ChannelBankTransfer = "BANK_TRANSFER"

// offlineRateLimitPrefix namespaces limiter keys for offline submissions
const offlineRateLimitPrefix = "offline_payment:"

// proofKeyPrefix is the object storage prefix for proof-of-payment files
const proofKeyPrefix = "payment-proofs/"

var allowedProofTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// OfflineSettings is the configuration snapshot for the offline channel
type OfflineSettings struct {
	Enabled bool
	// Instructions are the bank transfer details shown to payers
	Instructions string
	// ProofURLTTL is how long presigned proof URLs stay valid
	ProofURLTTL time.Duration
}

// OfflinePaymentService handles proof-of-payment submissions and their review
type OfflinePaymentService struct {
	uow      uow.UnitOfWork
	payments payment.Store
	plans    plan.Repository
	users    account.Directory
	settler  *Settler
	limiter  RateLimiter
	proofs   ProofStorage
	settings OfflineSettings
	metrics  *telemetry.PaymentMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// OfflinePaymentServiceConfig contains dependencies for OfflinePaymentService
type OfflinePaymentServiceConfig struct {
	UnitOfWork uow.UnitOfWork
	Payments   payment.Store
	Plans      plan.Repository
	Users      account.Directory
	Settler    *Settler
	Limiter    RateLimiter
	// Proofs is optional; without it proof uploads are unavailable
	Proofs   ProofStorage
	Settings OfflineSettings
	Metrics  *telemetry.PaymentMetrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewOfflinePaymentService creates a new OfflinePaymentService
func NewOfflinePaymentService(cfg OfflinePaymentServiceConfig) *OfflinePaymentService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	settings := cfg.Settings
	if settings.ProofURLTTL <= 0 {
		settings.ProofURLTTL = 15 * time.Minute
	}
	return &OfflinePaymentService{
		uow:      cfg.UnitOfWork,
		payments: cfg.Payments,
		plans:    cfg.Plans,
		users:    cfg.Users,
		settler:  cfg.Settler,
		limiter:  cfg.Limiter,
		proofs:   cfg.Proofs,
		settings: settings,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      now,
	}
}

var errOfflineNotConfigured = shared.NewDomainError(shared.CodeNotConfigured, "Offline payments are not available")

// Instructions returns the bank transfer instructions
func (s *OfflinePaymentService) Instructions() (string, error) {
	if !s.settings.Enabled || strings.TrimSpace(s.settings.Instructions) == "" {
		return "", errOfflineNotConfigured
	}
	return s.settings.Instructions, nil
}

// OfflineInitiateInput is a proof-of-payment submission
type OfflineInitiateInput struct {
	UserID         uuid.UUID
	PlanID         uuid.UUID
	ProofOfPayment string
}

// OfflineInitiateResult reports the transaction awaiting review
type OfflineInitiateResult struct {
	ReferenceID string
	Status      payment.Status
	Amount      decimal.Decimal
	Currency    string
	PlanName    string
}

// Initiate records an offline payment for admin review. Only business
// accounts may submit, and each user is rate limited; a limited request
// creates no transaction.
func (s *OfflinePaymentService) Initiate(ctx context.Context, in OfflineInitiateInput) (*OfflineInitiateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "offline_payment", "initiate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentType, string(payment.TypeOffline))

	if !s.settings.Enabled {
		return nil, errOfflineNotConfigured
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsBusiness() {
		return nil, access.Deny(access.ReasonWrongAccountType).Err()
	}

	allowed, err := s.limiter.Allow(ctx, offlineRateLimitPrefix+in.UserID.String())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("offline payment rate limit: %w", err)
	}
	if !allowed {
		s.logger.Warn("Offline payment submission rate limited", zap.String("user_id", in.UserID.String()))
		return nil, shared.ErrRateLimited
	}

	p, err := s.plans.FindByID(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, shared.NewValidationError("plan is not available for purchase")
	}

	proof := strings.TrimSpace(in.ProofOfPayment)
	if proof != "" && strings.HasPrefix(proof, proofKeyPrefix) && s.proofs != nil {
		exists, err := s.proofs.ObjectExists(ctx, proof)
		if err != nil {
			s.logger.Warn("Could not verify proof upload", zap.String("key", proof), zap.Error(err))
		} else if !exists {
			return nil, shared.NewValidationError("proof of payment file was not uploaded")
		}
	}

	planID := p.ID
	tx, err := payment.NewTransaction(payment.NewTransactionInput{
		ReferenceID:    payment.NewReferenceID(payment.OfflineReferencePrefix),
		UserID:         user.ID,
		BusinessID:     user.BusinessID,
		PlanID:         &planID,
		Type:           payment.TypeOffline,
		Amount:         p.Price,
		Currency:       p.Currency,
		Channel:        ChannelBankTransfer,
		ProofOfPayment: proof,
	}, s.now())
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context, stores uow.Stores) error {
		if err := stores.Payments.Create(ctx, tx); err != nil {
			return err
		}
		return stores.Notifications.Enqueue(ctx, notification.Message{
			Kind:   notification.KindOfflineSubmitted,
			UserID: user.ID,
			Payload: map[string]string{
				"reference_id": tx.ReferenceID,
				"plan_name":    p.Name,
				"amount":       tx.Amount.StringFixed(2),
				"currency":     tx.Currency,
			},
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordInitiated(ctx, string(payment.TypeOffline))
	s.logger.Info("Offline payment submitted",
		zap.String("reference_id", tx.ReferenceID),
		zap.String("user_id", user.ID.String()),
		zap.String("plan_id", p.ID.String()))

	return &OfflineInitiateResult{
		ReferenceID: tx.ReferenceID,
		Status:      tx.Status,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		PlanName:    p.Name,
	}, nil
}

// Status returns an offline transaction owned by userID
func (s *OfflinePaymentService) Status(ctx context.Context, referenceID string, userID uuid.UUID) (*StatusResult, error) {
	tx, err := s.payments.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID || tx.Type != payment.TypeOffline {
		return nil, payment.ErrTransactionNotFound
	}
	return newStatusResult(tx), nil
}

// ReviewResult is the outcome of an admin decision. A decision on an already
// resolved transaction is reported, not raised.
type ReviewResult struct {
	ReferenceID      string
	Status           payment.Status
	AlreadyProcessed bool
	Message          string
	Subscription     *subscription.Subscription
}

// Approve accepts a pending offline payment and activates the purchased plan
func (s *OfflinePaymentService) Approve(ctx context.Context, referenceID string, adminID uuid.UUID, notes string) (*ReviewResult, error) {
	settlement, err := s.settler.Settle(ctx, referenceID, payment.OutcomeApproved, payment.OutcomeDetail{
		ProcessedBy: &adminID,
		Notes:       strings.TrimSpace(notes),
	})
	if err != nil {
		return nil, err
	}
	result := reviewResult(settlement)
	if !result.AlreadyProcessed {
		result.Message = "Payment approved"
		s.logger.Info("Offline payment approved",
			zap.String("reference_id", referenceID),
			zap.String("admin_id", adminID.String()))
	}
	return result, nil
}

// Reject declines a pending offline payment. The subscription is unchanged.
func (s *OfflinePaymentService) Reject(ctx context.Context, referenceID, reason string, adminID uuid.UUID) (*ReviewResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewValidationError("rejection reason is required")
	}
	settlement, err := s.settler.Settle(ctx, referenceID, payment.OutcomeRejected, payment.OutcomeDetail{
		ProcessedBy: &adminID,
		Notes:       reason,
	})
	if err != nil {
		return nil, err
	}
	result := reviewResult(settlement)
	if !result.AlreadyProcessed {
		result.Message = "Payment rejected"
		s.logger.Info("Offline payment rejected",
			zap.String("reference_id", referenceID),
			zap.String("admin_id", adminID.String()))
	}
	return result, nil
}

func reviewResult(st *Settlement) *ReviewResult {
	r := &ReviewResult{
		ReferenceID:  st.Transaction.ReferenceID,
		Status:       st.Transaction.Status,
		Subscription: st.Subscription,
	}
	if !st.Applied {
		r.AlreadyProcessed = true
		r.Message = fmt.Sprintf("Payment was already %s", st.Transaction.Status)
	}
	return r
}

// List returns offline transactions for the review queue
func (s *OfflinePaymentService) List(ctx context.Context, status payment.Status, page, pageSize int) ([]payment.Transaction, int64, error) {
	return s.payments.List(ctx, payment.ListFilter{
		Type:     payment.TypeOffline,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
}

// ProofUpload is a presigned upload target for a proof file
type ProofUpload struct {
	StorageKey string
	UploadURL  string
	ExpiresAt  time.Time
}

// ProofUploadURL returns a presigned URL the client uploads a proof file to
func (s *OfflinePaymentService) ProofUploadURL(ctx context.Context, userID uuid.UUID, contentType string) (*ProofUpload, error) {
	if !s.settings.Enabled || s.proofs == nil {
		return nil, shared.NewDomainError(shared.CodeNotConfigured, "Proof uploads are not available")
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedProofTypes[contentType]
	if !ok {
		return nil, shared.NewValidationError("proof must be a JPEG, PNG or PDF file")
	}

	key := fmt.Sprintf("%s%s/%s%s", proofKeyPrefix, userID, uuid.NewString(), ext)
	url, expiresAt, err := s.proofs.GenerateUploadURL(ctx, key, contentType, s.settings.ProofURLTTL)
	if err != nil {
		return nil, err
	}
	return &ProofUpload{StorageKey: key, UploadURL: url, ExpiresAt: expiresAt}, nil
}

// ProofDownloadURL returns a presigned URL for the proof attached to a
// transaction. Proofs given as plain text have no download.
func (s *OfflinePaymentService) ProofDownloadURL(ctx context.Context, referenceID string) (string, time.Time, error) {
	if s.proofs == nil {
		return "", time.Time{}, shared.NewDomainError(shared.CodeNotConfigured, "Proof storage is not available")
	}
	tx, err := s.payments.FindByReference(ctx, referenceID)
	if err != nil {
		return "", time.Time{}, err
	}
	if !strings.HasPrefix(tx.ProofOfPayment, proofKeyPrefix) {
		return "", time.Time{}, shared.NewNotFoundError("Proof of payment file")
	}
	return s.proofs.GenerateDownloadURL(ctx, tx.ProofOfPayment, s.settings.ProofURLTTL)
}

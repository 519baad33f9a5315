package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultChargeTimeout bounds a single gateway call
const DefaultChargeTimeout = 30 * time.Second

// ChannelMobile is the channel recorded for wallet payments
const ChannelMobile = "MOBILE"

// GatewayPaymentService drives mobile-wallet payments through the gateway
type GatewayPaymentService struct {
	gateway        payment.Gateway
	payments       payment.Store
	plans          plan.Repository
	settler        *Settler
	currency       string
	timeout        time.Duration
	offlineEnabled bool
	metrics        *telemetry.PaymentMetrics
	logger         *zap.Logger
	now            func() time.Time
}

// GatewayPaymentServiceConfig contains dependencies for GatewayPaymentService
type GatewayPaymentServiceConfig struct {
	Gateway  payment.Gateway
	Payments payment.Store
	Plans    plan.Repository
	Settler  *Settler
	// Currency is charged when the request does not name a plan
	Currency      string
	ChargeTimeout time.Duration
	// OfflineEnabled adds the bank transfer channel to Methods
	OfflineEnabled bool
	Metrics        *telemetry.PaymentMetrics
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewGatewayPaymentService creates a new GatewayPaymentService
func NewGatewayPaymentService(cfg GatewayPaymentServiceConfig) *GatewayPaymentService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.ChargeTimeout
	if timeout <= 0 {
		timeout = DefaultChargeTimeout
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &GatewayPaymentService{
		gateway:        cfg.Gateway,
		payments:       cfg.Payments,
		plans:          cfg.Plans,
		settler:        cfg.Settler,
		currency:       currency,
		timeout:        timeout,
		offlineEnabled: cfg.OfflineEnabled,
		metrics:        cfg.Metrics,
		logger:         logger,
		now:            now,
	}
}

// errGatewayNotConfigured is surfaced to clients as a 503
var errGatewayNotConfigured = shared.WrapDomainError(shared.CodeNotConfigured,
	"Mobile wallet payments are not available", payment.ErrGatewayNotConfigured)

// Method is one payment method a client can choose
type Method struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Wallets []string `json:"wallets,omitempty"`
}

// Methods lists the payment methods that are currently configured
func (s *GatewayPaymentService) Methods() ([]Method, error) {
	var methods []Method
	if s.gateway != nil && s.gateway.IsConfigured() {
		wallets := payment.SupportedWallets()
		names := make([]string, len(wallets))
		for i, w := range wallets {
			names[i] = string(w)
		}
		methods = append(methods, Method{Code: "waafipay", Name: "Mobile wallet", Wallets: names})
	}
	if s.offlineEnabled {
		methods = append(methods, Method{Code: "offline", Name: "Bank transfer"})
	}
	if len(methods) == 0 {
		return nil, shared.NewDomainError(shared.CodeNotConfigured, "No payment methods are configured")
	}
	return methods, nil
}

// InitiateInput is a request to charge a mobile wallet
type InitiateInput struct {
	UserID       uuid.UUID
	BusinessID   *uuid.UUID
	PlanID       *uuid.UUID
	Amount       decimal.Decimal
	PhoneNumber  string
	WalletType   string
	CustomerName string
	Description  string
	InvoiceID    string
}

// InitiateResult reports the transaction created for a charge
type InitiateResult struct {
	ReferenceID string
	Status      payment.Status
	Amount      decimal.Decimal
	Currency    string
	Message     string
}

// Initiate validates the payer, records a pending transaction and asks the
// gateway to charge the wallet. A gateway timeout or transport failure
// leaves the transaction pending for the webhook or a status poll to settle.
func (s *GatewayPaymentService) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "initiate")
	defer span.End()

	if s.gateway == nil || !s.gateway.IsConfigured() {
		return nil, errGatewayNotConfigured
	}

	wallet, err := payment.ParseWalletType(in.WalletType)
	if err != nil {
		return nil, err
	}
	accountNo, err := payment.NormalizePhone(in.PhoneNumber, wallet)
	if err != nil {
		return nil, err
	}

	amount, currency := in.Amount, s.currency
	if in.PlanID != nil {
		p, err := s.plans.FindByID(ctx, *in.PlanID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, shared.NewValidationError("plan is not available for purchase")
		}
		if amount.IsZero() {
			amount = p.Price
		} else if !amount.Equal(p.Price) {
			return nil, shared.NewValidationError("amount does not match the plan price")
		}
		currency = p.Currency
	}

	tx, err := payment.NewTransaction(payment.NewTransactionInput{
		ReferenceID: payment.NewReferenceID(payment.OnlineReferencePrefix),
		UserID:      in.UserID,
		BusinessID:  in.BusinessID,
		PlanID:      in.PlanID,
		Type:        payment.TypeOnline,
		Amount:      amount,
		Currency:    currency,
		Channel:     ChannelMobile,
		WalletType:  string(wallet),
		PhoneNumber: accountNo,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, tx); err != nil {
		if errors.Is(err, shared.ErrDuplicateReference) {
			s.logger.Error("Generated reference ID collided", zap.String("reference_id", tx.ReferenceID))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.metrics.RecordInitiated(ctx, string(payment.TypeOnline))
	telemetry.SetAttributes(span, telemetry.SpanAttrReferenceID, tx.ReferenceID, "wallet_type", string(wallet))

	result := &InitiateResult{
		ReferenceID: tx.ReferenceID,
		Status:      payment.StatusPending,
		Amount:      amount,
		Currency:    currency,
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	gw, err := s.gateway.Charge(chargeCtx, payment.ChargeRequest{
		ReferenceID:  tx.ReferenceID,
		InvoiceID:    in.InvoiceID,
		AccountNo:    accountNo,
		WalletType:   wallet,
		Amount:       amount,
		Currency:     currency,
		Description:  in.Description,
		CustomerName: in.CustomerName,
	})
	if err != nil {
		if errors.Is(err, payment.ErrGatewayTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("Gateway charge timed out, awaiting confirmation",
				zap.String("reference_id", tx.ReferenceID))
			result.Message = "Payment is being processed"
			return result, nil
		}
		s.logger.Error("Gateway charge failed",
			zap.String("reference_id", tx.ReferenceID),
			zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.WrapDomainError(shared.CodeGatewayError, "Payment could not be started, please try again", err)
	}

	outcome, known := payment.ClassifyGatewayResult(gw.ResponseCode, gw.State)
	if !known {
		if err := s.payments.RecordRawPayload(ctx, tx.ReferenceID, gw.Raw); err != nil {
			return nil, err
		}
		result.Message = "Payment is being processed"
		return result, nil
	}

	settlement, err := s.settler.Settle(ctx, tx.ReferenceID, outcome, payment.OutcomeDetail{
		RawPayload:           gw.Raw,
		GatewayTransactionID: gw.TransactionID,
		Notes:                gw.ResponseMsg,
	})
	if err != nil {
		return nil, err
	}
	result.Status = settlement.Transaction.Status
	if result.Status == payment.StatusFailed {
		msg := strings.TrimSpace(gw.ResponseMsg)
		if msg == "" {
			msg = "Payment was declined"
		}
		return result, shared.NewDomainError(shared.CodeGatewayError, msg)
	}
	result.Message = "Payment completed"
	return result, nil
}

// WebhookPayload is the gateway's asynchronous callback
type WebhookPayload struct {
	ReferenceID   string
	TransactionID string
	ResponseCode  string
	State         string
	ResponseMsg   string
	Raw           []byte
}

// WebhookResult reports how a callback was handled
type WebhookResult struct {
	ReferenceID string
	Status      payment.Status
	// Processed is true when the callback carried a known outcome
	Processed bool
	// Applied is true only for the callback that settled the transaction
	Applied bool
	Message string
}

// Confirmed reports whether the transaction is settled as paid
func (r *WebhookResult) Confirmed() bool {
	return r.Status == payment.StatusSuccess
}

// HandleWebhook applies a gateway callback. Unknown code/state pairs are
// stored verbatim without a status change. Safe to call concurrently and
// repeatedly for the same reference.
func (s *GatewayPaymentService) HandleWebhook(ctx context.Context, p WebhookPayload) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "webhook")
	defer span.End()

	ref := strings.TrimSpace(p.ReferenceID)
	if ref == "" {
		return nil, shared.NewValidationError("referenceId is required")
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrReferenceID, ref, "response_code", p.ResponseCode)

	tx, err := s.payments.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Webhook for unknown transaction",
				zap.String("reference_id", ref),
				zap.String("response_code", p.ResponseCode))
		}
		return nil, err
	}
	if tx.Type != payment.TypeOnline {
		s.logger.Warn("Webhook targets offline transaction", zap.String("reference_id", ref))
		return nil, payment.ErrTransactionNotFound
	}
	if tx.Status.IsTerminal() {
		s.logger.Info("Webhook for settled transaction ignored",
			zap.String("reference_id", ref),
			zap.String("status", string(tx.Status)),
			zap.String("response_code", p.ResponseCode))
		return &WebhookResult{
			ReferenceID: ref,
			Status:      tx.Status,
			Processed:   true,
			Message:     "Transaction already processed",
		}, nil
	}

	outcome, known := payment.ClassifyGatewayResult(p.ResponseCode, p.State)
	if !known {
		if err := s.payments.RecordRawPayload(ctx, ref, p.Raw); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.logger.Info("Webhook with unmapped gateway state recorded",
			zap.String("reference_id", ref),
			zap.String("response_code", p.ResponseCode),
			zap.String("state", p.State))
		return &WebhookResult{ReferenceID: ref, Status: tx.Status, Message: "Callback recorded"}, nil
	}

	settlement, err := s.settler.Settle(ctx, ref, outcome, payment.OutcomeDetail{
		RawPayload:           p.Raw,
		GatewayTransactionID: p.TransactionID,
		Notes:                p.ResponseMsg,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &WebhookResult{
		ReferenceID: ref,
		Status:      settlement.Transaction.Status,
		Processed:   true,
		Applied:     settlement.Applied,
	}
	switch {
	case !settlement.Applied:
		result.Message = "Transaction already processed"
	case result.Confirmed():
		result.Message = "Payment confirmed"
	default:
		result.Message = "Payment failed"
	}
	return result, nil
}

// StatusResult is the client-facing view of a transaction
type StatusResult struct {
	ReferenceID string
	Type        payment.Type
	Status      payment.Status
	Amount      decimal.Decimal
	Currency    string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func newStatusResult(tx *payment.Transaction) *StatusResult {
	return &StatusResult{
		ReferenceID: tx.ReferenceID,
		Type:        tx.Type,
		Status:      tx.Status,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		CreatedAt:   tx.CreatedAt,
		CompletedAt: tx.CompletedAt,
	}
}

// CheckStatus returns the transaction status, polling the gateway while it
// is still pending. Transactions owned by another user read as not found.
func (s *GatewayPaymentService) CheckStatus(ctx context.Context, referenceID string, userID uuid.UUID) (*StatusResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "check_status")
	defer span.End()

	tx, err := s.payments.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID || tx.Type != payment.TypeOnline {
		return nil, payment.ErrTransactionNotFound
	}
	if tx.Status.IsTerminal() || s.gateway == nil || !s.gateway.IsConfigured() {
		return newStatusResult(tx), nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	gw, err := s.gateway.QueryStatus(pollCtx, referenceID)
	if err != nil {
		s.logger.Warn("Gateway status poll failed",
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return newStatusResult(tx), nil
	}

	outcome, known := payment.ClassifyGatewayResult(gw.ResponseCode, gw.State)
	if !known {
		if err := s.payments.RecordRawPayload(ctx, referenceID, gw.Raw); err != nil {
			s.logger.Warn("Failed to record polled payload", zap.String("reference_id", referenceID), zap.Error(err))
		}
		return newStatusResult(tx), nil
	}

	settlement, err := s.settler.Settle(ctx, referenceID, outcome, payment.OutcomeDetail{
		RawPayload:           gw.Raw,
		GatewayTransactionID: gw.TransactionID,
		Notes:                gw.ResponseMsg,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return newStatusResult(settlement.Transaction), nil
}

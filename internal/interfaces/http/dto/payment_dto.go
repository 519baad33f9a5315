package dto

import (
	"time"

	"github.com/bizbook/backend/internal/application/payment"
	"github.com/bizbook/backend/internal/application/subscription"
	domainpayment "github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest charges a mobile wallet
type InitiatePaymentRequest struct {
	PhoneNumber  string          `json:"phone_number" binding:"required,max=20"`
	Amount       decimal.Decimal `json:"amount"`
	WalletType   string          `json:"wallet_type" binding:"omitempty,wallet_type"`
	PlanID       string          `json:"plan_id" binding:"omitempty,uuid"`
	CustomerName string          `json:"customer_name" binding:"omitempty,max=100"`
	Description  string          `json:"description" binding:"omitempty,max=255"`
	InvoiceID    string          `json:"invoice_id" binding:"omitempty,max=64"`
}

// ReferenceRequest identifies a transaction by reference
type ReferenceRequest struct {
	ReferenceID string `json:"reference_id" binding:"required,max=64"`
}

// OfflinePaymentRequest submits a bank transfer for review
type OfflinePaymentRequest struct {
	PlanID         string `json:"plan_id" binding:"required,uuid"`
	ProofOfPayment string `json:"proof_of_payment" binding:"omitempty,max=1000"`
}

// ProofUploadRequest asks for a presigned proof upload URL
type ProofUploadRequest struct {
	ContentType string `json:"content_type" binding:"required,oneof=image/jpeg image/png application/pdf"`
}

// ApproveRequest is an admin approval of an offline payment
type ApproveRequest struct {
	Notes string `json:"notes" binding:"omitempty,max=500"`
}

// RejectRequest is an admin rejection of an offline payment
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// StartTrialRequest starts the trial of a business account
type StartTrialRequest struct {
	PlanID string `json:"plan_id" binding:"required,uuid"`
}

// OfflineListRequest filters the offline review queue
type OfflineListRequest struct {
	ListRequest
	Status string `form:"status" binding:"omitempty,oneof=pending_approval approved rejected"`
}

// PaymentMethodsResponse lists the configured payment methods
type PaymentMethodsResponse struct {
	Methods []payment.Method `json:"methods"`
}

// InitiatePaymentResponse reports a started payment
type InitiatePaymentResponse struct {
	ReferenceID string          `json:"reference_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Message     string          `json:"message,omitempty"`
}

// NewInitiatePaymentResponse converts an initiate result
func NewInitiatePaymentResponse(r *payment.InitiateResult) InitiatePaymentResponse {
	return InitiatePaymentResponse{
		ReferenceID: r.ReferenceID,
		Status:      string(r.Status),
		Amount:      r.Amount,
		Currency:    r.Currency,
		Message:     r.Message,
	}
}

// PaymentStatusResponse is the client view of a transaction
type PaymentStatusResponse struct {
	ReferenceID string          `json:"reference_id"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewPaymentStatusResponse converts a status result
func NewPaymentStatusResponse(r *payment.StatusResult) PaymentStatusResponse {
	return PaymentStatusResponse{
		ReferenceID: r.ReferenceID,
		Type:        string(r.Type),
		Status:      string(r.Status),
		Amount:      r.Amount,
		Currency:    r.Currency,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

// OfflinePaymentResponse reports a submission awaiting review
type OfflinePaymentResponse struct {
	ReferenceID string          `json:"reference_id"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PlanName    string          `json:"plan_name"`
}

// NewOfflinePaymentResponse converts an offline initiate result
func NewOfflinePaymentResponse(r *payment.OfflineInitiateResult) OfflinePaymentResponse {
	return OfflinePaymentResponse{
		ReferenceID: r.ReferenceID,
		Status:      string(r.Status),
		Amount:      r.Amount,
		Currency:    r.Currency,
		PlanName:    r.PlanName,
	}
}

// InstructionsResponse holds the bank transfer instructions
type InstructionsResponse struct {
	Instructions string `json:"instructions"`
}

// PresignedURLResponse is a time-limited object storage URL
type PresignedURLResponse struct {
	URL        string    `json:"url"`
	StorageKey string    `json:"storage_key,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// WebhookResponse acknowledges a gateway callback
type WebhookResponse struct {
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	Confirmed   bool   `json:"confirmed"`
	Processed   bool   `json:"processed"`
	Message     string `json:"message"`
}

// NewWebhookResponse converts a webhook result
func NewWebhookResponse(r *payment.WebhookResult) WebhookResponse {
	return WebhookResponse{
		ReferenceID: r.ReferenceID,
		Status:      string(r.Status),
		Confirmed:   r.Confirmed(),
		Processed:   r.Processed,
		Message:     r.Message,
	}
}

// OfflineTransactionResponse is one row of the admin review queue
type OfflineTransactionResponse struct {
	ReferenceID    string          `json:"reference_id"`
	UserID         string          `json:"user_id"`
	BusinessID     string          `json:"business_id,omitempty"`
	PlanID         string          `json:"plan_id,omitempty"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	ProofOfPayment string          `json:"proof_of_payment,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	ProcessedBy    string          `json:"processed_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewOfflineTransactionResponse converts a stored transaction
func NewOfflineTransactionResponse(tx *domainpayment.Transaction) OfflineTransactionResponse {
	r := OfflineTransactionResponse{
		ReferenceID:    tx.ReferenceID,
		UserID:         tx.UserID.String(),
		Status:         string(tx.Status),
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		ProofOfPayment: tx.ProofOfPayment,
		Notes:          tx.Notes,
		CreatedAt:      tx.CreatedAt,
		CompletedAt:    tx.CompletedAt,
	}
	if tx.BusinessID != nil {
		r.BusinessID = tx.BusinessID.String()
	}
	if tx.PlanID != nil {
		r.PlanID = tx.PlanID.String()
	}
	if tx.ProcessedBy != nil {
		r.ProcessedBy = tx.ProcessedBy.String()
	}
	return r
}

// ReviewResponse reports an admin decision
type ReviewResponse struct {
	ReferenceID      string     `json:"reference_id"`
	Status           string     `json:"status"`
	AlreadyProcessed bool       `json:"already_processed"`
	Message          string     `json:"message"`
	SubscriptionEnds *time.Time `json:"subscription_ends_at,omitempty"`
}

// NewReviewResponse converts a review result
func NewReviewResponse(r *payment.ReviewResult) ReviewResponse {
	resp := ReviewResponse{
		ReferenceID:      r.ReferenceID,
		Status:           string(r.Status),
		AlreadyProcessed: r.AlreadyProcessed,
		Message:          r.Message,
	}
	if r.Subscription != nil {
		resp.SubscriptionEnds = r.Subscription.EndsAt
	}
	return resp
}

// SubscriptionResponse is the current entitlement of the caller's business
type SubscriptionResponse struct {
	Status        string     `json:"status"`
	PlanID        string     `json:"plan_id,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	TrialEndsAt   *time.Time `json:"trial_ends_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

// SubscriptionStatusNotApplicable is reported for individual accounts
const SubscriptionStatusNotApplicable = "not_applicable"

// NewSubscriptionResponse converts an entitlement view
func NewSubscriptionResponse(v *subscription.EntitlementView) SubscriptionResponse {
	return SubscriptionResponse{
		Status:        string(v.Status),
		PlanID:        v.PlanID.String(),
		Plan:          v.PlanName,
		DaysRemaining: v.DaysRemaining,
		TrialEndsAt:   v.TrialEndsAt,
		EndsAt:        v.EndsAt,
	}
}

// PlanResponse is a purchasable plan
type PlanResponse struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	BillingCycle string          `json:"billing_cycle"`
	Features     map[string]bool `json:"features"`
}

// NewPlanResponse converts a catalog plan, resolving each declared feature
func NewPlanResponse(p *plan.Plan) PlanResponse {
	features := make(map[string]bool, len(p.Features))
	for name := range p.Features {
		features[name] = p.HasFeature(name)
	}
	return PlanResponse{
		ID:           p.ID.String(),
		Code:         p.Code,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		BillingCycle: string(p.BillingCycle),
		Features:     features,
	}
}

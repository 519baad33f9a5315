// Package payment models payment attempts from the mobile-wallet gateway and
// the offline bank-transfer channel.
package payment

import (
	"context"
	"time"

	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the channel family a transaction belongs to
type Type string

const (
	TypeOnline  Type = "online"
	TypeOffline Type = "offline"
)

// Status is the state of a payment transaction
type Status string

const (
	// Online statuses
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"

	// Offline statuses
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

// IsTerminal returns true once the status can no longer change
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// InitialStatus returns the status a new transaction of type t starts in
func (t Type) InitialStatus() Status {
	if t == TypeOffline {
		return StatusPendingApproval
	}
	return StatusPending
}

// IsValid returns true if the payment type is known
func (t Type) IsValid() bool {
	return t == TypeOnline || t == TypeOffline
}

// Outcome is a terminal result reported for a transaction
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Status returns the terminal status the outcome moves a transaction to
func (o Outcome) Status() Status {
	return Status(o)
}

// IsSuccess returns true for outcomes that pay for the plan
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSuccess || o == OutcomeApproved
}

// ValidFor reports whether the outcome belongs to the payment type's vocabulary
func (o Outcome) ValidFor(t Type) bool {
	switch t {
	case TypeOnline:
		return o == OutcomeSuccess || o == OutcomeFailed
	case TypeOffline:
		return o == OutcomeApproved || o == OutcomeRejected
	}
	return false
}

// Payment domain errors
var (
	ErrTransactionNotFound = shared.NewNotFoundError("Payment transaction")
	ErrOutcomeMismatch     = shared.NewValidationError("Outcome does not match the payment type")
	ErrInvalidAmount       = shared.NewValidationError("Amount must be greater than zero")
)

// Transaction is one payment attempt, keyed by its reference ID
type Transaction struct {
	ID                   uuid.UUID
	ReferenceID          string
	UserID               uuid.UUID
	BusinessID           *uuid.UUID
	PlanID               *uuid.UUID
	Type                 Type
	Status               Status
	Amount               decimal.Decimal
	Currency             string
	Channel              string
	WalletType           string
	PhoneNumber          string
	GatewayTransactionID string
	ProofOfPayment       string
	RawResponse          []byte
	ProcessedBy          *uuid.UUID
	Notes                string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
}

// NewTransactionInput carries the fields needed to record a payment attempt
type NewTransactionInput struct {
	ReferenceID    string
	UserID         uuid.UUID
	BusinessID     *uuid.UUID
	PlanID         *uuid.UUID
	Type           Type
	Amount         decimal.Decimal
	Currency       string
	Channel        string
	WalletType     string
	PhoneNumber    string
	ProofOfPayment string
}

// NewTransaction validates input and builds a transaction in its initial status
func NewTransaction(in NewTransactionInput, now time.Time) (*Transaction, error) {
	if in.ReferenceID == "" {
		return nil, shared.NewValidationError("reference ID is required")
	}
	if in.UserID == uuid.Nil {
		return nil, shared.NewValidationError("user ID is required")
	}
	if !in.Type.IsValid() {
		return nil, shared.NewValidationError("invalid payment type")
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Currency == "" {
		return nil, shared.NewValidationError("currency is required")
	}
	return &Transaction{
		ID:             uuid.New(),
		ReferenceID:    in.ReferenceID,
		UserID:         in.UserID,
		BusinessID:     in.BusinessID,
		PlanID:         in.PlanID,
		Type:           in.Type,
		Status:         in.Type.InitialStatus(),
		Amount:         in.Amount,
		Currency:       in.Currency,
		Channel:        in.Channel,
		WalletType:     in.WalletType,
		PhoneNumber:    in.PhoneNumber,
		ProofOfPayment: in.ProofOfPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyOutcome moves a non-terminal transaction to the outcome's status.
// It returns false and leaves the transaction untouched when the status is
// already terminal.
func ApplyOutcome(t *Transaction, outcome Outcome, detail OutcomeDetail, now time.Time) (bool, error) {
	if !outcome.ValidFor(t.Type) {
		return false, ErrOutcomeMismatch
	}
	if t.Status.IsTerminal() {
		return false, nil
	}
	t.Status = outcome.Status()
	detail.applyTo(t)
	t.CompletedAt = &now
	t.UpdatedAt = now
	return true, nil
}

// OutcomeDetail carries optional data stored alongside a terminal outcome
type OutcomeDetail struct {
	RawPayload           []byte
	GatewayTransactionID string
	ProcessedBy          *uuid.UUID
	Notes                string
}

func (d OutcomeDetail) applyTo(t *Transaction) {
	if d.RawPayload != nil {
		t.RawResponse = d.RawPayload
	}
	if d.GatewayTransactionID != "" {
		t.GatewayTransactionID = d.GatewayTransactionID
	}
	if d.ProcessedBy != nil {
		t.ProcessedBy = d.ProcessedBy
	}
	if d.Notes != "" {
		t.Notes = d.Notes
	}
}

// ApplyResult reports whether applyOutcome changed the transaction
type ApplyResult struct {
	Applied     bool
	Transaction *Transaction
}

// ListFilter narrows transaction listings
type ListFilter struct {
	Type     Type
	Status   Status
	UserID   *uuid.UUID
	Page     int
	PageSize int
}

// Store is the source of truth for whether a payment already happened
type Store interface {
	// Create records a new attempt. Returns shared.ErrDuplicateReference if
	// the reference ID is taken.
	Create(ctx context.Context, t *Transaction) error
	FindByReference(ctx context.Context, referenceID string) (*Transaction, error)
	// ApplyOutcome is an atomic compare-and-set on the transaction row: only
	// a non-terminal row is moved to the outcome. Concurrent callers for the
	// same reference observe Applied=true exactly once.
	ApplyOutcome(ctx context.Context, referenceID string, outcome Outcome, detail OutcomeDetail) (ApplyResult, error)
	// RecordRawPayload stores a gateway payload on a non-terminal
	// transaction without changing its status. A settled row keeps the
	// payload it was settled with.
	RecordRawPayload(ctx context.Context, referenceID string, raw []byte) error
	List(ctx context.Context, filter ListFilter) ([]Transaction, int64, error)
}

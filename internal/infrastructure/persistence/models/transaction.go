package models

import (
	"time"

	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentTransactionModel is the persistence model for a payment attempt.
// reference_id is unique and is the key every outcome is applied against.
type PaymentTransactionModel struct {
	BaseModel
	ReferenceID          string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	UserID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	BusinessID           *uuid.UUID      `gorm:"type:uuid;index"`
	PlanID               *uuid.UUID      `gorm:"type:uuid"`
	Type                 string          `gorm:"type:varchar(20);not null;index:idx_payment_transactions_type_status,priority:1"`
	Status               string          `gorm:"type:varchar(20);not null;index:idx_payment_transactions_type_status,priority:2"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency             string          `gorm:"type:varchar(3);not null"`
	Channel              string          `gorm:"type:varchar(30)"`
	WalletType           string          `gorm:"type:varchar(30)"`
	PhoneNumber          string          `gorm:"type:varchar(20)"`
	GatewayTransactionID string          `gorm:"type:varchar(100)"`
	ProofOfPayment       string          `gorm:"type:varchar(500)"`
	RawResponse          []byte          `gorm:"type:jsonb"`
	ProcessedBy          *uuid.UUID      `gorm:"type:uuid"`
	Notes                string          `gorm:"type:text"`
	CompletedAt          *time.Time
}

// TableName returns the table name for GORM
func (PaymentTransactionModel) TableName() string {
	return "payment_transactions"
}

// ToDomain converts the model to a domain Transaction
func (m *PaymentTransactionModel) ToDomain() *payment.Transaction {
	return &payment.Transaction{
		ID:                   m.ID,
		ReferenceID:          m.ReferenceID,
		UserID:               m.UserID,
		BusinessID:           m.BusinessID,
		PlanID:               m.PlanID,
		Type:                 payment.Type(m.Type),
		Status:               payment.Status(m.Status),
		Amount:               m.Amount,
		Currency:             m.Currency,
		Channel:              m.Channel,
		WalletType:           m.WalletType,
		PhoneNumber:          m.PhoneNumber,
		GatewayTransactionID: m.GatewayTransactionID,
		ProofOfPayment:       m.ProofOfPayment,
		RawResponse:          m.RawResponse,
		ProcessedBy:          m.ProcessedBy,
		Notes:                m.Notes,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		CompletedAt:          m.CompletedAt,
	}
}

// PaymentTransactionModelFromDomain creates a persistence model from a domain Transaction
func PaymentTransactionModelFromDomain(t *payment.Transaction) *PaymentTransactionModel {
	m := &PaymentTransactionModel{
		ReferenceID:          t.ReferenceID,
		UserID:               t.UserID,
		BusinessID:           t.BusinessID,
		PlanID:               t.PlanID,
		Type:                 string(t.Type),
		Status:               string(t.Status),
		Amount:               t.Amount,
		Currency:             t.Currency,
		Channel:              t.Channel,
		WalletType:           t.WalletType,
		PhoneNumber:          t.PhoneNumber,
		GatewayTransactionID: t.GatewayTransactionID,
		ProofOfPayment:       t.ProofOfPayment,
		RawResponse:          t.RawResponse,
		ProcessedBy:          t.ProcessedBy,
		Notes:                t.Notes,
		CompletedAt:          t.CompletedAt,
	}
	m.ID = t.ID
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	return m
}

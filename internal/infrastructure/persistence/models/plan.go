package models

import (
	"encoding/json"
	"time"

	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanModel is the persistence model for the plan catalog
type PlanModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Code         string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string          `gorm:"type:varchar(100);not null"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency     string          `gorm:"type:varchar(3);not null;default:USD"`
	BillingCycle string          `gorm:"type:varchar(20);not null"`
	Features     []byte          `gorm:"type:jsonb"`
	IsActive     bool            `gorm:"not null;index"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the model to a domain Plan. A malformed features
// document decodes as an empty map, which leaves every feature enabled.
func (m *PlanModel) ToDomain() *plan.Plan {
	features := plan.Features{}
	if len(m.Features) > 0 {
		_ = json.Unmarshal(m.Features, &features)
	}
	return &plan.Plan{
		ID:           m.ID,
		Code:         m.Code,
		Name:         m.Name,
		Price:        m.Price,
		Currency:     m.Currency,
		BillingCycle: plan.BillingCycle(m.BillingCycle),
		Features:     features,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// PlanModelFromDomain creates a persistence model from a domain Plan
func PlanModelFromDomain(p *plan.Plan) (*PlanModel, error) {
	var features []byte
	if p.Features != nil {
		raw, err := json.Marshal(p.Features)
		if err != nil {
			return nil, err
		}
		features = raw
	}
	return &PlanModel{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		BillingCycle: string(p.BillingCycle),
		Features:     features,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

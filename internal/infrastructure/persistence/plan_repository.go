package persistence

import (
	"context"
	"errors"

	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPlanRepository implements plan.Repository using GORM
type GormPlanRepository struct {
	db *gorm.DB
}

// NewGormPlanRepository creates a new GormPlanRepository
func NewGormPlanRepository(db *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *GormPlanRepository) WithTx(tx *gorm.DB) *GormPlanRepository {
	return &GormPlanRepository{db: tx}
}

// FindByID finds a plan by ID, active or not
func (r *GormPlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	var model models.PlanModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Plan")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActive returns the purchasable plans, cheapest first
func (r *GormPlanRepository) FindActive(ctx context.Context) ([]plan.Plan, error) {
	var rows []models.PlanModel
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("price ASC, code ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	plans := make([]plan.Plan, 0, len(rows))
	for i := range rows {
		plans = append(plans, *rows[i].ToDomain())
	}
	return plans, nil
}

// Upsert inserts the plan or updates it by code. Used to seed the catalog.
func (r *GormPlanRepository) Upsert(ctx context.Context, p *plan.Plan) error {
	model, err := models.PlanModelFromDomain(p)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "price", "currency", "billing_cycle", "features", "is_active", "updated_at"}),
		}).
		Create(model).Error
}

package persistence

import (
	"context"
	"errors"

	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormUserDirectory implements account.Directory over the users table.
// Accounts are owned by the identity service; the engine only reads them.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory creates a new GormUserDirectory
func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

// FindByID finds a user by ID
func (r *GormUserDirectory) FindByID(ctx context.Context, id uuid.UUID) (*account.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("User")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOwner returns the oldest business-type user attached to businessID
func (r *GormUserDirectory) FindOwner(ctx context.Context, businessID uuid.UUID) (*account.User, error) {
	var model models.UserModel
	if err := r.db.WithContext(ctx).
		Where("business_id = ? AND type = ?", businessID, string(account.TypeBusiness)).
		Order("created_at ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Business owner")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ account.Directory = (*GormUserDirectory)(nil)

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/domain/account"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan(code, price string, active bool, features plan.Features) *plan.Plan {
	return &plan.Plan{
		ID:           uuid.New(),
		Code:         code,
		Name:         code,
		Price:        decimal.RequireFromString(price),
		Currency:     "USD",
		BillingCycle: plan.BillingCycleMonthly,
		Features:     features,
		IsActive:     active,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}

func TestGormPlanRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormPlanRepository(newSQLiteDB(t))

	pro := testPlan("pro", "29.00", true, plan.Features{"branches": true, "profit_loss": "true"})
	basic := testPlan("basic", "9.99", true, plan.Features{"branches": false})
	legacy := testPlan("legacy", "5.00", false, nil)
	for _, p := range []*plan.Plan{pro, basic, legacy} {
		require.NoError(t, repo.Upsert(ctx, p))
	}

	got, err := repo.FindByID(ctx, basic.ID)
	require.NoError(t, err)
	assert.False(t, got.HasFeature("branches"))
	assert.True(t, got.HasFeature("stock"), "undeclared features are enabled")
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.99")))

	got, err = repo.FindByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "basic", active[0].Code)
	assert.Equal(t, "pro", active[1].Code)

	renamed := *basic
	renamed.ID = uuid.New()
	renamed.Name = "Starter"
	require.NoError(t, repo.Upsert(ctx, &renamed))
	got, err = repo.FindByID(ctx, basic.ID)
	require.NoError(t, err)
	assert.Equal(t, "Starter", got.Name)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormUserDirectory(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	dir := NewGormUserDirectory(db)

	businessID := uuid.New()
	owner := &account.User{ID: uuid.New(), BusinessID: &businessID, Type: account.TypeBusiness, Name: "Amina", Email: "amina@example.com", IsActive: true}
	staff := &account.User{ID: uuid.New(), BusinessID: &businessID, Type: account.TypeBusiness, Name: "Staff", IsActive: false}
	require.NoError(t, db.Create(models.UserModelFromDomain(owner, baseTime)).Error)
	require.NoError(t, db.Create(models.UserModelFromDomain(staff, baseTime.Add(time.Minute))).Error)

	got, err := dir.FindOwner(ctx, businessID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)
	assert.True(t, got.IsContactable())

	got, err = dir.FindByID(ctx, staff.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = dir.FindOwner(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

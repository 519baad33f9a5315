package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteDB opens a private in-memory database with the engine's tables.
// A single connection keeps every statement on the same database.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PlanModel{},
		&models.SubscriptionModel{},
		&models.PaymentTransactionModel{},
		&models.UserModel{},
		&models.NotificationOutboxModel{},
	))
	return db
}

// baseTime is a whole-second UTC instant; sqlite compares timestamps as text
var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

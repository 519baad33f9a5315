package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTransactionPageSize = 20
	maxTransactionPageSize     = 100
)

// GormTransactionStore implements payment.Store using GORM
type GormTransactionStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormTransactionStore creates a new GormTransactionStore
func NewGormTransactionStore(db *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{db: db, now: time.Now}
}

// WithTx returns a store bound to the given transaction
func (r *GormTransactionStore) WithTx(tx *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{db: tx, now: r.now}
}

// Create records a new payment attempt
func (r *GormTransactionStore) Create(ctx context.Context, t *payment.Transaction) error {
	model := models.PaymentTransactionModelFromDomain(t)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrDuplicateReference
	}
	return nil
}

// FindByReference finds a transaction by its reference ID
func (r *GormTransactionStore) FindByReference(ctx context.Context, referenceID string) (*payment.Transaction, error) {
	var model models.PaymentTransactionModel
	if err := r.db.WithContext(ctx).First(&model, "reference_id = ?", referenceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, payment.ErrTransactionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ApplyOutcome moves a non-terminal transaction to the outcome's status in
// one conditional UPDATE. The caller that changes the row gets Applied=true;
// everyone else gets the row as it now stands.
func (r *GormTransactionStore) ApplyOutcome(ctx context.Context, referenceID string, outcome payment.Outcome, detail payment.OutcomeDetail) (payment.ApplyResult, error) {
	current, err := r.FindByReference(ctx, referenceID)
	if err != nil {
		return payment.ApplyResult{}, err
	}
	if !outcome.ValidFor(current.Type) {
		return payment.ApplyResult{}, payment.ErrOutcomeMismatch
	}
	if current.Status.IsTerminal() {
		return payment.ApplyResult{Transaction: current}, nil
	}

	now := r.now()
	updates := map[string]any{
		"status":       string(outcome.Status()),
		"completed_at": now,
		"updated_at":   now,
	}
	if detail.RawPayload != nil {
		updates["raw_response"] = detail.RawPayload
	}
	if detail.GatewayTransactionID != "" {
		updates["gateway_transaction_id"] = detail.GatewayTransactionID
	}
	if detail.ProcessedBy != nil {
		updates["processed_by"] = *detail.ProcessedBy
	}
	if detail.Notes != "" {
		updates["notes"] = detail.Notes
	}

	result := r.db.WithContext(ctx).
		Model(&models.PaymentTransactionModel{}).
		Where("reference_id = ? AND status IN ?", referenceID,
			[]string{string(payment.StatusPending), string(payment.StatusPendingApproval)}).
		Updates(updates)
	if result.Error != nil {
		return payment.ApplyResult{}, result.Error
	}

	updated, err := r.FindByReference(ctx, referenceID)
	if err != nil {
		return payment.ApplyResult{}, err
	}
	return payment.ApplyResult{Applied: result.RowsAffected > 0, Transaction: updated}, nil
}

// RecordRawPayload stores a gateway payload without touching the status.
// Settled rows are skipped so their raw_response stays the settlement record.
func (r *GormTransactionStore) RecordRawPayload(ctx context.Context, referenceID string, raw []byte) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentTransactionModel{}).
		Where("reference_id = ? AND status IN ?", referenceID,
			[]string{string(payment.StatusPending), string(payment.StatusPendingApproval)}).
		Updates(map[string]any{
			"raw_response": raw,
			"updated_at":   r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either unknown or already terminal
		_, err := r.FindByReference(ctx, referenceID)
		return err
	}
	return nil
}

// List returns a page of transactions, newest first, and the total count
func (r *GormTransactionStore) List(ctx context.Context, filter payment.ListFilter) ([]payment.Transaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.PaymentTransactionModel{})
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	var rows []models.PaymentTransactionModel
	if err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	out := make([]payment.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, total, nil
}

// CountPendingApprovals returns the size of the offline review queue
func (r *GormTransactionStore) CountPendingApprovals(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransactionModel{}).
		Where("type = ? AND status = ?", string(payment.TypeOffline), string(payment.StatusPendingApproval)).
		Count(&count).Error
	return count, err
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultTransactionPageSize
	}
	if size > maxTransactionPageSize {
		size = maxTransactionPageSize
	}
	return page, size
}

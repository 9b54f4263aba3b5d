package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
)

// Repository provides persistence for sale transactions touched by refunds.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindTransactionWithItems loads the transaction and its line items.
func (r *Repository) FindTransactionWithItems(ctx context.Context, id uuid.UUID) (*models.SaleTransaction, error) {
	var transaction models.SaleTransaction
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&transaction, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

// SaveItemRefund persists the refund columns of a sale item.
func (r *Repository) SaveItemRefund(ctx context.Context, item *models.SaleItem) error {
	return r.db.WithContext(ctx).
		Model(&models.SaleItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"refunded_quantity": item.RefundedQuantity,
			"refunded_at":       item.RefundedAt,
		}).Error
}

// SaveTransactionRefund persists the refund totals and status.
func (r *Repository) SaveTransactionRefund(ctx context.Context, transaction *models.SaleTransaction) error {
	return r.db.WithContext(ctx).
		Model(&models.SaleTransaction{}).
		Where("id = ?", transaction.ID).
		Updates(map[string]any{
			"status":          transaction.Status,
			"refunded_amount": transaction.RefundedAmount,
		}).Error
}

package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
)

// Repository provides persistence for the movement journal and the stock counter.
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

// FindVariant loads the variant by id.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// UpdateStockGuarded applies a compare-and-swap write to the stock counter: the
// update lands only when the row still holds fromStock. It returns false when a
// concurrent writer got there first.
func (r *Repository) UpdateStockGuarded(ctx context.Context, variantID uuid.UUID, fromStock, toStock int, restockedAt *time.Time) (bool, error) {
	updates := map[string]any{
		"stock":      toStock,
		"updated_at": time.Now().UTC(),
	}
	if restockedAt != nil {
		updates["last_restocked_at"] = *restockedAt
	}

	result := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock = ?", variantID, fromStock).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CreateMovement appends one journal row. The serial id is assigned by the
// database on insert.
func (r *Repository) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

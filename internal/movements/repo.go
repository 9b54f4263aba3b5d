package movements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calebreyes/stockpilot-backend/pkg/db/models"
	"github.com/calebreyes/stockpilot-backend/pkg/enums"
	"github.com/calebreyes/stockpilot-backend/pkg/pagination"
)

// Filters narrows the movement ledger read.
type Filters struct {
	Type      *enums.MovementType
	VariantID *uuid.UUID
	From      *time.Time
	To        *time.Time
	// Query is a free-text match against product name and variant SKU.
	Query string
}

// restockAggregate is the scan target for the restock rollup.
type restockAggregate struct {
	TotalQuantity int64
	RestockCount  int64
}

// Repository provides the ledger's read-side queries.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListMovements returns one page of journal rows, newest first. It fetches
// limit rows; callers pass a buffered limit to detect the next page.
func (r *Repository) ListMovements(ctx context.Context, filters Filters, cursor *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	query := r.applyFilters(ctx, filters)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.StockMovement
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) applyFilters(ctx context.Context, filters Filters) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.StockMovement{})

	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.VariantID != nil {
		query = query.Where("variant_id = ?", *filters.VariantID)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}
	if filters.Query != "" {
		pattern := "%" + filters.Query + "%"
		query = query.Where(
			"variant_id IN (?)",
			r.db.Model(&models.ProductVariant{}).
				Select("product_variants.id").
				Joins("JOIN products ON products.id = product_variants.product_id").
				Where("products.name LIKE ? OR product_variants.sku LIKE ?", pattern, pattern),
		)
	}

	return query
}

// VariantSummaries loads SKU and product name for the given variant ids.
func (r *Repository) VariantSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]VariantSummary, error) {
	summaries := make(map[uuid.UUID]VariantSummary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	var rows []struct {
		ID          uuid.UUID
		SKU         string
		ProductName string
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Select("product_variants.id, product_variants.sku, products.name AS product_name").
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("product_variants.id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		summaries[row.ID] = VariantSummary{SKU: row.SKU, ProductName: row.ProductName}
	}
	return summaries, nil
}

// RestockAggregate rolls up restock movements, optionally scoped to a variant.
func (r *Repository) RestockAggregate(ctx context.Context, variantID *uuid.UUID) (total int64, count int64, last *time.Time, err error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Select("COALESCE(SUM(quantity), 0) AS total_quantity, COUNT(*) AS restock_count").
		Where("type = ?", enums.MovementTypeRestock)
	if variantID != nil {
		query = query.Where("variant_id = ?", *variantID)
	}

	var agg restockAggregate
	if err := query.Scan(&agg).Error; err != nil {
		return 0, 0, nil, err
	}
	if agg.RestockCount == 0 {
		return 0, 0, nil, nil
	}

	latest := r.db.WithContext(ctx).
		Where("type = ?", enums.MovementTypeRestock).
		Order("created_at DESC, id DESC")
	if variantID != nil {
		latest = latest.Where("variant_id = ?", *variantID)
	}
	var newest models.StockMovement
	if err := latest.First(&newest).Error; err != nil {
		return 0, 0, nil, err
	}
	return agg.TotalQuantity, agg.RestockCount, &newest.CreatedAt, nil
}

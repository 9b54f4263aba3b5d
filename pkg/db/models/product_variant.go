package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductVariant is a sellable SKU-level unit. Stock is the denormalized
// on-hand counter; it must always equal the replayed sum of the variant's
// stock movements, and only the movement recorder may write it.
type ProductVariant struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	SKU              string     `gorm:"column:sku;not null;uniqueIndex"`
	Stock            int        `gorm:"column:stock;not null;default:0"`
	ReorderThreshold int        `gorm:"column:reorder_threshold;not null;default:0"`
	LastRestockedAt  *time.Time `gorm:"column:last_restocked_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BelowReorderThreshold reports whether on-hand stock has fallen to or under
// the configured reorder point.
func (v ProductVariant) BelowReorderThreshold() bool {
	return v.ReorderThreshold > 0 && v.Stock <= v.ReorderThreshold
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the minimal catalog row the ledger needs. Catalog CRUD lives in
// another service; this core only joins against name/SKU for search.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

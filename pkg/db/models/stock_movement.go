package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/calebreyes/stockpilot-backend/pkg/enums"
)

// StockMovement is one immutable ledger entry: a single signed change to a
// variant's on-hand stock. Rows are append-only; corrections are expressed as
// new movements, never as edits.
//
// CreatedAt is the logical event time set by the recorder. It may be
// historical (simulated or backfilled), so it carries no autoCreateTime. The
// serial id is the insertion-order tie-break for same-instant events.
type StockMovement struct {
	ID            int64              `gorm:"column:id;primaryKey;autoIncrement"`
	VariantID     uuid.UUID          `gorm:"column:variant_id;type:uuid;not null;index:idx_stock_movements_variant_time,priority:1"`
	Type          enums.MovementType `gorm:"column:type;type:movement_type_enum;not null"`
	Quantity      int                `gorm:"column:quantity;not null"`
	PreviousStock int                `gorm:"column:previous_stock;not null"`
	NewStock      int                `gorm:"column:new_stock;not null"`
	Reason        string             `gorm:"column:reason"`
	ReferenceID   *uuid.UUID         `gorm:"column:reference_id;type:uuid;index"`
	UserID        *uuid.UUID         `gorm:"column:user_id;type:uuid"`
	Notes         *string            `gorm:"column:notes"`
	CreatedAt     time.Time          `gorm:"column:created_at;not null;index:idx_stock_movements_variant_time,priority:2"`
}

// Balanced reports whether the row satisfies the ledger invariant
// new_stock = previous_stock + quantity.
func (m StockMovement) Balanced() bool {
	return m.NewStock == m.PreviousStock+m.Quantity
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/calebreyes/stockpilot-backend/pkg/enums"
)

// SaleTransaction is owned by the sales subsystem; the ledger core reads it
// and advances its status through the refund state machine.
type SaleTransaction struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Status         enums.SaleStatus `gorm:"column:status;type:sale_status_enum;not null"`
	TotalAmount    decimal.Decimal  `gorm:"column:total_amount;type:numeric(12,2);not null"`
	RefundedAmount decimal.Decimal  `gorm:"column:refunded_amount;type:numeric(12,2);not null"`
	Items          []SaleItem       `gorm:"foreignKey:TransactionID"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// SaleItem is one line of a sale. RefundedQuantity only ever grows, and never
// past Quantity.
type SaleItem struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID    uuid.UUID        `gorm:"column:transaction_id;type:uuid;not null;index"`
	VariantID        *uuid.UUID       `gorm:"column:variant_id;type:uuid;index"`
	Quantity         int              `gorm:"column:quantity;not null"`
	Price            decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	FinalPrice       *decimal.Decimal `gorm:"column:final_price;type:numeric(12,2)"`
	RefundedQuantity int              `gorm:"column:refunded_quantity;not null;default:0"`
	RefundedAt       *time.Time       `gorm:"column:refunded_at"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// RefundableQuantity returns how many units of the line are still refundable.
func (i SaleItem) RefundableQuantity() int {
	remaining := i.Quantity - i.RefundedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UnitRefundValue is the per-unit amount a refund restores: the discounted
// final price when present, the list price otherwise.
func (i SaleItem) UnitRefundValue() decimal.Decimal {
	if i.FinalPrice != nil {
		return *i.FinalPrice
	}
	return i.Price
}

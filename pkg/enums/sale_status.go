package enums

import "fmt"

// SaleStatus maps to the sale_status_enum enum in Postgres.
//
// The lifecycle is one-directional:
// completed -> partially_refunded -> refunded (terminal).
// pending exists for in-flight sales and is unreachable from refund flows.
type SaleStatus string

const (
	SaleStatusPending           SaleStatus = "pending"
	SaleStatusCompleted         SaleStatus = "completed"
	SaleStatusPartiallyRefunded SaleStatus = "partially_refunded"
	SaleStatusRefunded          SaleStatus = "refunded"
)

var validSaleStatuses = []SaleStatus{
	SaleStatusPending,
	SaleStatusCompleted,
	SaleStatusPartiallyRefunded,
	SaleStatusRefunded,
}

// IsValid reports whether the value matches the canonical sale status enum.
func (s SaleStatus) IsValid() bool {
	for _, candidate := range validSaleStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSaleStatus converts raw input into SaleStatus.
func ParseSaleStatus(value string) (SaleStatus, error) {
	for _, candidate := range validSaleStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sale status %q", value)
}

// Refundable reports whether a transaction in this status may accept refunds.
func (s SaleStatus) Refundable() bool {
	return s == SaleStatusCompleted || s == SaleStatusPartiallyRefunded
}

func (s SaleStatus) String() string {
	return string(s)
}

package enums

import "fmt"

// MovementType maps to the movement_type_enum enum in Postgres.
type MovementType string

const (
	MovementTypeRestock    MovementType = "restock"
	MovementTypeSale       MovementType = "sale"
	MovementTypeAdjustment MovementType = "adjustment"
	MovementTypeShrinkage  MovementType = "shrinkage"
	MovementTypeReturn     MovementType = "return"
)

var validMovementTypes = []MovementType{
	MovementTypeRestock,
	MovementTypeSale,
	MovementTypeAdjustment,
	MovementTypeShrinkage,
	MovementTypeReturn,
}

// IsValid reports whether the value matches the canonical movement type enum.
func (t MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}

// AllowsQuantity reports whether the signed quantity is legal for the movement
// type. Restocks and returns add stock, sales and shrinkage remove it, and
// adjustments may go either way. Zero is never a movement.
func (t MovementType) AllowsQuantity(quantity int) bool {
	if quantity == 0 {
		return false
	}
	switch t {
	case MovementTypeRestock, MovementTypeReturn:
		return quantity > 0
	case MovementTypeSale, MovementTypeShrinkage:
		return quantity < 0
	case MovementTypeAdjustment:
		return true
	default:
		return false
	}
}

func (t MovementType) String() string {
	return string(t)
}

// Package movement classifies ledger movement types and derives their presentation metadata.
// Every function here is pure; the lookup tables are switch statements, so there is
// no shared mutable state.
package movement

import (
	"stockledger/internal/core/entity"
)

// Category groups movement types.
type Category string

const (
	CategoryBusiness Category = "business"
	CategorySystem   Category = "system"
	CategoryUnknown  Category = ""
)

// IsBusinessMovement reports whether t changes real total stock.
// Unknown values are neither business nor system.
func IsBusinessMovement(t entity.MovementType) bool {
	switch t {
	case entity.MovementPurchase, entity.MovementSale, entity.MovementReturn,
		entity.MovementDamage, entity.MovementAdjustment, entity.MovementTransfer:
		return true
	}
	return false
}

// IsSystemMovement reports whether t only shifts stock between available and reserved.
func IsSystemMovement(t entity.MovementType) bool {
	switch t {
	case entity.MovementReservation, entity.MovementRelease:
		return true
	}
	return false
}

// CategoryOf returns the category of t, CategoryUnknown for values outside the set.
func CategoryOf(t entity.MovementType) Category {
	switch {
	case IsBusinessMovement(t):
		return CategoryBusiness
	case IsSystemMovement(t):
		return CategorySystem
	}
	return CategoryUnknown
}

// BusinessTypes returns the business set in display order.
func BusinessTypes() []entity.MovementType {
	return []entity.MovementType{
		entity.MovementPurchase, entity.MovementSale, entity.MovementReturn,
		entity.MovementDamage, entity.MovementAdjustment, entity.MovementTransfer,
	}
}

// SystemTypes returns the system set.
func SystemTypes() []entity.MovementType {
	return []entity.MovementType{entity.MovementReservation, entity.MovementRelease}
}

// Color is a badge color token understood by the UI layer.
type Color string

const (
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
	ColorPurple Color = "purple"
	ColorIndigo Color = "indigo"
	ColorOrange Color = "orange"
	ColorGray   Color = "gray"
)

// BadgeColor maps a movement type to its badge color.
// Unknown types render gray.
func BadgeColor(t entity.MovementType) Color {
	switch t {
	case entity.MovementPurchase:
		return ColorBlue
	case entity.MovementSale:
		return ColorGreen
	case entity.MovementReturn:
		return ColorYellow
	case entity.MovementDamage:
		return ColorRed
	case entity.MovementAdjustment:
		return ColorPurple
	case entity.MovementTransfer:
		return ColorIndigo
	case entity.MovementReservation:
		return ColorOrange
	case entity.MovementRelease:
		return ColorGray
	}
	return ColorGray
}

// QuantityClass is the color class of a signed quantity.
type QuantityClass string

const (
	QuantityIncrease QuantityClass = "increase"
	QuantityDecrease QuantityClass = "decrease"
	QuantityNeutral  QuantityClass = "neutral"
)

// QuantityColorClass classifies a signed quantity.
func QuantityColorClass(quantity int64) QuantityClass {
	switch {
	case quantity > 0:
		return QuantityIncrease
	case quantity < 0:
		return QuantityDecrease
	}
	return QuantityNeutral
}

// Package entity provides core domain entities of the stock ledger.
package entity

import (
	"time"

	"stockledger/internal/core/id"
)

// MovementType is the closed set of ledger entry kinds.
type MovementType string

const (
	// Business movements change total stock.
	MovementPurchase   MovementType = "purchase"
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementDamage     MovementType = "damage"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"

	// System movements shift mass between available and reserved.
	MovementReservation MovementType = "reservation"
	MovementRelease     MovementType = "release"
)

// AllMovementTypes returns the 8 known types in display order.
func AllMovementTypes() []MovementType {
	return []MovementType{
		MovementPurchase, MovementSale, MovementReturn, MovementDamage,
		MovementAdjustment, MovementTransfer, MovementReservation, MovementRelease,
	}
}

// IsKnown reports whether t is one of the 8 known types.
func (t MovementType) IsKnown() bool {
	switch t {
	case MovementPurchase, MovementSale, MovementReturn, MovementDamage,
		MovementAdjustment, MovementTransfer, MovementReservation, MovementRelease:
		return true
	}
	return false
}

func (t MovementType) String() string { return string(t) }

// MovementRecord is one immutable ledger entry.
// Rows are never updated or deleted; corrections are new compensating movements.
type MovementRecord struct {
	ID        id.ID  `db:"id" json:"id"`
	ProductID id.ID  `db:"product_id" json:"product_id"`
	VariantID *id.ID `db:"variant_id" json:"variant_id"`

	MovementType MovementType `db:"movement_type" json:"movement_type"`

	// Quantity is signed: the sign is the direction of the change to quantity_available
	// (for sale commits, to quantity_reserved).
	Quantity int64 `db:"quantity" json:"quantity"`

	LocationFrom *string `db:"location_from" json:"location_from"`
	LocationTo   *string `db:"location_to" json:"location_to"`

	// Notes is free text; it may embed a reference token such as WI-20250105-0001.
	Notes       string `db:"notes" json:"notes"`
	PerformedBy string `db:"performed_by" json:"performed_by"`

	// ReservationID links reservation, release and sale rows of one reservation.
	ReservationID *id.ID `db:"reservation_id" json:"reservation_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewMovement creates a movement with a generated id and timestamp.
func NewMovement(key StockKey, t MovementType, quantity int64, performedBy, notes string) MovementRecord {
	return MovementRecord{
		ID:           id.New(),
		ProductID:    key.ProductID,
		VariantID:    key.VariantID,
		MovementType: t,
		Quantity:     quantity,
		Notes:        notes,
		PerformedBy:  performedBy,
		CreatedAt:    time.Now().UTC(),
	}
}

// Location returns the location the movement touches: location_from for outgoing
// rows, location_to otherwise.
func (m *MovementRecord) Location() string {
	if m.LocationFrom != nil && (m.Quantity < 0 || m.LocationTo == nil) {
		return *m.LocationFrom
	}
	if m.LocationTo != nil {
		return *m.LocationTo
	}
	return ""
}

// TouchesLocation reports whether either endpoint equals loc.
func (m *MovementRecord) TouchesLocation(loc string) bool {
	return (m.LocationFrom != nil && *m.LocationFrom == loc) ||
		(m.LocationTo != nil && *m.LocationTo == loc)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

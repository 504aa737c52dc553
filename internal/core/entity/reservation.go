package entity

import (
	"time"

	"stockledger/internal/core/id"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
)

// Reservation is a hold on available stock pending transaction completion.
// Once released or committed it is resolved and cannot change again.
type Reservation struct {
	ID        id.ID  `db:"id" json:"id"`
	ProductID id.ID  `db:"product_id" json:"product_id"`
	VariantID *id.ID `db:"variant_id" json:"variant_id"`
	Location  string `db:"location" json:"location"`

	Quantity int64             `db:"quantity" json:"quantity"`
	Status   ReservationStatus `db:"status" json:"status"`

	// Reference is the caller's transaction token (e.g. WI-20250105-0001).
	Reference   string `db:"reference" json:"reference,omitempty"`
	PerformedBy string `db:"performed_by" json:"performed_by"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Key returns the StockKey the reservation holds stock from.
func (r *Reservation) Key() StockKey {
	return StockKey{ProductID: r.ProductID, VariantID: r.VariantID, Location: r.Location}
}

// IsResolved reports whether the reservation was released or committed.
func (r *Reservation) IsResolved() bool {
	return r.Status != ReservationActive
}

// Resolve moves the reservation into a terminal status.
func (r *Reservation) Resolve(status ReservationStatus, at time.Time) {
	r.Status = status
	r.ResolvedAt = &at
}

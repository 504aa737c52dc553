// Package stock provides the reservation engine: every change to a stock record
// goes through this package together with the ledger entry that explains it.
package stock

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository defines storage operations used by the reservation engine.
// Every method honours the transaction carried in ctx.
type Repository interface {
	// Stock records

	// GetRecord returns the record for key, or a NotFound AppError.
	GetRecord(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error)

	// GetRecordForUpdate returns the record with a row lock held until the
	// surrounding transaction ends, or a NotFound AppError.
	GetRecordForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error)

	// EnsureRecord inserts rec unless a record for its key already exists.
	EnsureRecord(ctx context.Context, rec *entity.StockRecord) error

	// UpdateRecord writes counters and reorder level of an existing record.
	UpdateRecord(ctx context.Context, rec *entity.StockRecord) error

	// Ledger

	// AppendMovement inserts an immutable ledger entry.
	AppendMovement(ctx context.Context, m *entity.MovementRecord) error

	// ListMovementsByKey returns every ledger entry that touched key, oldest first.
	ListMovementsByKey(ctx context.Context, key entity.StockKey) ([]entity.MovementRecord, error)

	// Reservations

	// CreateReservation inserts a new active reservation.
	CreateReservation(ctx context.Context, r *entity.Reservation) error

	// GetReservationForUpdate returns the reservation with a row lock, or a NotFound AppError.
	GetReservationForUpdate(ctx context.Context, reservationID id.ID) (*entity.Reservation, error)

	// FindReservationByReference returns a reservation for key carrying reference,
	// or nil when none exists.
	FindReservationByReference(ctx context.Context, key entity.StockKey, reference string) (*entity.Reservation, error)

	// UpdateReservation persists status and resolved_at.
	UpdateReservation(ctx context.Context, r *entity.Reservation) error
}

// EventPublisher writes domain events inside the caller's transaction.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.DomainEvent) error
	PublishBatch(ctx context.Context, events []entity.DomainEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, entity.DomainEvent) error { return nil }

// PublishBatch implements EventPublisher.
func (NopPublisher) PublishBatch(context.Context, []entity.DomainEvent) error { return nil }

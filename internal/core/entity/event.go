package entity

import "stockledger/internal/core/id"

// Event types published through the transactional outbox.
const (
	EventMovementRecorded = "stock.movement_recorded"
	EventAlertChanged     = "stock.alert_changed"
)

// DomainEvent is written to the outbox in the same transaction as the change it describes.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

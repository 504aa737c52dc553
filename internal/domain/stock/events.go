package stock

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
)

// AggregateStockRecord is the outbox aggregate type of stock events.
const AggregateStockRecord = "stock_record"

// AlertChangedPayload is published when a record moves between alert classes.
type AlertChangedPayload struct {
	ProductID         id.ID           `json:"product_id"`
	VariantID         *id.ID          `json:"variant_id"`
	Location          string          `json:"location"`
	Previous          alerts.Severity `json:"previous"`
	Current           alerts.Severity `json:"current"`
	QuantityAvailable int64           `json:"quantity_available"`
	ReorderLevel      int64           `json:"reorder_level"`
}

func movementRecordedEvent(rec *entity.StockRecord, m *entity.MovementRecord) entity.DomainEvent {
	return entity.DomainEvent{
		AggregateType: AggregateStockRecord,
		AggregateID:   rec.ID,
		EventType:     entity.EventMovementRecorded,
		Payload:       m,
	}
}

func alertChangedEvent(rec *entity.StockRecord, previous, current alerts.Severity) entity.DomainEvent {
	return entity.DomainEvent{
		AggregateType: AggregateStockRecord,
		AggregateID:   rec.ID,
		EventType:     entity.EventAlertChanged,
		Payload: AlertChangedPayload{
			ProductID:         rec.ProductID,
			VariantID:         rec.VariantID,
			Location:          rec.Location,
			Previous:          previous,
			Current:           current,
			QuantityAvailable: rec.QuantityAvailable,
			ReorderLevel:      rec.ReorderLevel,
		},
	}
}

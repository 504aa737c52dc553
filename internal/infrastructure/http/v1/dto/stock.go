package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
)

// --- Request DTOs ---

// ReserveRequest is the body of POST /stock/reservations.
type ReserveRequest struct {
	KeyRequest
	Quantity  int64  `json:"quantity"`
	Reference string `json:"reference"`
	// WalkIn asks the server to number the transaction when Reference is empty.
	WalkIn bool `json:"walk_in"`
}

// MovementRequest is the body of POST /stock/movements. Quantity is signed.
type MovementRequest struct {
	KeyRequest
	MovementType string `json:"movement_type" binding:"required"`
	Quantity     int64  `json:"quantity"`
	Notes        string `json:"notes"`
}

// TransferRequest is the body of POST /stock/transfers.
type TransferRequest struct {
	ProductID string  `json:"product_id" binding:"required,uuid"`
	VariantID *string `json:"variant_id" binding:"omitempty,uuid"`
	From      string  `json:"from" binding:"required"`
	To        string  `json:"to" binding:"required"`
	Quantity  int64   `json:"quantity"`
	Notes     string  `json:"notes"`
}

// ReorderLevelRequest is the body of PUT /stock/reorder-level.
type ReorderLevelRequest struct {
	KeyRequest
	ReorderLevel *int64 `json:"reorder_level" binding:"required"`
}

// --- Response DTOs ---

// StockRecordResponse represents a stock record in API responses.
type StockRecordResponse struct {
	ID                string          `json:"id"`
	ProductID         string          `json:"product_id"`
	VariantID         *id.ID          `json:"variant_id"`
	Location          string          `json:"location"`
	QuantityAvailable int64           `json:"quantity_available"`
	QuantityReserved  int64           `json:"quantity_reserved"`
	TotalStock        int64           `json:"total_stock"`
	ReorderLevel      int64           `json:"reorder_level"`
	AlertSeverity     alerts.Severity `json:"alert_severity,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// FromStockRecord converts entity to response DTO.
func FromStockRecord(r *entity.StockRecord) StockRecordResponse {
	return StockRecordResponse{
		ID:                r.ID.String(),
		ProductID:         r.ProductID.String(),
		VariantID:         r.VariantID,
		Location:          r.Location,
		QuantityAvailable: r.QuantityAvailable,
		QuantityReserved:  r.QuantityReserved,
		TotalStock:        r.TotalStock(),
		ReorderLevel:      r.ReorderLevel,
		AlertSeverity:     alerts.ClassifyRecord(r),
		UpdatedAt:         r.UpdatedAt,
	}
}

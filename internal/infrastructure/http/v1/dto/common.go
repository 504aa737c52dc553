// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// KeyRequest identifies a stock record. An empty location means the default location.
type KeyRequest struct {
	ProductID string  `json:"product_id" form:"product_id" binding:"required,uuid"`
	VariantID *string `json:"variant_id" form:"variant_id" binding:"omitempty,uuid"`
	Location  string  `json:"location" form:"location"`
}

// ToKey converts the request into an entity.StockKey.
func (r KeyRequest) ToKey(defaultLocation string) (entity.StockKey, error) {
	productID, err := id.Parse(r.ProductID)
	if err != nil {
		return entity.StockKey{}, apperror.NewValidation("invalid product_id format")
	}

	key := entity.StockKey{ProductID: productID, Location: strings.TrimSpace(r.Location)}
	if key.Location == "" {
		key.Location = defaultLocation
	}
	if r.VariantID != nil && *r.VariantID != "" {
		variantID, err := id.Parse(*r.VariantID)
		if err != nil {
			return entity.StockKey{}, apperror.NewValidation("invalid variant_id format")
		}
		key.VariantID = &variantID
	}
	return key, nil
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

package dto

import (
	"stockledger/internal/domain/ledger"
)

// MovementListResponse is one page of GET /movements.
type MovementListResponse struct {
	Items          []ledger.Row   `json:"items"`
	Page           int            `json:"page"`
	PageSize       int            `json:"page_size"`
	TotalItems     int64          `json:"total_items"`
	TotalPages     int            `json:"total_pages"`
	HasNext        bool           `json:"has_next"`
	FiltersApplied map[string]any `json:"filters_applied"`
}

// FromMovementPage converts a query engine page to the response DTO.
func FromMovementPage(p *ledger.Page[ledger.Row], f ledger.Filter) MovementListResponse {
	return MovementListResponse{
		Items:          p.Items,
		Page:           p.Page,
		PageSize:       p.PageSize,
		TotalItems:     p.TotalItems,
		TotalPages:     p.TotalPages,
		HasNext:        p.HasNext,
		FiltersApplied: f.Applied(),
	}
}

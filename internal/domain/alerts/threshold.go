// Package alerts derives low-stock alerts from current stock records.
package alerts

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// Severity is the alert class of one stock record.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityOut      Severity = "out_of_stock"
	SeverityCritical Severity = "critical_stock"
	SeverityLow      Severity = "low_stock"
)

// Classify returns the alert severity for the given counters.
//
//	out_of_stock   available == 0
//	critical_stock 0 < available <= reorder_level * 0.5
//	low_stock      not critical, available <= reorder_level
//
// The 0.5 factor is applied as available*2 <= reorder_level so odd reorder
// levels round the same way for every caller.
func Classify(available, reorderLevel int64) Severity {
	switch {
	case available == 0:
		return SeverityOut
	case available < 0:
		// counters are never negative; treat corruption as the worst class
		return SeverityOut
	case available*2 <= reorderLevel:
		return SeverityCritical
	case available <= reorderLevel:
		return SeverityLow
	}
	return SeverityNone
}

// ClassifyRecord classifies a stock record.
func ClassifyRecord(r *entity.StockRecord) Severity {
	return Classify(r.QuantityAvailable, r.ReorderLevel)
}

// Flagged reports whether s is an alert class.
func (s Severity) Flagged() bool { return s != SeverityNone }

// SuggestedReorderQuantity is the quantity that brings available up to twice
// the reorder level. Never negative.
func SuggestedReorderQuantity(available, reorderLevel int64) int64 {
	q := 2*reorderLevel - available
	if q < 0 {
		return 0
	}
	return q
}

// EstimatedReorderCost prices the suggested reorder quantity at unitCost.
func EstimatedReorderCost(available, reorderLevel int64, unitCost types.Money) types.Money {
	return types.MulUnits(unitCost, SuggestedReorderQuantity(available, reorderLevel))
}

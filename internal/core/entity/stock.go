package entity

import (
	"fmt"
	"time"

	"stockledger/internal/core/id"
)

// StockKey identifies a stock record: product, optional variant and location.
type StockKey struct {
	ProductID id.ID  `json:"product_id"`
	VariantID *id.ID `json:"variant_id"`
	Location  string `json:"location"`
}

// String renders the key for logs and lock ordering.
func (k StockKey) String() string {
	variant := "-"
	if k.VariantID != nil {
		variant = k.VariantID.String()
	}
	return fmt.Sprintf("%s/%s/%s", k.ProductID, variant, k.Location)
}

// Equal compares keys, treating two nil variants as equal.
func (k StockKey) Equal(other StockKey) bool {
	return k.ProductID == other.ProductID &&
		k.Location == other.Location &&
		id.Equal(k.VariantID, other.VariantID)
}

// StockRecord holds the current counters of one StockKey.
// It is a materialized view of the ledger: replaying all movements of the key
// must reproduce QuantityAvailable and QuantityReserved.
type StockRecord struct {
	ID        id.ID  `db:"id" json:"id"`
	ProductID id.ID  `db:"product_id" json:"product_id"`
	VariantID *id.ID `db:"variant_id" json:"variant_id"`
	Location  string `db:"location" json:"location"`

	QuantityAvailable int64 `db:"quantity_available" json:"quantity_available"`
	QuantityReserved  int64 `db:"quantity_reserved" json:"quantity_reserved"`
	ReorderLevel      int64 `db:"reorder_level" json:"reorder_level"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewStockRecord creates an empty record for key.
func NewStockRecord(key StockKey) StockRecord {
	now := time.Now().UTC()
	return StockRecord{
		ID:        id.New(),
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Location:  key.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the record's StockKey.
func (r *StockRecord) Key() StockKey {
	return StockKey{ProductID: r.ProductID, VariantID: r.VariantID, Location: r.Location}
}

// TotalStock is available plus reserved.
func (r *StockRecord) TotalStock() int64 {
	return r.QuantityAvailable + r.QuantityReserved
}

// Valid reports whether both counters and the reorder level are non-negative.
func (r *StockRecord) Valid() bool {
	return r.QuantityAvailable >= 0 && r.QuantityReserved >= 0 && r.ReorderLevel >= 0
}

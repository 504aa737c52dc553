package alerts

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Candidate is a stock record at or below its reorder level (or empty),
// joined with the catalog data the report needs.
type Candidate struct {
	entity.StockRecord

	ProductName string      `db:"product_name"`
	UnitCost    types.Money `db:"unit_cost"`
}

// Repository lists alert candidates.
type Repository interface {
	// ListCandidates returns every record with quantity_available <= reorder_level
	// or quantity_available = 0. Records of unknown products carry an empty name
	// and a zero unit cost.
	ListCandidates(ctx context.Context) ([]Candidate, error)
}

// Cache stores the last computed report. Implementations expire entries on their own.
type Cache interface {
	Get(ctx context.Context) (*Report, bool, error)
	Set(ctx context.Context, report *Report) error
}

// Item is one flagged stock record. ProductName, QuantityAvailable and
// ReorderLevel are always present.
type Item struct {
	ProductID   id.ID  `json:"product_id"`
	VariantID   *id.ID `json:"variant_id"`
	Location    string `json:"location"`
	ProductName string `json:"product_name"`

	QuantityAvailable int64    `json:"quantity_available"`
	QuantityReserved  int64    `json:"quantity_reserved"`
	ReorderLevel      int64    `json:"reorder_level"`
	Severity          Severity `json:"severity"`

	SuggestedReorderQuantity int64       `json:"suggested_reorder_quantity"`
	EstimatedReorderCost     types.Money `json:"estimated_reorder_cost"`
}

// Summary aggregates the report for dashboards.
type Summary struct {
	OutOfStockCount      int         `json:"out_of_stock_count"`
	CriticalStockCount   int         `json:"critical_stock_count"`
	LowStockCount        int         `json:"low_stock_count"`
	TotalAlerts          int         `json:"total_alerts"`
	EstimatedReorderCost types.Money `json:"estimated_reorder_cost"`
}

// Report groups alert items by severity.
type Report struct {
	OutOfStock    []Item    `json:"out_of_stock"`
	CriticalStock []Item    `json:"critical_stock"`
	LowStock      []Item    `json:"low_stock"`
	Summary       Summary   `json:"summary"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Service is the threshold/alert engine. It only reads.
type Service struct {
	txm   tx.ReadOnlyManager
	repo  Repository
	cache Cache
	now   func() time.Time
}

// NewService creates the alert engine. cache may be nil.
func NewService(txm tx.ReadOnlyManager, repo Repository, cache Cache) *Service {
	return &Service{
		txm:   txm,
		repo:  repo,
		cache: cache,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Report returns the current alert report, from cache when fresh.
// Cache failures are logged and bypassed.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			logger.Warn(ctx, "alert cache read failed", "error", err)
		case ok:
			return cached, nil
		}
	}

	var candidates []Candidate
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		candidates, err = s.repo.ListCandidates(ctx)
		if err != nil {
			return fmt.Errorf("list alert candidates: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	report := BuildReport(candidates, s.now())

	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			logger.Warn(ctx, "alert cache write failed", "error", err)
		}
	}
	return report, nil
}

// BuildReport classifies candidates. Unflagged candidates are dropped.
func BuildReport(candidates []Candidate, generatedAt time.Time) *Report {
	report := &Report{
		OutOfStock:    []Item{},
		CriticalStock: []Item{},
		LowStock:      []Item{},
		Summary:       Summary{EstimatedReorderCost: types.Zero()},
		GeneratedAt:   generatedAt,
	}

	for i := range candidates {
		c := &candidates[i]
		severity := ClassifyRecord(&c.StockRecord)
		if !severity.Flagged() {
			continue
		}

		item := newItem(c, severity)
		switch severity {
		case SeverityOut:
			report.OutOfStock = append(report.OutOfStock, item)
		case SeverityCritical:
			report.CriticalStock = append(report.CriticalStock, item)
		case SeverityLow:
			report.LowStock = append(report.LowStock, item)
		}
		report.Summary.EstimatedReorderCost = report.Summary.EstimatedReorderCost.Add(item.EstimatedReorderCost)
	}

	report.Summary.OutOfStockCount = len(report.OutOfStock)
	report.Summary.CriticalStockCount = len(report.CriticalStock)
	report.Summary.LowStockCount = len(report.LowStock)
	report.Summary.TotalAlerts = report.Summary.OutOfStockCount +
		report.Summary.CriticalStockCount + report.Summary.LowStockCount
	return report
}

func newItem(c *Candidate, severity Severity) Item {
	name := c.ProductName
	if name == "" {
		name = c.ProductID.String()
	}
	return Item{
		ProductID:                c.ProductID,
		VariantID:                c.VariantID,
		Location:                 c.Location,
		ProductName:              name,
		QuantityAvailable:        c.QuantityAvailable,
		QuantityReserved:         c.QuantityReserved,
		ReorderLevel:             c.ReorderLevel,
		Severity:                 severity,
		SuggestedReorderQuantity: SuggestedReorderQuantity(c.QuantityAvailable, c.ReorderLevel),
		EstimatedReorderCost:     EstimatedReorderCost(c.QuantityAvailable, c.ReorderLevel, c.UnitCost),
	}
}

// Package audit composes ledger history and current stock alerts into one
// audit trail payload. It adds no state of its own.
package audit

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

const (
	// MaxWindow bounds the audited period.
	MaxWindow = 366 * 24 * time.Hour

	// MaxEntries caps the entries of one trail; the payload is marked truncated beyond it.
	MaxEntries = 5000

	collectPageSize = ledger.MaxPageSize
)

// MovementQuerier is the part of the query engine the trail reads.
type MovementQuerier interface {
	Query(ctx context.Context, f ledger.Filter, req ledger.PageRequest) (*ledger.Page[ledger.Row], error)
}

// AlertReporter is the part of the alert engine the trail reads.
type AlertReporter interface {
	Report(ctx context.Context) (*alerts.Report, error)
}

// Period is the audited window, both ends inclusive.
type Period struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Trail is the audit payload.
type Trail struct {
	AuditEntries   []ledger.Entry `json:"audit_entries"`
	TotalEntries   int64          `json:"total_entries"`
	Truncated      bool           `json:"truncated"`
	Period         Period         `json:"period"`
	FiltersApplied map[string]any `json:"filters_applied"`
	GeneratedAt    time.Time      `json:"generated_at"`
	StockAlerts    *alerts.Report `json:"stock_alerts"`
}

// Service builds audit trails.
type Service struct {
	txm      tx.ReadOnlyManager
	movement MovementQuerier
	alerts   AlertReporter
	now      func() time.Time
}

// NewService creates the aggregator.
func NewService(txm tx.ReadOnlyManager, movement MovementQuerier, alerts AlertReporter) *Service {
	return &Service{
		txm:      txm,
		movement: movement,
		alerts:   alerts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Build returns every movement of the window, system movements included and
// never grouped, together with the current alert report. The other filters of
// f narrow the entries as in the query engine.
func (s *Service) Build(ctx context.Context, f ledger.Filter) (*Trail, error) {
	if f.StartDate == nil || f.EndDate == nil {
		return nil, apperror.NewInvalidQuery("start_date", "start_date and end_date are required")
	}
	if f.StartDate.After(*f.EndDate) {
		return nil, apperror.NewInvalidQuery("start_date", "start_date must not be after end_date")
	}
	if f.EndDate.Sub(*f.StartDate) > MaxWindow {
		return nil, apperror.NewInvalidQuery("end_date", "audit window must not exceed 366 days")
	}

	f.IncludeSystemMovements = true
	f.GroupRelated = false

	trail := &Trail{
		AuditEntries:   []ledger.Entry{},
		Period:         Period{StartDate: *f.StartDate, EndDate: *f.EndDate},
		FiltersApplied: f.Applied(),
	}

	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		req := ledger.PageRequest{Page: 1, PageSize: collectPageSize}
		for {
			page, err := s.movement.Query(ctx, f, req)
			if err != nil {
				return err
			}
			trail.TotalEntries = page.TotalItems
			for _, row := range page.Items {
				if len(trail.AuditEntries) == MaxEntries {
					break
				}
				trail.AuditEntries = append(trail.AuditEntries, row.Entry)
			}
			if !page.HasNext || len(trail.AuditEntries) >= MaxEntries {
				break
			}
			req.Page++
		}

		report, err := s.alerts.Report(ctx)
		if err != nil {
			return err
		}
		trail.StockAlerts = report
		return nil
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	trail.Truncated = int64(len(trail.AuditEntries)) < trail.TotalEntries
	trail.GeneratedAt = s.now()

	logger.Info(ctx, "audit trail built",
		"entries", len(trail.AuditEntries),
		"total", trail.TotalEntries,
		"truncated", trail.Truncated,
	)
	return trail, nil
}

package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/domain/alerts"
	"stockledger/internal/infrastructure/storage/postgres"
)

var _ alerts.Repository = (*AlertRepo)(nil)

// AlertRepo implements alerts.Repository.
// Product names and unit costs come from the catalog's products table.
type AlertRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewAlertRepo creates a new alert candidate repository.
func NewAlertRepo(txm *postgres.TxManager) *AlertRepo {
	return &AlertRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *AlertRepo) candidatesQuery() squirrel.SelectBuilder {
	return r.builder.Select(
		"s.id", "s.product_id", "s.variant_id", "s.location",
		"s.quantity_available", "s.quantity_reserved", "s.reorder_level",
		"s.created_at", "s.updated_at",
		"COALESCE(p.name, '') AS product_name",
		"COALESCE(p.unit_cost, 0) AS unit_cost",
	).
		From("stock_records s").
		LeftJoin("products p ON p.id = s.product_id").
		Where("(s.quantity_available <= s.reorder_level OR s.quantity_available = 0)").
		OrderBy("s.product_id", "s.location")
}

// ListCandidates returns records at or below their reorder level, or empty.
func (r *AlertRepo) ListCandidates(ctx context.Context) ([]alerts.Candidate, error) {
	sql, args, err := r.candidatesQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var candidates []alerts.Candidate
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &candidates, sql, args...); err != nil {
		return nil, fmt.Errorf("select alert candidates: %w", err)
	}
	return candidates, nil
}

// Package report_repo provides the PostgreSQL read side: ledger queries and alert candidates.
package report_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "stock_movements"
	groupKeyExpr   = "COALESCE(reservation_id, id)"
)

var movementColumns = []string{
	"id", "product_id", "variant_id", "movement_type", "quantity",
	"location_from", "location_to", "notes", "performed_by",
	"reservation_id", "created_at",
}

var _ ledger.Repository = (*MovementRepo)(nil)

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new ledger read repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// applyFilter adds the WHERE clause equivalent to ledger.Filter.Matches.
func applyFilter(q squirrel.SelectBuilder, f ledger.Filter) squirrel.SelectBuilder {
	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *f.ProductID})
	}
	if f.VariantID != nil {
		q = q.Where(squirrel.Eq{"variant_id": *f.VariantID})
	}
	if types, restricted := f.Types(); restricted {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		q = q.Where(squirrel.Eq{"movement_type": names})
	}
	if f.Location != "" {
		q = q.Where(squirrel.Or{
			squirrel.Eq{"location_from": f.Location},
			squirrel.Eq{"location_to": f.Location},
		})
	}
	if f.PerformedBy != "" {
		q = q.Where(squirrel.Eq{"performed_by": f.PerformedBy})
	}
	if f.StartDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.StartDate})
	}
	if f.EndDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.EndDate})
	}
	return q
}

func (r *MovementRepo) count(ctx context.Context, q squirrel.SelectBuilder) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// CountMovements returns the number of matching movements.
func (r *MovementRepo) CountMovements(ctx context.Context, f ledger.Filter) (int64, error) {
	return r.count(ctx, applyFilter(r.builder.Select("COUNT(*)").From(movementsTable), f))
}

func (r *MovementRepo) listMovementsQuery(f ledger.Filter, limit, offset int) squirrel.SelectBuilder {
	return applyFilter(r.builder.Select(movementColumns...).From(movementsTable), f).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}

// ListMovements returns one page of movements, newest first.
func (r *MovementRepo) ListMovements(ctx context.Context, f ledger.Filter, limit, offset int) ([]entity.MovementRecord, error) {
	sql, args, err := r.listMovementsQuery(f, limit, offset).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.MovementRecord
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// CountGroups returns the number of groups with at least one matching movement.
func (r *MovementRepo) CountGroups(ctx context.Context, f ledger.Filter) (int64, error) {
	return r.count(ctx, applyFilter(
		r.builder.Select("COUNT(DISTINCT "+groupKeyExpr+")").From(movementsTable), f))
}

func (r *MovementRepo) listGroupsQuery(f ledger.Filter, limit, offset int) squirrel.SelectBuilder {
	return applyFilter(r.builder.Select(groupKeyExpr+" AS group_id").From(movementsTable), f).
		GroupBy("group_id").
		OrderBy("MAX(created_at) DESC", "group_id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}

// ListGroupIDs returns one page of group ids ordered by their latest member.
func (r *MovementRepo) ListGroupIDs(ctx context.Context, f ledger.Filter, limit, offset int) ([]id.ID, error) {
	sql, args, err := r.listGroupsQuery(f, limit, offset).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	groupIDs, err := pgx.CollectRows(rows, pgx.RowTo[id.ID])
	if err != nil {
		return nil, fmt.Errorf("scan groups: %w", err)
	}
	return groupIDs, nil
}

func (r *MovementRepo) groupMembersQuery(f ledger.Filter, groupIDs []id.ID) squirrel.SelectBuilder {
	keys := make([]string, len(groupIDs))
	for i, gid := range groupIDs {
		keys[i] = gid.String()
	}
	return applyFilter(r.builder.Select(movementColumns...).From(movementsTable), f).
		Where(squirrel.Eq{groupKeyExpr: keys}).
		OrderBy("created_at DESC", "id DESC")
}

// ListGroupMembers returns the matching movements of the given groups.
func (r *MovementRepo) ListGroupMembers(ctx context.Context, f ledger.Filter, groupIDs []id.ID) ([]entity.MovementRecord, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	sql, args, err := r.groupMembersQuery(f, groupIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.MovementRecord
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select group members: %w", err)
	}
	return movements, nil
}

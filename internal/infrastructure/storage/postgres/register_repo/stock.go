// Package register_repo provides the PostgreSQL implementation of the stock register:
// current stock records, the append-only movement ledger and reservations.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	stockRecordsTable   = "stock_records"
	stockMovementsTable = "stock_movements"
	reservationsTable   = "stock_reservations"
)

var (
	recordColumns = []string{
		"id", "product_id", "variant_id", "location",
		"quantity_available", "quantity_reserved", "reorder_level",
		"created_at", "updated_at",
	}
	movementColumns = []string{
		"id", "product_id", "variant_id", "movement_type", "quantity",
		"location_from", "location_to", "notes", "performed_by",
		"reservation_id", "created_at",
	}
	reservationColumns = []string{
		"id", "product_id", "variant_id", "location", "quantity", "status",
		"reference", "performed_by", "created_at", "resolved_at",
	}
)

// movementLocationExpr is the location a movement belongs to: location_from for
// outgoing rows, location_to otherwise. Mirrors entity.MovementRecord.Location.
const movementLocationExpr = "CASE WHEN location_from IS NOT NULL AND (quantity < 0 OR location_to IS NULL) " +
	"THEN location_from ELSE location_to END"

var _ stock.Repository = (*StockRepo)(nil)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// variantEq matches a nullable variant; a nil variant renders IS NULL.
func variantEq(v *id.ID) squirrel.Eq {
	if v == nil {
		return squirrel.Eq{"variant_id": nil}
	}
	return squirrel.Eq{"variant_id": *v}
}

func (r *StockRepo) selectRecord(key entity.StockKey, forUpdate bool) squirrel.SelectBuilder {
	q := r.builder.Select(recordColumns...).
		From(stockRecordsTable).
		Where(squirrel.Eq{"product_id": key.ProductID}).
		Where(variantEq(key.VariantID)).
		Where(squirrel.Eq{"location": key.Location})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *StockRepo) getRecord(ctx context.Context, key entity.StockKey, forUpdate bool) (*entity.StockRecord, error) {
	sql, args, err := r.selectRecord(key, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec entity.StockRecord
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock record", key.String())
		}
		return nil, fmt.Errorf("get stock record: %w", err)
	}
	return &rec, nil
}

// GetRecord returns the record for key.
func (r *StockRepo) GetRecord(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	return r.getRecord(ctx, key, false)
}

// GetRecordForUpdate returns the record with a row lock held until commit.
func (r *StockRepo) GetRecordForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	return r.getRecord(ctx, key, true)
}

func (r *StockRepo) insertRecord(rec *entity.StockRecord) squirrel.InsertBuilder {
	return r.builder.Insert(stockRecordsTable).
		Columns(recordColumns...).
		Values(
			rec.ID, rec.ProductID, rec.VariantID, rec.Location,
			rec.QuantityAvailable, rec.QuantityReserved, rec.ReorderLevel,
			rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix("ON CONFLICT DO NOTHING")
}

// EnsureRecord inserts rec unless its key exists. The unique key treats NULL
// variants as equal, so concurrent first grants create one row.
func (r *StockRepo) EnsureRecord(ctx context.Context, rec *entity.StockRecord) error {
	sql, args, err := r.insertRecord(rec).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock record: %w", err)
	}
	return nil
}

// UpdateRecord writes the counters of an existing record.
func (r *StockRepo) UpdateRecord(ctx context.Context, rec *entity.StockRecord) error {
	sql, args, err := r.builder.Update(stockRecordsTable).
		Set("quantity_available", rec.QuantityAvailable).
		Set("quantity_reserved", rec.QuantityReserved).
		Set("reorder_level", rec.ReorderLevel).
		Set("updated_at", rec.UpdatedAt).
		Where(squirrel.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock record", rec.ID)
	}
	return nil
}

// AppendMovement inserts a ledger row. The table rejects UPDATE and DELETE.
func (r *StockRepo) AppendMovement(ctx context.Context, m *entity.MovementRecord) error {
	sql, args, err := r.builder.Insert(stockMovementsTable).
		Columns(movementColumns...).
		Values(
			m.ID, m.ProductID, m.VariantID, m.MovementType, m.Quantity,
			m.LocationFrom, m.LocationTo, m.Notes, m.PerformedBy,
			m.ReservationID, m.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (r *StockRepo) selectMovementsByKey(key entity.StockKey) squirrel.SelectBuilder {
	return r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"product_id": key.ProductID}).
		Where(variantEq(key.VariantID)).
		Where(squirrel.Expr(movementLocationExpr+" = ?", key.Location)).
		OrderBy("created_at", "id")
}

// ListMovementsByKey returns the ledger of one stock key, oldest first.
func (r *StockRepo) ListMovementsByKey(ctx context.Context, key entity.StockKey) ([]entity.MovementRecord, error) {
	sql, args, err := r.selectMovementsByKey(key).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.MovementRecord
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// CreateReservation inserts an active reservation.
func (r *StockRepo) CreateReservation(ctx context.Context, res *entity.Reservation) error {
	sql, args, err := r.builder.Insert(reservationsTable).
		Columns(reservationColumns...).
		Values(
			res.ID, res.ProductID, res.VariantID, res.Location, res.Quantity, res.Status,
			res.Reference, res.PerformedBy, res.CreatedAt, res.ResolvedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// GetReservationForUpdate locks and returns a reservation.
func (r *StockRepo) GetReservationForUpdate(ctx context.Context, reservationID id.ID) (*entity.Reservation, error) {
	sql, args, err := r.builder.Select(reservationColumns...).
		From(reservationsTable).
		Where(squirrel.Eq{"id": reservationID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var res entity.Reservation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("reservation", reservationID)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

func (r *StockRepo) selectReservationByReference(key entity.StockKey, reference string) squirrel.SelectBuilder {
	return r.builder.Select(reservationColumns...).
		From(reservationsTable).
		Where(squirrel.Eq{"product_id": key.ProductID}).
		Where(variantEq(key.VariantID)).
		Where(squirrel.Eq{"location": key.Location}).
		Where(squirrel.Eq{"reference": reference}).
		Limit(1)
}

// FindReservationByReference returns the reservation of key carrying reference, or nil.
func (r *StockRepo) FindReservationByReference(ctx context.Context, key entity.StockKey, reference string) (*entity.Reservation, error) {
	sql, args, err := r.selectReservationByReference(key, reference).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var res entity.Reservation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &res, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &res, nil
}

// UpdateReservation persists the status transition of a reservation.
func (r *StockRepo) UpdateReservation(ctx context.Context, res *entity.Reservation) error {
	sql, args, err := r.builder.Update(reservationsTable).
		Set("status", res.Status).
		Set("resolved_at", res.ResolvedAt).
		Where(squirrel.Eq{"id": res.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("reservation", res.ID)
	}
	return nil
}

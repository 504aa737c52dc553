package stock

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/movement"
	"stockledger/pkg/logger"
)

// SystemActor is recorded as performed_by when no actor is known.
const SystemActor = "system"

// Service is the reservation engine.
// Each public method runs in one transaction; the stock record is row-locked for
// the whole read-check-write sequence, and the ledger append commits or rolls
// back together with the counter update.
type Service struct {
	txm     tx.Manager
	repo    Repository
	events  EventPublisher
	walkIns ReferenceGenerator
	now     func() time.Time
}

// ReferenceGenerator issues transaction numbers for walk-in reservations.
type ReferenceGenerator interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithWalkInNumbers enables generated references for walk-in reservations.
func WithWalkInNumbers(g ReferenceGenerator) Option {
	return func(s *Service) { s.walkIns = g }
}

// NewService creates the reservation engine. events may be nil.
func NewService(txm tx.Manager, repo Repository, events EventPublisher, opts ...Option) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	s := &Service{
		txm:    txm,
		repo:   repo,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReserveInput holds a stock reservation request.
type ReserveInput struct {
	entity.StockKey
	Quantity int64
	Actor    string
	// Reference is the caller's transaction token; it is stored as the
	// reservation movement's notes and must be unique per stock key.
	Reference string
	// WalkIn with an empty Reference assigns the next WI-YYYYMMDD-NNNN number.
	WalkIn bool
}

// BusinessMovementInput holds a direct change to available stock.
type BusinessMovementInput struct {
	entity.StockKey
	Type           entity.MovementType
	SignedQuantity int64
	Actor          string
	Notes          string
}

// TransferInput moves available stock between two locations of one product/variant.
type TransferInput struct {
	ProductID id.ID
	VariantID *id.ID
	From      string
	To        string
	Quantity  int64
	Actor     string
	Notes     string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Outgoing entity.MovementRecord `json:"outgoing"`
	Incoming entity.MovementRecord `json:"incoming"`
}

// Reserve moves quantity from available to reserved.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*entity.Reservation, error) {
	if err := validateKey(in.StockKey); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").WithDetail("quantity", in.Quantity)
	}
	actor := s.actor(ctx, in.Actor)

	if in.WalkIn && in.Reference == "" {
		if s.walkIns == nil {
			return nil, apperror.NewValidation("walk-in numbering is not configured")
		}
		ref, err := s.walkIns.Next(ctx, s.now())
		if err != nil {
			return nil, apperror.Persistence(fmt.Errorf("assign walk-in number: %w", err))
		}
		in.Reference = ref
	}

	var reservation *entity.Reservation
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.repo.GetRecordForUpdate(ctx, in.StockKey)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewInsufficientStock(in.ProductID.String(), in.Quantity, 0)
			}
			return fmt.Errorf("lock stock record: %w", err)
		}

		if in.Reference != "" {
			existing, err := s.repo.FindReservationByReference(ctx, in.StockKey, in.Reference)
			if err != nil {
				return fmt.Errorf("find reservation by reference: %w", err)
			}
			if existing != nil {
				return apperror.NewReservationConflict(existing.ID,
					fmt.Sprintf("reference %s already reserved", in.Reference))
			}
		}

		if rec.QuantityAvailable < in.Quantity {
			return apperror.NewInsufficientStock(in.ProductID.String(), in.Quantity, rec.QuantityAvailable)
		}

		before := alerts.ClassifyRecord(rec)
		rec.QuantityAvailable -= in.Quantity
		rec.QuantityReserved += in.Quantity
		if err := s.saveRecord(ctx, rec, before); err != nil {
			return err
		}

		now := s.now()
		reservation = &entity.Reservation{
			ID:          id.New(),
			ProductID:   in.ProductID,
			VariantID:   in.VariantID,
			Location:    in.Location,
			Quantity:    in.Quantity,
			Status:      entity.ReservationActive,
			Reference:   in.Reference,
			PerformedBy: actor,
			CreatedAt:   now,
		}
		if err := s.repo.CreateReservation(ctx, reservation); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		m := s.newMovement(in.StockKey, entity.MovementReservation, -in.Quantity, actor, in.Reference)
		m.LocationFrom = entity.StringPtr(in.Location)
		m.ReservationID = &reservation.ID
		return s.recordMovement(ctx, rec, &m)
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "stock reserved",
		"reservation_id", reservation.ID,
		"key", in.StockKey.String(),
		"quantity", in.Quantity,
	)
	return reservation, nil
}

// Release returns a reservation's quantity to available stock.
func (s *Service) Release(ctx context.Context, reservationID id.ID, actor string) (*entity.MovementRecord, error) {
	actor = s.actor(ctx, actor)

	var m entity.MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, rec, err := s.lockReservation(ctx, reservationID)
		if err != nil {
			return err
		}

		before := alerts.ClassifyRecord(rec)
		rec.QuantityAvailable += res.Quantity
		rec.QuantityReserved -= res.Quantity
		if err := s.saveRecord(ctx, rec, before); err != nil {
			return err
		}

		res.Resolve(entity.ReservationReleased, s.now())
		if err := s.repo.UpdateReservation(ctx, res); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}

		m = s.newMovement(res.Key(), entity.MovementRelease, res.Quantity, actor, res.Reference)
		m.LocationTo = entity.StringPtr(res.Location)
		m.ReservationID = &res.ID
		return s.recordMovement(ctx, rec, &m)
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "reservation released", "reservation_id", reservationID, "quantity", m.Quantity)
	return &m, nil
}

// CommitAsSale finalizes a reservation: the reserved quantity leaves stock and a
// sale is recorded. Available stock is untouched; it was taken at reservation time.
func (s *Service) CommitAsSale(ctx context.Context, reservationID id.ID, actor string) (*entity.MovementRecord, error) {
	actor = s.actor(ctx, actor)

	var m entity.MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		res, rec, err := s.lockReservation(ctx, reservationID)
		if err != nil {
			return err
		}

		before := alerts.ClassifyRecord(rec)
		rec.QuantityReserved -= res.Quantity
		if err := s.saveRecord(ctx, rec, before); err != nil {
			return err
		}

		res.Resolve(entity.ReservationCommitted, s.now())
		if err := s.repo.UpdateReservation(ctx, res); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}

		m = s.newMovement(res.Key(), entity.MovementSale, -res.Quantity, actor, res.Reference)
		m.LocationFrom = entity.StringPtr(res.Location)
		m.ReservationID = &res.ID
		return s.recordMovement(ctx, rec, &m)
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "reservation committed as sale", "reservation_id", reservationID, "quantity", -m.Quantity)
	return &m, nil
}

// lockReservation locks an active reservation and then its stock record.
func (s *Service) lockReservation(ctx context.Context, reservationID id.ID) (*entity.Reservation, *entity.StockRecord, error) {
	res, err := s.repo.GetReservationForUpdate(ctx, reservationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewReservationConflict(reservationID, "reservation not found")
		}
		return nil, nil, fmt.Errorf("lock reservation: %w", err)
	}
	if res.IsResolved() {
		return nil, nil, apperror.NewReservationConflict(reservationID,
			fmt.Sprintf("reservation already %s", res.Status))
	}

	rec, err := s.repo.GetRecordForUpdate(ctx, res.Key())
	if err != nil {
		return nil, nil, fmt.Errorf("lock stock record of reservation %s: %w", reservationID, err)
	}
	if rec.QuantityReserved < res.Quantity {
		return nil, nil, apperror.NewInternal(fmt.Errorf(
			"stock record %s reserves %d, reservation %s holds %d",
			rec.Key(), rec.QuantityReserved, reservationID, res.Quantity))
	}
	return res, rec, nil
}

// ApplyBusinessMovement adds SignedQuantity to available stock and records the movement.
// Incoming movements create the stock record on first grant.
func (s *Service) ApplyBusinessMovement(ctx context.Context, in BusinessMovementInput) (*entity.MovementRecord, error) {
	if err := validateKey(in.StockKey); err != nil {
		return nil, err
	}
	if err := validateBusinessMovement(in.Type, in.SignedQuantity); err != nil {
		return nil, err
	}
	actor := s.actor(ctx, in.Actor)

	var m entity.MovementRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.lockForMovement(ctx, in.StockKey, in.SignedQuantity)
		if err != nil {
			return err
		}
		if rec.QuantityAvailable+in.SignedQuantity < 0 {
			return apperror.NewInsufficientStock(in.ProductID.String(), -in.SignedQuantity, rec.QuantityAvailable)
		}

		before := alerts.ClassifyRecord(rec)
		rec.QuantityAvailable += in.SignedQuantity
		if err := s.saveRecord(ctx, rec, before); err != nil {
			return err
		}

		m = s.newMovement(in.StockKey, in.Type, in.SignedQuantity, actor, in.Notes)
		if in.SignedQuantity > 0 {
			m.LocationTo = entity.StringPtr(in.Location)
		} else {
			m.LocationFrom = entity.StringPtr(in.Location)
		}
		return s.recordMovement(ctx, rec, &m)
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "business movement applied",
		"movement_id", m.ID,
		"type", m.MovementType,
		"key", in.StockKey.String(),
		"quantity", m.Quantity,
	)
	return &m, nil
}

// lockForMovement locks the record of key, creating it first when delta grants stock.
func (s *Service) lockForMovement(ctx context.Context, key entity.StockKey, delta int64) (*entity.StockRecord, error) {
	if delta > 0 {
		rec := entity.NewStockRecord(key)
		if err := s.repo.EnsureRecord(ctx, &rec); err != nil {
			return nil, fmt.Errorf("ensure stock record: %w", err)
		}
	}

	rec, err := s.repo.GetRecordForUpdate(ctx, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewInsufficientStock(key.ProductID.String(), -delta, 0)
		}
		return nil, fmt.Errorf("lock stock record: %w", err)
	}
	return rec, nil
}

// Transfer moves available stock from one location to another in one transaction.
// Both records are locked in key order so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (*TransferResult, error) {
	from := entity.StockKey{ProductID: in.ProductID, VariantID: in.VariantID, Location: in.From}
	to := entity.StockKey{ProductID: in.ProductID, VariantID: in.VariantID, Location: in.To}
	if err := validateKey(from); err != nil {
		return nil, err
	}
	if err := validateKey(to); err != nil {
		return nil, err
	}
	if in.From == in.To {
		return nil, apperror.NewValidation("transfer source and destination must differ")
	}
	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive").WithDetail("quantity", in.Quantity)
	}
	actor := s.actor(ctx, in.Actor)

	var result TransferResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		dst := entity.NewStockRecord(to)
		if err := s.repo.EnsureRecord(ctx, &dst); err != nil {
			return fmt.Errorf("ensure destination record: %w", err)
		}

		first, second := from, to
		if second.String() < first.String() {
			first, second = second, first
		}
		locked := make(map[string]*entity.StockRecord, 2)
		for _, key := range []entity.StockKey{first, second} {
			rec, err := s.repo.GetRecordForUpdate(ctx, key)
			if err != nil {
				if apperror.IsNotFound(err) {
					return apperror.NewInsufficientStock(in.ProductID.String(), in.Quantity, 0)
				}
				return fmt.Errorf("lock stock record: %w", err)
			}
			locked[key.Location] = rec
		}

		src, dstRec := locked[in.From], locked[in.To]
		if src.QuantityAvailable < in.Quantity {
			return apperror.NewInsufficientStock(in.ProductID.String(), in.Quantity, src.QuantityAvailable)
		}

		srcBefore, dstBefore := alerts.ClassifyRecord(src), alerts.ClassifyRecord(dstRec)
		src.QuantityAvailable -= in.Quantity
		dstRec.QuantityAvailable += in.Quantity

		out := s.newMovement(from, entity.MovementTransfer, -in.Quantity, actor, in.Notes)
		out.LocationFrom, out.LocationTo = entity.StringPtr(in.From), entity.StringPtr(in.To)
		incoming := s.newMovement(to, entity.MovementTransfer, in.Quantity, actor, in.Notes)
		incoming.LocationFrom, incoming.LocationTo = entity.StringPtr(in.From), entity.StringPtr(in.To)

		// Both legs go to the outbox in one batch.
		var events []entity.DomainEvent
		for _, leg := range []struct {
			rec    *entity.StockRecord
			before alerts.Severity
			m      *entity.MovementRecord
		}{{src, srcBefore, &out}, {dstRec, dstBefore, &incoming}} {
			if err := s.updateRecord(ctx, leg.rec); err != nil {
				return err
			}
			if err := s.repo.AppendMovement(ctx, leg.m); err != nil {
				return fmt.Errorf("append movement: %w", err)
			}
			events = append(events, movementRecordedEvent(leg.rec, leg.m))
			if after := alerts.ClassifyRecord(leg.rec); after != leg.before {
				events = append(events, alertChangedEvent(leg.rec, leg.before, after))
			}
		}
		if err := s.events.PublishBatch(ctx, events); err != nil {
			return fmt.Errorf("publish transfer: %w", err)
		}

		result = TransferResult{Outgoing: out, Incoming: incoming}
		return nil
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "stock transferred",
		"product_id", in.ProductID,
		"from", in.From,
		"to", in.To,
		"quantity", in.Quantity,
	)
	return &result, nil
}

// SetReorderLevel sets the alert threshold of a stock record, creating it if needed.
func (s *Service) SetReorderLevel(ctx context.Context, key entity.StockKey, level int64) (*entity.StockRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if level < 0 {
		return nil, apperror.NewValidation("reorder level must not be negative").WithDetail("reorder_level", level)
	}

	var rec *entity.StockRecord
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		fresh := entity.NewStockRecord(key)
		if err := s.repo.EnsureRecord(ctx, &fresh); err != nil {
			return fmt.Errorf("ensure stock record: %w", err)
		}

		var err error
		rec, err = s.repo.GetRecordForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock stock record: %w", err)
		}

		before := alerts.ClassifyRecord(rec)
		rec.ReorderLevel = level
		return s.saveRecord(ctx, rec, before)
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}

	logger.Info(ctx, "reorder level set", "key", key.String(), "reorder_level", level)
	return rec, nil
}

// GetRecord returns the current counters of key.
func (s *Service) GetRecord(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	rec, err := s.repo.GetRecord(ctx, key)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return rec, nil
}

// saveRecord persists rec and publishes an alert change when its severity moved.
func (s *Service) saveRecord(ctx context.Context, rec *entity.StockRecord, before alerts.Severity) error {
	if err := s.updateRecord(ctx, rec); err != nil {
		return err
	}

	if after := alerts.ClassifyRecord(rec); after != before {
		if err := s.events.Publish(ctx, alertChangedEvent(rec, before, after)); err != nil {
			return fmt.Errorf("publish alert change: %w", err)
		}
	}
	return nil
}

func (s *Service) updateRecord(ctx context.Context, rec *entity.StockRecord) error {
	if !rec.Valid() {
		return apperror.NewInternal(fmt.Errorf("stock record %s would hold negative counters", rec.Key()))
	}
	rec.UpdatedAt = s.now()
	if err := s.repo.UpdateRecord(ctx, rec); err != nil {
		return fmt.Errorf("update stock record: %w", err)
	}
	return nil
}

func (s *Service) recordMovement(ctx context.Context, rec *entity.StockRecord, m *entity.MovementRecord) error {
	if err := s.repo.AppendMovement(ctx, m); err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	if err := s.events.Publish(ctx, movementRecordedEvent(rec, m)); err != nil {
		return fmt.Errorf("publish movement: %w", err)
	}
	return nil
}

func (s *Service) newMovement(key entity.StockKey, t entity.MovementType, quantity int64, actor, notes string) entity.MovementRecord {
	m := entity.NewMovement(key, t, quantity, actor, notes)
	m.CreatedAt = s.now()
	return m
}

// actor prefers the explicit value, then the request actor, then SystemActor.
func (s *Service) actor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if a := appctx.GetActorID(ctx); a != "" {
		return a
	}
	return SystemActor
}

func validateKey(key entity.StockKey) error {
	if id.IsNil(key.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if key.VariantID != nil && id.IsNil(*key.VariantID) {
		return apperror.NewValidation("variant_id must not be the nil uuid")
	}
	if key.Location == "" {
		return apperror.NewValidation("location is required")
	}
	return nil
}

// validateBusinessMovement enforces the closed type set and per-type sign rules.
func validateBusinessMovement(t entity.MovementType, signed int64) error {
	if !t.IsKnown() {
		return apperror.NewInvalidMovementType(string(t), "unknown movement type")
	}
	if movement.IsSystemMovement(t) {
		return apperror.NewInvalidMovementType(string(t), "recorded only by reserve, release and commit")
	}
	switch t {
	case entity.MovementPurchase, entity.MovementReturn:
		if signed <= 0 {
			return signError(t, "positive")
		}
	case entity.MovementSale, entity.MovementDamage:
		if signed >= 0 {
			return signError(t, "negative")
		}
	case entity.MovementAdjustment, entity.MovementTransfer:
		if signed == 0 {
			return signError(t, "non-zero")
		}
	}
	return nil
}

func signError(t entity.MovementType, want string) error {
	return apperror.NewValidation(fmt.Sprintf("%s quantity must be %s", t, want)).
		WithDetail("movement_type", string(t))
}

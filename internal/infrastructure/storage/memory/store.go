// Package memory is an in-process storage driver with the same transactional
// contract as the Postgres driver: writers are serialized by one store-wide
// lock and a failed transaction leaves no trace.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stock"
	"stockledger/pkg/numerator"
)

var (
	_ stock.Repository     = (*Store)(nil)
	_ stock.EventPublisher = (*Store)(nil)
	_ ledger.Repository    = (*Store)(nil)
	_ alerts.Repository    = (*Store)(nil)
	_ numerator.Store      = (*Store)(nil)
)

// Product is the catalog data the alert report joins in.
type Product struct {
	Name     string
	UnitCost types.Money
}

// Store holds all state in maps guarded by mu.
type Store struct {
	mu sync.RWMutex

	records      map[string]entity.StockRecord
	reservations map[id.ID]entity.Reservation
	movements    []entity.MovementRecord
	events       []entity.DomainEvent
	products     map[id.ID]Product
	sequences    map[string]int64
	idempotency  map[string]idempotencyEntry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:      make(map[string]entity.StockRecord),
		reservations: make(map[id.ID]entity.Reservation),
		products:     make(map[id.ID]Product),
		sequences:    make(map[string]int64),
		idempotency:  make(map[string]idempotencyEntry),
	}
}

// PutProduct registers catalog data for a product.
func (s *Store) PutProduct(productID id.ID, p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = p
}

// --- stock.Repository ---

func (s *Store) GetRecord(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	var (
		rec entity.StockRecord
		ok  bool
	)
	s.read(ctx, func() { rec, ok = s.records[key.String()] })
	if !ok {
		return nil, apperror.NewNotFound("stock record", key.String())
	}
	return &rec, nil
}

// GetRecordForUpdate equals GetRecord: the writer lock of the surrounding
// transaction already excludes every other writer.
func (s *Store) GetRecordForUpdate(ctx context.Context, key entity.StockKey) (*entity.StockRecord, error) {
	return s.GetRecord(ctx, key)
}

func (s *Store) EnsureRecord(ctx context.Context, rec *entity.StockRecord) error {
	return s.write(ctx, func() error {
		k := rec.Key().String()
		if _, ok := s.records[k]; !ok {
			s.records[k] = *rec
		}
		return nil
	})
}

func (s *Store) UpdateRecord(ctx context.Context, rec *entity.StockRecord) error {
	return s.write(ctx, func() error {
		k := rec.Key().String()
		if _, ok := s.records[k]; !ok {
			return apperror.NewNotFound("stock record", k)
		}
		s.records[k] = *rec
		return nil
	})
}

func (s *Store) AppendMovement(ctx context.Context, m *entity.MovementRecord) error {
	return s.write(ctx, func() error {
		s.movements = append(s.movements, *m)
		return nil
	})
}

func (s *Store) ListMovementsByKey(ctx context.Context, key entity.StockKey) ([]entity.MovementRecord, error) {
	var out []entity.MovementRecord
	s.read(ctx, func() {
		for _, m := range s.movements {
			if m.ProductID == key.ProductID && id.Equal(m.VariantID, key.VariantID) && m.Location() == key.Location {
				out = append(out, m)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return ledger.LessRecent(&out[j], &out[i]) })
	return out, nil
}

func (s *Store) CreateReservation(ctx context.Context, r *entity.Reservation) error {
	return s.write(ctx, func() error {
		s.reservations[r.ID] = *r
		return nil
	})
}

func (s *Store) GetReservationForUpdate(ctx context.Context, reservationID id.ID) (*entity.Reservation, error) {
	var (
		r  entity.Reservation
		ok bool
	)
	s.read(ctx, func() { r, ok = s.reservations[reservationID] })
	if !ok {
		return nil, apperror.NewNotFound("reservation", reservationID)
	}
	return &r, nil
}

func (s *Store) FindReservationByReference(ctx context.Context, key entity.StockKey, reference string) (*entity.Reservation, error) {
	var found *entity.Reservation
	s.read(ctx, func() {
		for _, r := range s.reservations {
			if r.Reference == reference && r.Key().Equal(key) {
				found = &r
				return
			}
		}
	})
	return found, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r *entity.Reservation) error {
	return s.write(ctx, func() error {
		if _, ok := s.reservations[r.ID]; !ok {
			return apperror.NewNotFound("reservation", r.ID)
		}
		s.reservations[r.ID] = *r
		return nil
	})
}

// --- stock.EventPublisher ---

// Publish records an event; it must run inside a write transaction.
func (s *Store) Publish(ctx context.Context, event entity.DomainEvent) error {
	return s.write(ctx, func() error {
		s.events = append(s.events, event)
		return nil
	})
}

// PublishBatch records events in order; it must run inside a write transaction.
func (s *Store) PublishBatch(ctx context.Context, events []entity.DomainEvent) error {
	return s.write(ctx, func() error {
		s.events = append(s.events, events...)
		return nil
	})
}

// Events returns the events published so far.
func (s *Store) Events() []entity.DomainEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

// --- ledger.Repository ---

// matching returns the movements passing f in result order.
func (s *Store) matching(f ledger.Filter) []entity.MovementRecord {
	var out []entity.MovementRecord
	for i := range s.movements {
		if f.Matches(&s.movements[i]) {
			out = append(out, s.movements[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return ledger.LessRecent(&out[i], &out[j]) })
	return out
}

func (s *Store) CountMovements(ctx context.Context, f ledger.Filter) (int64, error) {
	var n int64
	s.read(ctx, func() { n = int64(len(s.matching(f))) })
	return n, nil
}

func (s *Store) ListMovements(ctx context.Context, f ledger.Filter, limit, offset int) ([]entity.MovementRecord, error) {
	var out []entity.MovementRecord
	s.read(ctx, func() { out = window(s.matching(f), limit, offset) })
	return out, nil
}

// groups returns group ids ordered by their latest matching member, ties
// broken by group id, both descending.
func (s *Store) groups(f ledger.Filter) []id.ID {
	var order []id.ID
	latest := make(map[id.ID]time.Time)
	for _, m := range s.matching(f) {
		gid := ledger.GroupID(&m)
		at, seen := latest[gid]
		if !seen {
			order = append(order, gid)
		}
		if !seen || m.CreatedAt.After(at) {
			latest[gid] = m.CreatedAt
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := latest[order[i]], latest[order[j]]
		if !a.Equal(b) {
			return a.After(b)
		}
		return bytes.Compare(order[i][:], order[j][:]) > 0
	})
	return order
}

func (s *Store) CountGroups(ctx context.Context, f ledger.Filter) (int64, error) {
	var n int64
	s.read(ctx, func() { n = int64(len(s.groups(f))) })
	return n, nil
}

func (s *Store) ListGroupIDs(ctx context.Context, f ledger.Filter, limit, offset int) ([]id.ID, error) {
	var out []id.ID
	s.read(ctx, func() { out = window(s.groups(f), limit, offset) })
	return out, nil
}

func (s *Store) ListGroupMembers(ctx context.Context, f ledger.Filter, groupIDs []id.ID) ([]entity.MovementRecord, error) {
	wanted := make(map[id.ID]bool, len(groupIDs))
	for _, gid := range groupIDs {
		wanted[gid] = true
	}

	var out []entity.MovementRecord
	s.read(ctx, func() {
		for _, m := range s.matching(f) {
			if wanted[ledger.GroupID(&m)] {
				out = append(out, m)
			}
		}
	})
	return out, nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset < 0 || offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// --- alerts.Repository ---

func (s *Store) ListCandidates(ctx context.Context) ([]alerts.Candidate, error) {
	var out []alerts.Candidate
	s.read(ctx, func() {
		for _, rec := range s.records {
			if rec.QuantityAvailable > rec.ReorderLevel && rec.QuantityAvailable != 0 {
				continue
			}
			p := s.products[rec.ProductID]
			out = append(out, alerts.Candidate{StockRecord: rec, ProductName: p.Name, UnitCost: p.UnitCost})
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

// --- numerator.Store ---

// Increment advances a named counter. Counters are not rolled back with transactions.
func (s *Store) Increment(ctx context.Context, key string, by int64) (int64, error) {
	var n int64
	err := s.write(ctx, func() error {
		s.sequences[key] += by
		n = s.sequences[key]
		return nil
	})
	return n, err
}

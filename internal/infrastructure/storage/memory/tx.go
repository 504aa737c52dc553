package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
)

var (
	_ tx.Manager         = (*Store)(nil)
	_ tx.ReadOnlyManager = (*Store)(nil)
)

// ErrReadOnly is returned when a read-only transaction attempts a write.
var ErrReadOnly = errors.New("memory store: write inside read-only transaction")

type txKey struct{}

type txState struct {
	readOnly bool
}

func txFrom(ctx context.Context) *txState {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st
	}
	return nil
}

// snapshot is the rollback point of a write transaction.
// Movements and events are append-only, so their lengths are enough.
type snapshot struct {
	records      map[string]entity.StockRecord
	reservations map[id.ID]entity.Reservation
	movements    int
	events       int
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		records:      maps.Clone(s.records),
		reservations: maps.Clone(s.reservations),
		movements:    len(s.movements),
		events:       len(s.events),
	}
}

func (s *Store) restore(snap snapshot) {
	s.records = snap.records
	s.reservations = snap.reservations
	s.movements = s.movements[:snap.movements]
	s.events = s.events[:snap.events]
}

// RunInTransaction runs fn holding the store-wide writer lock.
// Any error from fn, or cancellation of ctx, restores the state from before fn.
// Nested calls reuse the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if st := txFrom(ctx); st != nil {
		if st.readOnly {
			return ErrReadOnly
		}
		return fn(ctx)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	err := fn(context.WithValue(ctx, txKey{}, &txState{}))
	if err == nil {
		if cerr := ctx.Err(); cerr != nil {
			err = fmt.Errorf("commit transaction: %w", cerr)
		}
	}
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ReadOnly runs fn holding the reader lock, so fn sees one consistent state.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, txKey{}, &txState{readOnly: true}))
}

// read runs fn under the reader lock unless ctx already carries a transaction.
func (s *Store) read(ctx context.Context, fn func()) {
	if txFrom(ctx) != nil {
		fn()
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

// write runs fn under the writer lock unless ctx already carries a write transaction.
func (s *Store) write(ctx context.Context, fn func() error) error {
	if st := txFrom(ctx); st != nil {
		if st.readOnly {
			return ErrReadOnly
		}
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

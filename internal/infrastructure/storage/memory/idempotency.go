package memory

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

type idempotencyEntry struct {
	req       idempotency.Request
	status    idempotency.Status
	replay    idempotency.Replay
	updatedAt time.Time
	expiresAt time.Time
}

// IdempotencyStore keeps idempotency keys in process memory.
type IdempotencyStore struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// NewIdempotencyStore creates a key store sharing the lock of store. Keys expire after ttl.
func NewIdempotencyStore(store *Store, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		store: store,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	var replay *idempotency.Replay
	err := s.store.write(ctx, func() error {
		now := s.now()
		e, ok := s.store.idempotency[req.Key]
		if !ok || e.expiresAt.Before(now) ||
			(e.status == idempotency.StatusPending && now.Sub(e.updatedAt) > idempotency.StaleAfter) {
			s.store.idempotency[req.Key] = idempotencyEntry{
				req:       req,
				status:    idempotency.StatusPending,
				updatedAt: now,
				expiresAt: now.Add(s.ttl),
			}
			return nil
		}

		if e.req != req {
			return apperror.NewIdempotencyMismatch(req.Key)
		}
		if e.status == idempotency.StatusPending {
			return apperror.NewIdempotencyConflict(req.Key)
		}
		r := e.replay
		replay = &r
		return nil
	})
	return replay, err
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, replay idempotency.Replay) error {
	return s.store.write(ctx, func() error {
		e, ok := s.store.idempotency[key]
		if !ok {
			return nil
		}
		e.status = idempotency.StatusCompleted
		e.replay = replay
		e.updatedAt = s.now()
		s.store.idempotency[key] = e
		return nil
	})
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.store.write(ctx, func() error {
		if e, ok := s.store.idempotency[key]; ok && e.status == idempotency.StatusPending {
			delete(s.store.idempotency, key)
		}
		return nil
	})
}

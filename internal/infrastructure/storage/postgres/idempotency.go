package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
)

var _ idempotency.Store = (*IdempotencyStore)(nil)

// IdempotencyRecord is a row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string             `db:"idempotency_key"`
	Actor       string             `db:"actor"`
	Operation   string             `db:"operation"`
	Status      idempotency.Status `db:"status"`
	RequestHash string             `db:"request_hash"` // SHA256 of request body
	Response    []byte             `db:"response"`
	StatusCode  *int               `db:"response_status"`
	ContentType *string            `db:"response_content_type"`
	CreatedAt   time.Time          `db:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at"`
	ExpiresAt   time.Time          `db:"expires_at"`
}

// IdempotencyStore manages idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a new idempotency store. Keys expire after ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager: txManager,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Acquire implements idempotency.Store.
func (s *IdempotencyStore) Acquire(ctx context.Context, req idempotency.Request) (*idempotency.Replay, error) {
	q := s.txManager.GetQuerier(ctx)
	now := s.now()

	tag, err := q.Exec(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, actor, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, req.Key, req.Actor, req.Operation, idempotency.StatusPending, req.RequestHash, now, now.Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var record IdempotencyRecord
	err = pgxscan.Get(ctx, q, &record, `
		SELECT idempotency_key, actor, operation, status, request_hash, response,
		       response_status, response_content_type, created_at, updated_at, expires_at
		FROM sys_idempotency
		WHERE idempotency_key = $1
	`, req.Key)
	if err != nil {
		if pgxscan.NotFound(err) {
			// Purged between the insert and the read.
			return nil, apperror.NewIdempotencyConflict(req.Key)
		}
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}

	// An expired or abandoned key is taken over with an optimistic update.
	if record.ExpiresAt.Before(now) ||
		(record.Status == idempotency.StatusPending && now.Sub(record.UpdatedAt) > idempotency.StaleAfter) {
		return nil, s.takeOver(ctx, req, record.UpdatedAt, now)
	}

	if record.Actor != req.Actor || record.Operation != req.Operation || record.RequestHash != req.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(req.Key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", req.Operation)
	}

	if record.Status == idempotency.StatusPending {
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}

	return &idempotency.Replay{
		StatusCode:  normalizeReplayStatus(record.StatusCode),
		ContentType: normalizeReplayContentType(record.ContentType),
		Body:        record.Response,
	}, nil
}

func (s *IdempotencyStore) takeOver(ctx context.Context, req idempotency.Request, seen, now time.Time) error {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET actor = $1, operation = $2, status = $3, request_hash = $4,
		    response = NULL, response_status = NULL, response_content_type = NULL,
		    created_at = $5, updated_at = $5, expires_at = $6
		WHERE idempotency_key = $7 AND updated_at = $8
	`, req.Actor, req.Operation, idempotency.StatusPending, req.RequestHash, now, now.Add(s.ttl), req.Key, seen)
	if err != nil {
		return fmt.Errorf("reclaim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewIdempotencyConflict(req.Key)
	}
	return nil
}

// Complete implements idempotency.Store.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, replay idempotency.Replay) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, idempotency.StatusCompleted, replay.Body, replay.StatusCode, replay.ContentType, s.now(), key)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release implements idempotency.Store.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE idempotency_key = $1 AND status = $2
	`, key, idempotency.StatusPending)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}

func normalizeReplayStatus(status *int) int {
	if status == nil || *status == 0 {
		return 200
	}
	return *status
}

func normalizeReplayContentType(ct *string) string {
	if ct == nil || *ct == "" {
		return "application/json"
	}
	return *ct
}

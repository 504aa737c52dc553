// Package idempotency defines the contract for replaying keyed write requests.
// A client that retries a stock write with the same X-Idempotency-Key gets the
// first response back instead of a second ledger entry.
package idempotency

import (
	"context"
	"time"
)

// Status is the state of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// StaleAfter is how long a pending key may stay unresolved before another
// request can take it over (the first one most likely crashed).
const StaleAfter = time.Minute

// Request identifies one keyed call. A key may only be reused by the same
// actor for the same operation and request body.
type Request struct {
	Key         string
	Actor       string
	Operation   string
	RequestHash string
}

// Replay is a stored response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store remembers keyed requests until their expiry.
type Store interface {
	// Acquire claims req.Key. It returns (nil, nil) when the caller should run
	// the request, a Replay when the key already completed, or an AppError when
	// the key is in flight or was used for a different request.
	Acquire(ctx context.Context, req Request) (*Replay, error)

	// Complete stores the response of an acquired key.
	Complete(ctx context.Context, key string, replay Replay) error

	// Release forgets an acquired key so the request may be retried.
	Release(ctx context.Context, key string) error
}

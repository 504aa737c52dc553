package postgres

import (
	"context"
	"fmt"

	"stockledger/pkg/numerator"
)

var _ numerator.Store = (*SequenceStore)(nil)

// SequenceStore keeps numerator counters in sys_sequences.
type SequenceStore struct {
	txManager *TxManager
}

// NewSequenceStore creates a counter store.
func NewSequenceStore(txManager *TxManager) *SequenceStore {
	return &SequenceStore{txManager: txManager}
}

// Increment upserts the counter and returns its new value.
// Outside a transaction the update commits on its own, so a rolled back
// business transaction leaves a gap.
func (s *SequenceStore) Increment(ctx context.Context, key string, by int64) (int64, error) {
	var n int64
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
		RETURNING current_val
	`, key, by).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment sequence %s: %w", key, err)
	}
	return n, nil
}

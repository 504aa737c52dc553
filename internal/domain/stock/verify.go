package stock

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
)

// Consistency compares a stock record with the counters obtained by replaying its ledger.
type Consistency struct {
	Key               entity.StockKey `json:"key"`
	RecordAvailable   int64           `json:"record_available"`
	RecordReserved    int64           `json:"record_reserved"`
	LedgerAvailable   int64           `json:"ledger_available"`
	LedgerReserved    int64           `json:"ledger_reserved"`
	MovementsReplayed int             `json:"movements_replayed"`
	Consistent        bool            `json:"consistent"`
}

// Replay folds movements into (available, reserved) counters.
//
//	reservation -q: available -q, reserved +q
//	release     +q: available +q, reserved -q
//	sale of a reservation -q: reserved -q
//	any other business movement: available +quantity
func Replay(movements []entity.MovementRecord) (available, reserved int64) {
	for i := range movements {
		m := &movements[i]
		switch {
		case m.MovementType == entity.MovementReservation, m.MovementType == entity.MovementRelease:
			available += m.Quantity
			reserved -= m.Quantity
		case m.MovementType == entity.MovementSale && m.ReservationID != nil:
			reserved += m.Quantity
		default:
			available += m.Quantity
		}
	}
	return available, reserved
}

// Verify replays the ledger of key and compares it with the stored record.
func (s *Service) Verify(ctx context.Context, key entity.StockKey) (*Consistency, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var report Consistency
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.repo.GetRecord(ctx, key)
		if err != nil {
			return err
		}
		movements, err := s.repo.ListMovementsByKey(ctx, key)
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}

		available, reserved := Replay(movements)
		report = Consistency{
			Key:               key,
			RecordAvailable:   rec.QuantityAvailable,
			RecordReserved:    rec.QuantityReserved,
			LedgerAvailable:   available,
			LedgerReserved:    reserved,
			MovementsReplayed: len(movements),
			Consistent:        available == rec.QuantityAvailable && reserved == rec.QuantityReserved,
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return &report, nil
}

package ledger

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository reads the movement ledger.
// Results are ordered created_at DESC, id DESC; groups by their latest member.
//
// A group is the set of movements sharing COALESCE(reservation_id, id): the
// reservation, release and sale rows of one reservation collapse together, any
// other movement is a group of one.
type Repository interface {
	// CountMovements returns the number of movements matching f.
	CountMovements(ctx context.Context, f Filter) (int64, error)

	// ListMovements returns one page of matching movements.
	ListMovements(ctx context.Context, f Filter, limit, offset int) ([]entity.MovementRecord, error)

	// CountGroups returns the number of groups having at least one matching movement.
	CountGroups(ctx context.Context, f Filter) (int64, error)

	// ListGroupIDs returns one page of group ids.
	ListGroupIDs(ctx context.Context, f Filter, limit, offset int) ([]id.ID, error)

	// ListGroupMembers returns the matching movements of the given groups.
	ListGroupMembers(ctx context.Context, f Filter, groupIDs []id.ID) ([]entity.MovementRecord, error)
}

// GroupID returns the group a movement belongs to.
func GroupID(m *entity.MovementRecord) id.ID {
	if m.ReservationID != nil {
		return *m.ReservationID
	}
	return m.ID
}

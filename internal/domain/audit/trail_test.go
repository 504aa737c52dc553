package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/memory"
)

var day = time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)

func newAudit(store *memory.Store) *audit.Service {
	return audit.NewService(store,
		ledger.NewService(store, store),
		alerts.NewService(store, store, nil),
	)
}

func appendAt(t *testing.T, store *memory.Store, mt entity.MovementType, qty int64, at time.Time, rid *id.ID) {
	t.Helper()
	m := entity.NewMovement(entity.StockKey{ProductID: id.New(), Location: "main"}, mt, qty, "clerk", "")
	m.CreatedAt = at
	m.ReservationID = rid
	require.NoError(t, store.AppendMovement(context.Background(), &m))
}

func TestBuild_IncludesSystemMovementsUngrouped(t *testing.T) {
	store := memory.NewStore()
	rid := id.New()
	appendAt(t, store, entity.MovementPurchase, 5, day.Add(time.Hour), nil)
	appendAt(t, store, entity.MovementReservation, -1, day.Add(2*time.Hour), &rid)
	appendAt(t, store, entity.MovementSale, -1, day.Add(3*time.Hour), &rid)
	appendAt(t, store, entity.MovementPurchase, 5, day.AddDate(0, 0, 2), nil)

	start, end := day, day.Add(24*time.Hour-time.Nanosecond)
	trail, err := newAudit(store).Build(context.Background(), ledger.Filter{
		StartDate:    &start,
		EndDate:      &end,
		GroupRelated: true,
	})
	require.NoError(t, err)

	assert.Len(t, trail.AuditEntries, 3)
	assert.Equal(t, int64(3), trail.TotalEntries)
	assert.False(t, trail.Truncated)
	assert.Equal(t, start, trail.Period.StartDate)
	assert.Equal(t, true, trail.FiltersApplied["include_system_movements"])
	assert.Equal(t, false, trail.FiltersApplied["group_related"])
	require.NotNil(t, trail.StockAlerts)
	assert.False(t, trail.GeneratedAt.IsZero())
}

func TestBuild_CollectsAcrossPages(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 250; i++ {
		appendAt(t, store, entity.MovementPurchase, 1, day.Add(time.Duration(i)*time.Second), nil)
	}

	start, end := day, day.Add(time.Hour)
	trail, err := newAudit(store).Build(context.Background(), ledger.Filter{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	assert.Len(t, trail.AuditEntries, 250)
	assert.Equal(t, int64(250), trail.TotalEntries)
}

func TestBuild_RequiresBoundedWindow(t *testing.T) {
	svc := newAudit(memory.NewStore())
	start := day
	end := day.AddDate(2, 0, 0)

	_, err := svc.Build(context.Background(), ledger.Filter{StartDate: &start})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuery))

	_, err = svc.Build(context.Background(), ledger.Filter{StartDate: &start, EndDate: &end})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuery))

	_, err = svc.Build(context.Background(), ledger.Filter{StartDate: &end, EndDate: &start})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuery))
}

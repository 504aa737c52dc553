package stock_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/numerator"
)

func newService(t *testing.T) (*stock.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return stock.NewService(store, store, store), store
}

func newKey() entity.StockKey {
	return entity.StockKey{ProductID: id.New(), Location: "main"}
}

func purchase(t *testing.T, svc *stock.Service, key entity.StockKey, qty int64) {
	t.Helper()
	_, err := svc.ApplyBusinessMovement(context.Background(), stock.BusinessMovementInput{
		StockKey:       key,
		Type:           entity.MovementPurchase,
		SignedQuantity: qty,
		Actor:          "clerk",
	})
	require.NoError(t, err)
}

func counters(t *testing.T, svc *stock.Service, key entity.StockKey) (available, reserved int64) {
	t.Helper()
	rec, err := svc.GetRecord(context.Background(), key)
	require.NoError(t, err)
	return rec.QuantityAvailable, rec.QuantityReserved
}

func TestService_PurchaseReserveCommit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()

	purchase(t, svc, key, 10)
	purchase(t, svc, key, 50)

	res, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 20, Actor: "cashier"})
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationActive, res.Status)

	available, reserved := counters(t, svc, key)
	assert.Equal(t, int64(40), available)
	assert.Equal(t, int64(20), reserved)

	sale, err := svc.CommitAsSale(ctx, res.ID, "cashier")
	require.NoError(t, err)
	assert.Equal(t, entity.MovementSale, sale.MovementType)
	assert.Equal(t, int64(-20), sale.Quantity)
	require.NotNil(t, sale.ReservationID)
	assert.Equal(t, res.ID, *sale.ReservationID)

	rec, err := svc.GetRecord(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.QuantityAvailable)
	assert.Equal(t, int64(0), rec.QuantityReserved)
	assert.Equal(t, int64(40), rec.TotalStock())
}

func TestService_ReserveInsufficientReportsAvailable(t *testing.T) {
	tests := []struct {
		name      string
		stocked   int64
		held      int64
		request   int64
		available int64
		total     string
	}{
		{name: "partly reserved", stocked: 8, held: 3, request: 6, available: 5, total: "8"},
		{name: "everything reserved", stocked: 40, held: 40, request: 1, available: 0, total: "40"},
		{name: "large reservation", stocked: 3000, held: 2000, request: 1500, available: 1000, total: "3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			ctx := context.Background()
			key := newKey()

			purchase(t, svc, key, tt.stocked)
			_, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: tt.held})
			require.NoError(t, err)

			_, err = svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: tt.request})
			require.Error(t, err)
			assert.True(t, apperror.IsInsufficientStock(err))

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Contains(t, appErr.Message, fmt.Sprintf("Available: %d", tt.available))
			assert.NotContains(t, appErr.Message, tt.total)
			assert.Equal(t, tt.available, appErr.Details["available"])

			available, reserved := counters(t, svc, key)
			assert.Equal(t, tt.available, available)
			assert.Equal(t, tt.held, reserved)
		})
	}
}

func TestService_ReserveUnknownKey(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Reserve(context.Background(), stock.ReserveInput{StockKey: newKey(), Quantity: 1})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	assert.Contains(t, err.Error(), "Available: 0")
}

func TestService_ReserveRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()
	purchase(t, svc, key, 5)

	for _, q := range []int64{0, -1} {
		_, err := svc.Reserve(context.Background(), stock.ReserveInput{StockKey: key, Quantity: q})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "quantity %d", q)
	}
}

func TestService_ReserveReleaseRestoresCounters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 12)

	_, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 2})
	require.NoError(t, err)
	beforeAvail, beforeRes := counters(t, svc, key)

	res, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 7})
	require.NoError(t, err)

	m, err := svc.Release(ctx, res.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.MovementRelease, m.MovementType)
	assert.Equal(t, int64(7), m.Quantity)

	afterAvail, afterRes := counters(t, svc, key)
	assert.Equal(t, beforeAvail, afterAvail)
	assert.Equal(t, beforeRes, afterRes)
}

func TestService_ResolvedReservationConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 10)

	res, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 4})
	require.NoError(t, err)
	_, err = svc.Release(ctx, res.ID, "")
	require.NoError(t, err)
	available, reserved := counters(t, svc, key)

	_, err = svc.Release(ctx, res.ID, "")
	assert.True(t, apperror.IsReservationConflict(err))
	_, err = svc.CommitAsSale(ctx, res.ID, "")
	assert.True(t, apperror.IsReservationConflict(err))

	a, r := counters(t, svc, key)
	assert.Equal(t, available, a)
	assert.Equal(t, reserved, r)

	committed, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 1})
	require.NoError(t, err)
	_, err = svc.CommitAsSale(ctx, committed.ID, "")
	require.NoError(t, err)
	_, err = svc.CommitAsSale(ctx, committed.ID, "")
	assert.True(t, apperror.IsReservationConflict(err))
}

func TestService_UnknownReservationConflicts(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Release(context.Background(), id.New(), "")
	assert.True(t, apperror.IsReservationConflict(err))
	_, err = svc.CommitAsSale(context.Background(), id.New(), "")
	assert.True(t, apperror.IsReservationConflict(err))
}

func TestService_ReferenceReuseConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 10)

	in := stock.ReserveInput{StockKey: key, Quantity: 1, Reference: "WI-20250105-0001"}
	_, err := svc.Reserve(ctx, in)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, in)
	assert.True(t, apperror.IsReservationConflict(err))

	available, reserved := counters(t, svc, key)
	assert.Equal(t, int64(9), available)
	assert.Equal(t, int64(1), reserved)
}

func TestService_ConcurrentReservationsNeverOversell(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()
	purchase(t, svc, key, 10)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), stock.ReserveInput{StockKey: key, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if apperror.IsInsufficientStock(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, workers-10, rejected)

	available, reserved := counters(t, svc, key)
	assert.Equal(t, int64(0), available)
	assert.Equal(t, int64(10), reserved)
}

func TestService_ApplyBusinessMovementRejectsNegativeResult(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 3)
	eventsBefore := len(store.Events())

	_, err := svc.ApplyBusinessMovement(ctx, stock.BusinessMovementInput{
		StockKey: key, Type: entity.MovementDamage, SignedQuantity: -4,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))
	assert.Contains(t, err.Error(), "Available: 3")

	available, _ := counters(t, svc, key)
	assert.Equal(t, int64(3), available)
	assert.Len(t, store.Events(), eventsBefore)

	report, err := svc.Verify(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MovementsReplayed)
}

func TestService_ApplyBusinessMovementTypeValidation(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()

	for _, mt := range []entity.MovementType{entity.MovementReservation, entity.MovementRelease, "refund", ""} {
		_, err := svc.ApplyBusinessMovement(context.Background(), stock.BusinessMovementInput{
			StockKey: key, Type: mt, SignedQuantity: 1,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidMovementType), "type %q", mt)
	}
}

func TestService_ApplyBusinessMovementSignRules(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()

	tests := []struct {
		movementType entity.MovementType
		quantity     int64
	}{
		{entity.MovementPurchase, -1},
		{entity.MovementPurchase, 0},
		{entity.MovementReturn, -2},
		{entity.MovementSale, 3},
		{entity.MovementDamage, 1},
		{entity.MovementAdjustment, 0},
		{entity.MovementTransfer, 0},
	}
	for _, tt := range tests {
		_, err := svc.ApplyBusinessMovement(context.Background(), stock.BusinessMovementInput{
			StockKey: key, Type: tt.movementType, SignedQuantity: tt.quantity,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "%s %d", tt.movementType, tt.quantity)
	}
}

func TestService_AdjustmentAndReturnChangeTotal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 10)

	for _, in := range []stock.BusinessMovementInput{
		{StockKey: key, Type: entity.MovementAdjustment, SignedQuantity: -2, Notes: "(Reason: recount)"},
		{StockKey: key, Type: entity.MovementReturn, SignedQuantity: 1},
		{StockKey: key, Type: entity.MovementSale, SignedQuantity: -4},
	} {
		_, err := svc.ApplyBusinessMovement(ctx, in)
		require.NoError(t, err)
	}

	available, reserved := counters(t, svc, key)
	assert.Equal(t, int64(5), available)
	assert.Equal(t, int64(0), reserved)
}

func TestService_ReservationDoesNotChangeTotal(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 30)

	total := func() int64 {
		a, r := counters(t, svc, key)
		return a + r
	}
	start := total()

	first, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, start, total())

	_, err = svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, start, total())

	_, err = svc.Release(ctx, first.ID, "")
	require.NoError(t, err)
	assert.Equal(t, start, total())
}

func TestService_VerifyReplaysLedger(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	key := newKey()

	purchase(t, svc, key, 20)
	r1, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 5})
	require.NoError(t, err)
	r2, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.Release(ctx, r1.ID, "")
	require.NoError(t, err)
	_, err = svc.CommitAsSale(ctx, r2.ID, "")
	require.NoError(t, err)
	_, err = svc.ApplyBusinessMovement(ctx, stock.BusinessMovementInput{
		StockKey: key, Type: entity.MovementDamage, SignedQuantity: -2,
	})
	require.NoError(t, err)

	report, err := svc.Verify(ctx, key)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(15), report.LedgerAvailable)
	assert.Equal(t, int64(0), report.LedgerReserved)
	assert.Equal(t, 6, report.MovementsReplayed)
}

func TestService_Transfer(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	from := newKey()
	to := entity.StockKey{ProductID: from.ProductID, Location: "backroom"}
	purchase(t, svc, from, 10)
	published := len(store.Events())

	result, err := svc.Transfer(ctx, stock.TransferInput{
		ProductID: from.ProductID, From: "main", To: "backroom", Quantity: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-4), result.Outgoing.Quantity)
	assert.Equal(t, int64(4), result.Incoming.Quantity)

	// two legs, plus the destination leaving out-of-stock
	events := store.Events()[published:]
	require.Len(t, events, 3)
	assert.Equal(t, entity.EventMovementRecorded, events[0].EventType)
	assert.Equal(t, entity.EventMovementRecorded, events[1].EventType)
	assert.Equal(t, entity.EventAlertChanged, events[2].EventType)

	srcAvail, _ := counters(t, svc, from)
	dstAvail, _ := counters(t, svc, to)
	assert.Equal(t, int64(6), srcAvail)
	assert.Equal(t, int64(4), dstAvail)

	for _, k := range []entity.StockKey{from, to} {
		report, err := svc.Verify(ctx, k)
		require.NoError(t, err)
		assert.True(t, report.Consistent, k.String())
	}

	_, err = svc.Transfer(ctx, stock.TransferInput{
		ProductID: from.ProductID, From: "main", To: "backroom", Quantity: 7,
	})
	assert.True(t, apperror.IsInsufficientStock(err))
	srcAvail, _ = counters(t, svc, from)
	assert.Equal(t, int64(6), srcAvail)
}

func TestService_TransferRollsBackWhenOutboxFails(t *testing.T) {
	store := memory.NewStore()
	ok := stock.NewService(store, store, store)
	broken := stock.NewService(store, store, failingPublisher{})
	ctx := context.Background()
	from := newKey()
	purchase(t, ok, from, 10)

	_, err := broken.Transfer(ctx, stock.TransferInput{
		ProductID: from.ProductID, From: "main", To: "backroom", Quantity: 4,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodePersistenceFailure))

	srcAvail, _ := counters(t, ok, from)
	assert.Equal(t, int64(10), srcAvail)
	report, err := ok.Verify(ctx, from)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestService_SetReorderLevelPublishesAlertChange(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 4)

	rec, err := svc.SetReorderLevel(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.ReorderLevel)

	var changes []stock.AlertChangedPayload
	for _, e := range store.Events() {
		if e.EventType == entity.EventAlertChanged {
			changes = append(changes, e.Payload.(stock.AlertChangedPayload))
		}
	}
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	assert.Equal(t, "critical_stock", string(last.Current))

	_, err = svc.SetReorderLevel(ctx, key, -1)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestService_ActorFromContext(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()
	ctx := appctx.WithActor(context.Background(), &appctx.Actor{ID: "user-42", Source: "http"})

	m, err := svc.ApplyBusinessMovement(ctx, stock.BusinessMovementInput{
		StockKey: key, Type: entity.MovementPurchase, SignedQuantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-42", m.PerformedBy)

	m, err = svc.ApplyBusinessMovement(context.Background(), stock.BusinessMovementInput{
		StockKey: key, Type: entity.MovementPurchase, SignedQuantity: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, stock.SystemActor, m.PerformedBy)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, entity.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func (failingPublisher) PublishBatch(context.Context, []entity.DomainEvent) error {
	return errors.New("outbox unavailable")
}

func TestService_FailureRollsBackRecordAndLedger(t *testing.T) {
	store := memory.NewStore()
	ok := stock.NewService(store, store, store)
	broken := stock.NewService(store, store, failingPublisher{})
	ctx := context.Background()
	key := newKey()
	purchase(t, ok, key, 10)

	_, err := broken.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 3})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodePersistenceFailure))

	available, reserved := counters(t, ok, key)
	assert.Equal(t, int64(10), available)
	assert.Equal(t, int64(0), reserved)

	report, err := ok.Verify(ctx, key)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, 1, report.MovementsReplayed)
}

func TestService_CancelledContextLeavesNoTrace(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()
	purchase(t, svc, key, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 1})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodePersistenceFailure))

	available, reserved := counters(t, svc, key)
	assert.Equal(t, int64(5), available)
	assert.Equal(t, int64(0), reserved)
}

func TestService_WalkInReservationsAreNumbered(t *testing.T) {
	store := memory.NewStore()
	svc := stock.NewService(store, store, store,
		stock.WithWalkInNumbers(numerator.New(store, numerator.WalkInConfig())))
	ctx := context.Background()
	key := newKey()
	purchase(t, svc, key, 10)

	first, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 1, WalkIn: true})
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, stock.ReserveInput{StockKey: key, Quantity: 1, WalkIn: true})
	require.NoError(t, err)

	assert.Regexp(t, `^WI-\d{8}-0001$`, first.Reference)
	assert.Regexp(t, `^WI-\d{8}-0002$`, second.Reference)

	sale, err := svc.CommitAsSale(ctx, first.ID, "cashier")
	require.NoError(t, err)
	assert.Equal(t, first.Reference, sale.Notes)
}

func TestService_WalkInKeepsExplicitReference(t *testing.T) {
	store := memory.NewStore()
	svc := stock.NewService(store, store, store,
		stock.WithWalkInNumbers(numerator.New(store, numerator.WalkInConfig())))
	key := newKey()
	purchase(t, svc, key, 10)

	res, err := svc.Reserve(context.Background(), stock.ReserveInput{
		StockKey: key, Quantity: 1, WalkIn: true, Reference: "WI-20250105-0042",
	})
	require.NoError(t, err)
	assert.Equal(t, "WI-20250105-0042", res.Reference)
}

func TestService_WalkInWithoutNumbering(t *testing.T) {
	svc, _ := newService(t)
	key := newKey()
	purchase(t, svc, key, 10)

	_, err := svc.Reserve(context.Background(), stock.ReserveInput{StockKey: key, Quantity: 1, WalkIn: true})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

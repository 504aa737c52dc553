package alerts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/infrastructure/storage/memory"
)

type mapCache struct {
	report *alerts.Report
	getErr error
	sets   int
}

func (c *mapCache) Get(context.Context) (*alerts.Report, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.report, c.report != nil, nil
}

func (c *mapCache) Set(_ context.Context, r *alerts.Report) error {
	c.report = r
	c.sets++
	return nil
}

func seedRecord(t *testing.T, store *memory.Store, name string, available, reorder int64) entity.StockRecord {
	t.Helper()
	rec := entity.NewStockRecord(entity.StockKey{ProductID: id.New(), Location: "main"})
	rec.QuantityAvailable = available
	rec.ReorderLevel = reorder
	require.NoError(t, store.EnsureRecord(context.Background(), &rec))
	store.PutProduct(rec.ProductID, memory.Product{Name: name, UnitCost: types.MustMoney("2")})
	return rec
}

func TestService_Report(t *testing.T) {
	store := memory.NewStore()
	seedRecord(t, store, "Oat milk", 0, 6)
	seedRecord(t, store, "Syrup", 3, 6)
	seedRecord(t, store, "Lids", 5, 6)
	seedRecord(t, store, "Sleeves", 50, 6)

	svc := alerts.NewService(store, store, nil)
	report, err := svc.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Summary.OutOfStockCount)
	assert.Equal(t, 1, report.Summary.CriticalStockCount)
	assert.Equal(t, 1, report.Summary.LowStockCount)
	for _, group := range [][]alerts.Item{report.OutOfStock, report.CriticalStock, report.LowStock} {
		for _, item := range group {
			assert.NotEmpty(t, item.ProductName)
			assert.NotEqual(t, "Sleeves", item.ProductName)
		}
	}
	assert.Equal(t, int64(3), report.CriticalStock[0].QuantityAvailable)
	assert.Equal(t, int64(6), report.CriticalStock[0].ReorderLevel)
}

func TestService_ReportUsesCache(t *testing.T) {
	store := memory.NewStore()
	seedRecord(t, store, "Oat milk", 0, 6)
	cache := &mapCache{}
	svc := alerts.NewService(store, store, cache)

	first, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	seedRecord(t, store, "Syrup", 0, 6)
	second, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.sets)
}

func TestService_ReportBypassesBrokenCache(t *testing.T) {
	store := memory.NewStore()
	seedRecord(t, store, "Oat milk", 0, 6)
	svc := alerts.NewService(store, store, &mapCache{getErr: errors.New("redis down")})

	report, err := svc.Report(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalAlerts)
}

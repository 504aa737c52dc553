package register_repo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

func TestSelectRecord_NullVariantForUpdate(t *testing.T) {
	repo := NewStockRepo(nil)
	key := entity.StockKey{ProductID: id.New(), Location: "main"}

	sql, args, err := repo.selectRecord(key, true).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, product_id, variant_id, location, quantity_available, quantity_reserved, reorder_level, created_at, updated_at "+
			"FROM stock_records WHERE product_id = $1 AND variant_id IS NULL AND location = $2 FOR UPDATE",
		sql)
	require.Len(t, args, 2)
	assert.Equal(t, key.ProductID.String(), fmt.Sprint(args[0]))
	assert.Equal(t, "main", args[1])
}

func TestSelectRecord_WithVariant(t *testing.T) {
	repo := NewStockRepo(nil)
	variant := id.New()
	key := entity.StockKey{ProductID: id.New(), VariantID: &variant, Location: "main"}

	sql, args, err := repo.selectRecord(key, false).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE product_id = $1 AND variant_id = $2 AND location = $3")
	assert.NotContains(t, sql, "FOR UPDATE")
	require.Len(t, args, 3)
	assert.Equal(t, variant.String(), fmt.Sprint(args[1]))
}

func TestInsertRecord_IgnoresExistingKey(t *testing.T) {
	repo := NewStockRepo(nil)
	rec := entity.NewStockRecord(entity.StockKey{ProductID: id.New(), Location: "main"})

	sql, args, err := repo.insertRecord(&rec).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO stock_records (id,product_id,variant_id,location,quantity_available,quantity_reserved,reorder_level,created_at,updated_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT DO NOTHING",
		sql)
	assert.Len(t, args, 9)
}

func TestSelectMovementsByKey_UsesOwningLocation(t *testing.T) {
	repo := NewStockRepo(nil)
	key := entity.StockKey{ProductID: id.New(), Location: "backroom"}

	sql, args, err := repo.selectMovementsByKey(key).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM stock_movements WHERE product_id = $1 AND variant_id IS NULL AND "+movementLocationExpr+" = $2")
	assert.Contains(t, sql, "ORDER BY created_at, id")
	require.Len(t, args, 2)
	assert.Equal(t, "backroom", args[1])
}

func TestSelectReservationByReference(t *testing.T) {
	repo := NewStockRepo(nil)
	key := entity.StockKey{ProductID: id.New(), Location: "main"}

	sql, args, err := repo.selectReservationByReference(key, "WI-20250105-0001").ToSql()
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM stock_reservations WHERE product_id = $1 AND variant_id IS NULL AND location = $2 AND reference = $3 LIMIT 1")
	assert.Equal(t, "WI-20250105-0001", args[2])
}

package movement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockledger/internal/core/entity"
)

func TestClassification_ExclusiveAndExhaustive(t *testing.T) {
	for _, mt := range entity.AllMovementTypes() {
		business := IsBusinessMovement(mt)
		system := IsSystemMovement(mt)
		assert.True(t, business != system, "type %s must be exactly one of business/system", mt)
	}

	assert.Len(t, BusinessTypes(), 6)
	assert.Len(t, SystemTypes(), 2)
}

func TestClassification_UnknownTypes(t *testing.T) {
	for _, mt := range []entity.MovementType{"", "refund", "PURCHASE", "sale ", "reserve"} {
		assert.False(t, IsBusinessMovement(mt), "%q", mt)
		assert.False(t, IsSystemMovement(mt), "%q", mt)
		assert.Equal(t, CategoryUnknown, CategoryOf(mt))
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryBusiness, CategoryOf(entity.MovementDamage))
	assert.Equal(t, CategorySystem, CategoryOf(entity.MovementRelease))
}

func TestBadgeColor_Table(t *testing.T) {
	want := map[entity.MovementType]Color{
		entity.MovementPurchase:    ColorBlue,
		entity.MovementSale:        ColorGreen,
		entity.MovementReturn:      ColorYellow,
		entity.MovementDamage:      ColorRed,
		entity.MovementAdjustment:  ColorPurple,
		entity.MovementTransfer:    ColorIndigo,
		entity.MovementReservation: ColorOrange,
		entity.MovementRelease:     ColorGray,
	}
	for mt, color := range want {
		assert.Equal(t, color, BadgeColor(mt), "type %s", mt)
	}
}

func TestBadgeColor_Deterministic(t *testing.T) {
	for _, mt := range entity.AllMovementTypes() {
		first := BadgeColor(mt)
		for i := 0; i < 1000; i++ {
			if got := BadgeColor(mt); got != first {
				t.Fatalf("BadgeColor(%s) changed on call %d: %s != %s", mt, i, got, first)
			}
		}
	}
}

func TestQuantityColorClass(t *testing.T) {
	for _, q := range []int64{1, 7, 1 << 40} {
		assert.Equal(t, QuantityIncrease, QuantityColorClass(q))
	}
	for _, q := range []int64{-1, -50, -(1 << 40)} {
		assert.Equal(t, QuantityDecrease, QuantityColorClass(q))
	}
	assert.Equal(t, QuantityNeutral, QuantityColorClass(0))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, time.January, 5, 14, 30, 59, 0, time.UTC)
	assert.Equal(t, "Jan 05, 14:30", FormatTimestamp(ts, nil))

	berlin := time.FixedZone("CET", 3600)
	assert.Equal(t, "Jan 05, 15:30", FormatTimestamp(ts, berlin))
}

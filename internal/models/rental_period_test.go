package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRentalPeriod(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		end       time.Time
		wantUnit  DurationUnit
		wantValue int
	}{
		{"three hours", start.Add(3 * time.Hour), DurationHourly, 3},
		{"partial hour rounds up", start.Add(90 * time.Minute), DurationHourly, 2},
		{"exactly one day", start.Add(24 * time.Hour), DurationDaily, 1},
		{"four days", start.AddDate(0, 0, 4), DurationDaily, 4},
		{"day and a bit", start.Add(25 * time.Hour), DurationDaily, 2},
		{"one week", start.AddDate(0, 0, 7), DurationWeekly, 1},
		{"ten days", start.AddDate(0, 0, 10), DurationWeekly, 2},
		{"thirty days", start.AddDate(0, 0, 30), DurationMonthly, 1},
		{"forty five days", start.AddDate(0, 0, 45), DurationMonthly, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewRentalPeriod(start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUnit, p.DurationUnit)
			assert.Equal(t, tt.wantValue, p.DurationValue)
		})
	}
}

func TestNewRentalPeriodRejectsEmptyWindow(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := NewRentalPeriod(start, start)
	assert.ErrorIs(t, err, ErrInvalidRentalPeriod)

	_, err = NewRentalPeriod(start, start.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRentalPeriod)
}

func TestRentalPeriodDays(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewRentalPeriod(start, start.Add(49*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Days())
}

func TestOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 6, d, 0, 0, 0, 0, time.UTC) }

	assert.True(t, Overlaps(day(1), day(5), day(4), day(8)))
	assert.True(t, Overlaps(day(1), day(5), day(2), day(3)))
	assert.True(t, Overlaps(day(2), day(3), day(1), day(5)))
	assert.False(t, Overlaps(day(1), day(5), day(5), day(8)), "touching windows do not overlap")
	assert.False(t, Overlaps(day(5), day(8), day(1), day(5)))

	lock := &InventoryLock{StartDate: day(1), EndDate: day(5), Status: LockStatusActive}
	assert.True(t, lock.Overlaps(day(3), day(4)))
	assert.True(t, lock.IsActive())
}

func TestOrderItemRecomputeTotal(t *testing.T) {
	item := OrderItem{Quantity: 3}
	item.UnitPrice = mustDecimal(t, "12.50")
	item.RecomputeTotal()
	assert.Equal(t, "37.5", item.TotalPrice.String())
}

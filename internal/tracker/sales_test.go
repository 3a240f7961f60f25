package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

func snapshot(counts map[string]int) types.InventorySnapshot {
	var snap types.InventorySnapshot
	for name, n := range counts {
		snap.Items = append(snap.Items, types.ClassCount{ClassName: name, Count: n})
		snap.TotalItems += n
	}
	return snap
}

func TestSaleRecordedOnDisappearance(t *testing.T) {
	st := NewSalesTracker(5 * time.Second)
	base := time.Now()

	// Product visible through the first verification cycle.
	st.Observe(snapshot(map[string]int{"salmon_poke": 1}), base)
	st.Observe(snapshot(map[string]int{"salmon_poke": 1}), base.Add(6*time.Second))

	// Gone by the next cycle.
	st.Observe(snapshot(nil), base.Add(12*time.Second))

	sales := st.Sales(0)
	require.Len(t, sales, 1)
	assert.Equal(t, "salmon_poke", sales[0].Product)
	assert.InDelta(t, 12.0, sales[0].DurationSeconds, 0.1)
	assert.Equal(t, 1, st.TotalSales())
}

func TestNoSaleBetweenVerificationCycles(t *testing.T) {
	st := NewSalesTracker(5 * time.Second)
	base := time.Now()

	st.Observe(snapshot(map[string]int{"tuna_poke": 1}), base)
	// Disappears, but the next observation is inside the verification
	// interval, so no cycle runs and no sale is recorded.
	st.Observe(snapshot(nil), base.Add(2*time.Second))

	assert.Zero(t, st.TotalSales())
}

func TestFlickerDoesNotRecordSale(t *testing.T) {
	st := NewSalesTracker(5 * time.Second)
	base := time.Now()

	st.Observe(snapshot(map[string]int{"shrimp_poke": 1}), base)
	// Missing for one observation inside the interval, back before the
	// next verification cycle fires.
	st.Observe(snapshot(nil), base.Add(time.Second))
	st.Observe(snapshot(map[string]int{"shrimp_poke": 1}), base.Add(2*time.Second))
	st.Observe(snapshot(map[string]int{"shrimp_poke": 1}), base.Add(7*time.Second))

	assert.Zero(t, st.TotalSales())
}

func TestActiveTimersFormatting(t *testing.T) {
	st := NewSalesTracker(5 * time.Second)
	base := time.Now()

	st.Observe(snapshot(map[string]int{"veggie_poke": 1}), base)

	timers := st.ActiveTimers(base.Add(45 * time.Second))
	assert.Equal(t, "45s", timers["veggie_poke"])

	timers = st.ActiveTimers(base.Add(2*time.Minute + 30*time.Second))
	assert.Equal(t, "2m 30s", timers["veggie_poke"])

	timers = st.ActiveTimers(base.Add(time.Hour + 5*time.Minute))
	assert.Equal(t, "1h 5m", timers["veggie_poke"])
}

func TestSalesLimit(t *testing.T) {
	st := NewSalesTracker(time.Second)
	base := time.Now()

	for i, name := range []string{"a", "b", "c"} {
		offset := time.Duration(i) * 10 * time.Second
		st.Observe(snapshot(map[string]int{name: 1}), base.Add(offset))
		st.Observe(snapshot(nil), base.Add(offset+5*time.Second))
	}

	require.Equal(t, 3, st.TotalSales())
	recent := st.Sales(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Product)
	assert.Equal(t, "c", recent[1].Product)
}

func TestSalesReset(t *testing.T) {
	st := NewSalesTracker(time.Second)
	base := time.Now()

	st.Observe(snapshot(map[string]int{"salmon_poke": 1}), base)
	st.Observe(snapshot(nil), base.Add(2*time.Second))
	require.Equal(t, 1, st.TotalSales())

	st.Reset()
	assert.Zero(t, st.TotalSales())
	assert.Empty(t, st.ActiveTimers(time.Now()))

	stats := st.GetStats()
	assert.Zero(t, stats.ActiveProducts)
	assert.Zero(t, stats.TotalSales)
}

package tracker

import (
	"fmt"
	"sync"
	"time"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// SaleRecord is one recorded sale event.
type SaleRecord struct {
	Product         string  `json:"product"`
	Timestamp       float64 `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds"` // how long the product was visible
}

// productTimer tracks one product's continuous presence.
type productTimer struct {
	firstSeen    time.Time
	lastVerified time.Time
}

// SalesTracker watches the smoothed inventory and records a sale when
// a product that had been verified present disappears. Verification
// runs on a fixed interval rather than per frame so a single noisy
// frame cannot fake a sale.
type SalesTracker struct {
	mu               sync.Mutex
	interval         time.Duration
	lastVerification time.Time
	active           map[string]*productTimer
	previous         map[string]int
	sales            []SaleRecord
}

// NewSalesTracker creates a tracker with the given verification interval.
func NewSalesTracker(interval time.Duration) *SalesTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SalesTracker{
		interval:         interval,
		lastVerification: time.Now(),
		active:           make(map[string]*productTimer),
		previous:         make(map[string]int),
	}
}

// Observe updates the tracker with the current inventory. Call once
// per pipeline cycle.
func (st *SalesTracker) Observe(snap types.InventorySnapshot, now time.Time) {
	current := snap.Counts()

	st.mu.Lock()
	defer st.mu.Unlock()

	if now.Sub(st.lastVerification) >= st.interval {
		st.verifyLocked(current, now)
		st.lastVerification = now
	}

	for name := range current {
		if timer, ok := st.active[name]; ok {
			timer.lastVerified = now
		} else {
			st.active[name] = &productTimer{firstSeen: now, lastVerified: now}
			logger.Debug("Sales", "Started timer for %s", name)
		}
	}

	st.previous = current
}

// verifyLocked records a sale for every product that was present at
// the previous verification and is gone now.
func (st *SalesTracker) verifyLocked(current map[string]int, now time.Time) {
	for name := range st.previous {
		if _, ok := current[name]; ok {
			continue
		}
		timer, ok := st.active[name]
		if !ok {
			continue
		}
		duration := now.Sub(timer.firstSeen)
		st.sales = append(st.sales, SaleRecord{
			Product:         name,
			Timestamp:       float64(now.UnixNano()) / 1e9,
			DurationSeconds: duration.Seconds(),
		})
		delete(st.active, name)
		logger.Info("Sales", "Sale recorded: %s (was visible for %s)",
			name, formatDuration(duration))
	}
}

// ActiveTimers returns formatted presence durations per product.
func (st *SalesTracker) ActiveTimers(now time.Time) map[string]string {
	st.mu.Lock()
	defer st.mu.Unlock()

	timers := make(map[string]string, len(st.active))
	for name, timer := range st.active {
		timers[name] = formatDuration(now.Sub(timer.firstSeen))
	}
	return timers
}

// Sales returns up to limit most recent records, oldest first. A
// non-positive limit returns everything.
func (st *SalesTracker) Sales(limit int) []SaleRecord {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := st.sales
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	cp := make([]SaleRecord, len(out))
	copy(cp, out)
	return cp
}

// TotalSales returns the number of recorded sales.
func (st *SalesTracker) TotalSales() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sales)
}

// Reset clears timers, the sales log, and the comparison snapshot.
func (st *SalesTracker) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active = make(map[string]*productTimer)
	st.previous = make(map[string]int)
	st.sales = nil
	st.lastVerification = time.Now()
	logger.Info("Sales", "Sales tracker reset")
}

// SalesStats describes the tracker for status endpoints.
type SalesStats struct {
	ActiveProducts       int     `json:"active_products"`
	TotalSales           int     `json:"total_sales"`
	VerificationInterval float64 `json:"verification_interval"`
}

// GetStats returns a point-in-time description of the tracker.
func (st *SalesTracker) GetStats() SalesStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	return SalesStats{
		ActiveProducts:       len(st.active),
		TotalSales:           len(st.sales),
		VerificationInterval: st.interval.Seconds(),
	}
}

// formatDuration renders a duration as "45s", "2m 30s" or "1h 5m".
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	}
}

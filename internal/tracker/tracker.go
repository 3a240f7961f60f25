package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// Method selects how the per-class window is collapsed to one count.
type Method string

const (
	MethodMedian Method = "median"
	MethodMean   Method = "mean"
	MethodMode   Method = "mode"
)

// Tracker smooths raw per-frame detection counts over a sliding window
// into a stable inventory estimate. Classes absent from a frame are
// recorded as zero so an item that leaves the station decays out of
// the inventory instead of vanishing abruptly.
type Tracker struct {
	mu      sync.Mutex
	size    int
	method  Method
	history map[string]*window
	frames  uint64
}

// New creates a tracker with the given window size and method.
func New(size int, method Method) *Tracker {
	if size <= 0 {
		size = 10
	}
	switch method {
	case MethodMedian, MethodMean, MethodMode:
	default:
		method = MethodMedian
	}
	return &Tracker{
		size:    size,
		method:  method,
		history: make(map[string]*window),
	}
}

// Update appends this frame's counts to every tracked class window,
// zero for classes not seen this frame.
func (t *Tracker) Update(ds types.DetectionSet) {
	counts := ds.Counts()

	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range counts {
		if _, ok := t.history[name]; !ok {
			t.history[name] = newWindow(t.size)
		}
	}
	for name, win := range t.history {
		win.push(counts[name])
		// A full all-zero window means the class has fully decayed;
		// forget it until it is seen again.
		if win.full() && win.allZero() {
			delete(t.history, name)
		}
	}
	t.frames++
}

// Inventory returns the smoothed estimate. It is a read-only
// projection: calling it repeatedly between updates yields the same
// counts. Classes whose smoothed count is zero are omitted.
func (t *Tracker) Inventory() types.InventorySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := types.InventorySnapshot{
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	for name, win := range t.history {
		vals := win.values()
		count := smooth(vals, t.method)
		if count <= 0 {
			continue
		}
		snap.Items = append(snap.Items, types.ClassCount{
			ClassName:  name,
			Count:      count,
			Confidence: confidence(vals),
		})
		snap.TotalItems += count
	}
	sort.Slice(snap.Items, func(i, j int) bool {
		return snap.Items[i].ClassName < snap.Items[j].ClassName
	})
	return snap
}

// InventorySorted returns the snapshot ordered by count descending,
// ties broken by class name.
func (t *Tracker) InventorySorted() types.InventorySnapshot {
	snap := t.Inventory()
	sort.Slice(snap.Items, func(i, j int) bool {
		if snap.Items[i].Count != snap.Items[j].Count {
			return snap.Items[i].Count > snap.Items[j].Count
		}
		return snap.Items[i].ClassName < snap.Items[j].ClassName
	})
	return snap
}

// Reset clears all observation history.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = make(map[string]*window)
	t.frames = 0
}

// Stats describes the tracker for status endpoints.
type Stats struct {
	Window         int    `json:"window"`
	Method         string `json:"method"`
	TrackedClasses int    `json:"tracked_classes"`
	FramesObserved uint64 `json:"frames_observed"`
}

// GetStats returns a point-in-time description of the tracker.
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Window:         t.size,
		Method:         string(t.method),
		TrackedClasses: len(t.history),
		FramesObserved: t.frames,
	}
}

// smooth collapses a window of counts to a single count.
func smooth(vals []int, method Method) int {
	if len(vals) == 0 {
		return 0
	}
	switch method {
	case MethodMean:
		return roundHalfUp(stat.Mean(toFloats(vals), nil))
	case MethodMode:
		return mode(vals)
	default:
		return median(vals)
	}
}

// median returns the middle value; for even windows, the mean of the
// two central values rounded half up.
func median(vals []int) int {
	sorted := make([]int, len(vals))
	copy(sorted, vals)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return roundHalfUp(float64(sorted[mid-1]+sorted[mid]) / 2)
}

// mode returns the most frequent value; ties go to the smaller value.
func mode(vals []int) int {
	freq := make(map[int]int, len(vals))
	for _, v := range vals {
		freq[v]++
	}
	best, bestCount := 0, -1
	for v, c := range freq {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// confidence scores window stability via the coefficient of variation:
// 1/(1+cv). A flat window scores 1, a noisy one approaches 0.
func confidence(vals []int) float64 {
	if len(vals) < 2 {
		return 0
	}
	fs := toFloats(vals)
	mean := stat.Mean(fs, nil)
	std := stat.PopStdDev(fs, nil)
	if mean == 0 {
		if std == 0 {
			return 1
		}
		return 0
	}
	return 1 / (1 + std/mean)
}

func toFloats(vals []int) []float64 {
	fs := make([]float64, len(vals))
	for i, v := range vals {
		fs[i] = float64(v)
	}
	return fs
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

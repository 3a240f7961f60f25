package types

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single captured image plus capture metadata. The pixel
// buffer is owned by exactly one pipeline stage at a time; whoever
// holds the frame last must Close it.
type Frame struct {
	Mat       *gocv.Mat
	Number    uint64
	Width     int
	Height    int
	Timestamp time.Time
	Stale     bool // true when served from the retained last-good frame
}

// Clone returns an independently owned copy of the frame.
func (f *Frame) Clone() *Frame {
	c := *f
	if f.Mat != nil {
		m := f.Mat.Clone()
		c.Mat = &m
	}
	return &c
}

// Close releases the pixel buffer. Safe on frames without one.
func (f *Frame) Close() {
	if f.Mat != nil {
		f.Mat.Close()
		f.Mat = nil
	}
}

// BoundingBox is a pixel-space box in original frame coordinates.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Detection is a single detected object.
type Detection struct {
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// DetectionSet is the result of running the model on one frame.
// An empty Detections slice is a valid result.
type DetectionSet struct {
	FrameNumber uint64      `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Detections  []Detection `json:"detections"`
}

// Counts returns per-class object counts for this frame.
func (ds DetectionSet) Counts() map[string]int {
	counts := make(map[string]int, len(ds.Detections))
	for _, d := range ds.Detections {
		counts[d.ClassName]++
	}
	return counts
}

// ClassCount is one smoothed inventory line item.
type ClassCount struct {
	ClassName  string  `json:"class_name"`
	Count      int     `json:"count"`
	Confidence float64 `json:"confidence"`
}

// InventorySnapshot is the smoothed inventory estimate at a point in
// time. Only classes with a smoothed count above zero appear.
type InventorySnapshot struct {
	Items      []ClassCount `json:"items"`
	TotalItems int          `json:"total_items"`
	Timestamp  float64      `json:"timestamp"`
}

// Counts returns the snapshot as a class to count map.
func (s InventorySnapshot) Counts() map[string]int {
	counts := make(map[string]int, len(s.Items))
	for _, it := range s.Items {
		counts[it.ClassName] = it.Count
	}
	return counts
}

// StreamStats is the periodic pipeline statistics payload.
type StreamStats struct {
	FPS               float64 `json:"fps"`
	InferenceTime     float64 `json:"inference_time"` // mean of recent inferences, ms
	TotalItems        int     `json:"total_items"`
	FrameCount        uint64  `json:"frame_count"`
	ActiveConnections int     `json:"active_connections"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
type Metrics struct {
	// Capture and processing counters
	FramesCaptured  atomic.Uint64
	FramesProcessed atomic.Uint64
	StaleFrames     atomic.Uint64

	// Error counters
	ReadErrors      atomic.Uint64
	InferenceErrors atomic.Uint64
	RenderErrors    atomic.Uint64

	// Cycles that blew their frame budget and skipped the throttle sleep
	CycleOverruns atomic.Uint64

	// Latency tracking
	InferenceLatencyMs atomic.Uint64 // Most recent inference latency in ms

	// Broadcast tracking
	ActiveClients   atomic.Uint64
	TotalClients    atomic.Uint64
	FramesStreamed  atomic.Uint64
	MessagesDropped atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"inventory_frames_captured_total", "Total frames captured from the camera", m.FramesCaptured.Load},
		{"inventory_frames_processed_total", "Total frames run through the pipeline", m.FramesProcessed.Load},
		{"inventory_stale_frames_total", "Total stale frames served during reconnects", m.StaleFrames.Load},
		{"inventory_read_errors_total", "Total camera read failures", m.ReadErrors.Load},
		{"inventory_inference_errors_total", "Total transient inference failures", m.InferenceErrors.Load},
		{"inventory_render_errors_total", "Total annotation/encode failures", m.RenderErrors.Load},
		{"inventory_cycle_overruns_total", "Total cycles that exceeded the frame budget", m.CycleOverruns.Load},
		{"inventory_inference_latency_ms", "Most recent inference latency in milliseconds", m.InferenceLatencyMs.Load},
		{"inventory_active_clients", "Number of connected viewers", m.ActiveClients.Load},
		{"inventory_total_clients", "Total viewers ever connected", m.TotalClients.Load},
		{"inventory_frames_streamed_total", "Total frame envelopes broadcast", m.FramesStreamed.Load},
		{"inventory_messages_dropped_total", "Total messages dropped to slow viewers", m.MessagesDropped.Load},
	}

	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// UpdateInferenceLatency records the latest inference duration.
func (m *Metrics) UpdateInferenceLatency(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

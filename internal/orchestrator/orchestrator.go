package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/detector"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/metrics"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/tracker"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// inferenceWindow is how many recent inference samples feed the
// reported mean inference time.
const inferenceWindow = 100

// FrameSource produces frames; reads never block longer than the
// capture stage's own bounded backoff waits.
type FrameSource interface {
	Open() error
	Read() (*types.Frame, error)
	Close()
}

// Detector runs the model on a frame.
type Detector interface {
	Load() error
	Warmup(runs int) error
	Detect(frame *types.Frame) (types.DetectionSet, error)
	Close()
}

// Renderer turns a frame plus detections into a broadcast JPEG.
type Renderer interface {
	Render(frame *types.Frame, ds types.DetectionSet) ([]byte, error)
}

// Publisher fans messages out to viewers without ever blocking.
type Publisher interface {
	PublishFrame(jpeg []byte)
	PublishInventory(snap types.InventorySnapshot)
	PublishStats(stats types.StreamStats)
	ClientCount() int
	FramesStreamed() uint64
	Dropped() uint64
	TotalClients() uint64
}

// Config tunes the cycle loop.
type Config struct {
	TargetFPS        int
	StatsInterval    time.Duration
	DegradedInterval time.Duration
	WarmupRuns       int
	Placeholder      []byte // shown before the first capture succeeds
}

// Orchestrator drives the capture, detect, track, render, publish
// cycle and owns the pipeline state machine.
type Orchestrator struct {
	cfg    Config
	source FrameSource
	det    Detector
	render Renderer
	trk    *tracker.Tracker
	sales  *tracker.SalesTracker
	pub    Publisher
	m      *metrics.Metrics

	state atomic.Int32

	mu           sync.Mutex
	startedAt    time.Time
	lastJPEG     []byte
	lastSnapshot types.InventorySnapshot
	frameCount   uint64
	inferTimes   []float64 // ms, most recent inferenceWindow samples
	fpsCount     int
	fpsStart     time.Time
	currentFPS   float64
	lastStatsPub time.Time
}

// New wires the orchestrator over its components.
func New(cfg Config, source FrameSource, det Detector, render Renderer,
	trk *tracker.Tracker, sales *tracker.SalesTracker, pub Publisher,
	m *metrics.Metrics) *Orchestrator {

	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 30
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Second
	}
	if cfg.DegradedInterval <= 0 {
		cfg.DegradedInterval = 500 * time.Millisecond
	}
	return &Orchestrator{
		cfg:    cfg,
		source: source,
		det:    det,
		render: render,
		trk:    trk,
		sales:  sales,
		pub:    pub,
		m:      m,
	}
}

// Init acquires the camera and loads the model. Any failure here is
// fatal and leaves the pipeline in FAILED.
func (o *Orchestrator) Init() error {
	if err := o.source.Open(); err != nil {
		o.setState(StateFailed)
		return fmt.Errorf("open camera: %w", err)
	}
	if err := o.det.Load(); err != nil {
		o.setState(StateFailed)
		return fmt.Errorf("load model: %w", err)
	}
	if o.cfg.WarmupRuns > 0 {
		if err := o.det.Warmup(o.cfg.WarmupRuns); err != nil {
			logger.Warn("Pipeline", "Warmup failed: %v", err)
		}
	}
	o.setState(StateReady)
	return nil
}

// Run drives the cycle loop until the context is cancelled or a fatal
// error occurs. It always leaves the pipeline in STOPPED, publishing a
// final stats message on the way out.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.State() != StateReady {
		return fmt.Errorf("cannot run from state %s", o.State())
	}

	now := time.Now()
	o.mu.Lock()
	o.startedAt = now
	o.fpsStart = now
	o.lastStatsPub = now
	o.mu.Unlock()
	o.setState(StateRunning)

	if o.cfg.Placeholder != nil {
		o.mu.Lock()
		o.lastJPEG = o.cfg.Placeholder
		o.mu.Unlock()
		o.pub.PublishFrame(o.cfg.Placeholder)
	}

	budget := time.Second / time.Duration(o.cfg.TargetFPS)
	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		cycleStart := time.Now()
		if err := o.cycle(); err != nil {
			logger.Error("Pipeline", "Fatal cycle error: %v", err)
			runErr = err
			break loop
		}

		// Throttle: sleep only the remainder of the frame budget, or
		// the slower probe cadence while degraded. A cycle that blew
		// the budget skips the sleep and counts as backpressure.
		wait := budget - time.Since(cycleStart)
		if o.State() == StateDegraded {
			wait = o.cfg.DegradedInterval - time.Since(cycleStart)
		} else if wait <= 0 {
			o.m.CycleOverruns.Add(1)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				break loop
			case <-timer.C:
			}
		}
	}

	o.setState(StateShuttingDown)
	o.pub.PublishStats(o.Stats())
	o.setState(StateStopped)
	return runErr
}

// cycle runs one capture-detect-track-render-publish pass. A non-nil
// return is fatal; everything recoverable is handled in place.
func (o *Orchestrator) cycle() error {
	frame, err := o.source.Read()
	if err != nil {
		o.m.ReadErrors.Add(1)
		o.degradedCycle()
		return nil
	}

	if o.State() == StateDegraded && !frame.Stale {
		o.setState(StateRunning)
		o.mu.Lock()
		o.fpsCount = 0
		o.fpsStart = time.Now()
		o.mu.Unlock()
		logger.Info("Pipeline", "Camera recovered, resuming normal operation")
	}

	o.m.FramesCaptured.Add(1)
	if frame.Stale {
		o.m.StaleFrames.Add(1)
	}

	inferStart := time.Now()
	ds, derr := o.det.Detect(frame)
	if derr != nil {
		if errors.Is(derr, detector.ErrResourceExhausted) {
			frame.Close()
			return derr
		}
		o.m.InferenceErrors.Add(1)
		logger.Warn("Pipeline", "Inference failed on frame %d, treating as empty: %v",
			frame.Number, derr)
		ds = types.DetectionSet{
			FrameNumber: frame.Number,
			Timestamp:   float64(frame.Timestamp.UnixNano()) / 1e9,
		}
	} else {
		o.recordInference(time.Since(inferStart))
	}

	o.trk.Update(ds)
	snap := o.trk.Inventory()
	o.sales.Observe(snap, time.Now())

	jpeg, rerr := o.render.Render(frame, ds)
	frame.Close()
	if rerr != nil {
		o.m.RenderErrors.Add(1)
		logger.Warn("Pipeline", "Render failed: %v", rerr)
	} else {
		o.mu.Lock()
		o.lastJPEG = jpeg
		o.mu.Unlock()
		o.pub.PublishFrame(jpeg)
	}

	o.pub.PublishInventory(snap)
	o.recordCycle(snap)
	o.m.FramesProcessed.Add(1)
	o.publishStatsIfDue()
	return nil
}

// degradedCycle keeps viewers fed while the camera is gone: the last
// rendered frame is re-served and the inventory decays via zero
// updates. Sales are not observed here so a dead camera cannot fake a
// sale.
func (o *Orchestrator) degradedCycle() {
	if o.State() != StateDegraded {
		o.setState(StateDegraded)
		// No frames are flowing, so the last measured rate is stale.
		o.mu.Lock()
		o.currentFPS = 0
		o.fpsCount = 0
		o.mu.Unlock()
		logger.Warn("Pipeline", "Camera unavailable, entering degraded operation")
	}

	o.trk.Update(types.DetectionSet{})
	snap := o.trk.Inventory()

	o.mu.Lock()
	last := o.lastJPEG
	o.lastSnapshot = snap
	o.mu.Unlock()

	if last != nil {
		o.pub.PublishFrame(last)
	}
	o.pub.PublishInventory(snap)
	o.publishStatsIfDue()
}

func (o *Orchestrator) recordInference(d time.Duration) {
	o.m.UpdateInferenceLatency(d)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inferTimes = append(o.inferTimes, float64(d.Microseconds())/1000)
	if len(o.inferTimes) > inferenceWindow {
		o.inferTimes = o.inferTimes[len(o.inferTimes)-inferenceWindow:]
	}
}

func (o *Orchestrator) recordCycle(snap types.InventorySnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.frameCount++
	o.lastSnapshot = snap
	o.fpsCount++
	if elapsed := time.Since(o.fpsStart); elapsed >= time.Second {
		o.currentFPS = float64(o.fpsCount) / elapsed.Seconds()
		o.fpsCount = 0
		o.fpsStart = time.Now()
	}
}

func (o *Orchestrator) publishStatsIfDue() {
	o.mu.Lock()
	due := time.Since(o.lastStatsPub) >= o.cfg.StatsInterval
	if due {
		o.lastStatsPub = time.Now()
	}
	o.mu.Unlock()

	if !due {
		return
	}

	stats := o.Stats()
	o.m.ActiveClients.Store(uint64(stats.ActiveConnections))
	o.m.FramesStreamed.Store(o.pub.FramesStreamed())
	o.m.MessagesDropped.Store(o.pub.Dropped())
	o.m.TotalClients.Store(o.pub.TotalClients())
	o.pub.PublishStats(stats)
}

// Stats returns a read-only projection of the pipeline counters.
func (o *Orchestrator) Stats() types.StreamStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	var meanInfer float64
	if len(o.inferTimes) > 0 {
		var sum float64
		for _, v := range o.inferTimes {
			sum += v
		}
		meanInfer = sum / float64(len(o.inferTimes))
	}

	var uptime time.Duration
	if !o.startedAt.IsZero() {
		uptime = time.Since(o.startedAt)
	}

	return types.StreamStats{
		FPS:               o.currentFPS,
		InferenceTime:     meanInfer,
		TotalItems:        o.lastSnapshot.TotalItems,
		FrameCount:        o.frameCount,
		ActiveConnections: o.pub.ClientCount(),
		UptimeSeconds:     uptime.Seconds(),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// StateName returns the state as its wire string.
func (o *Orchestrator) StateName() string {
	return o.State().String()
}

// Uptime is the time since Run started; zero beforehand.
func (o *Orchestrator) Uptime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startedAt.IsZero() {
		return 0
	}
	return time.Since(o.startedAt)
}

func (o *Orchestrator) setState(s State) {
	old := State(o.state.Swap(int32(s)))
	if old != s {
		logger.Info("Pipeline", "State %s -> %s", old, s)
	}
}

// Close releases the detector and camera, reversing Init order.
func (o *Orchestrator) Close() {
	o.det.Close()
	o.source.Close()
}

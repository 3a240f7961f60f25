package camera

import (
	"errors"
	"sync"
	"time"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// ErrUnavailable is returned once the reconnect budget is exhausted.
// Subsequent reads keep attempting a reopen so a camera that comes
// back is picked up again.
var ErrUnavailable = errors.New("camera unavailable")

// Config defines the capture device and its recovery policy.
type Config struct {
	DeviceIndex   int
	Width         int
	Height        int
	FPS           int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Source captures frames from a single camera. It retains the last
// good frame so reads during a reconnect window can serve a stale copy
// instead of stalling the pipeline.
type Source struct {
	cfg  Config
	open openFunc

	mu        sync.Mutex
	dev       Device
	last      *types.Frame
	frameNum  uint64
	failures  int
	exhausted bool

	reconnects uint64
	staleReads uint64

	sleep func(time.Duration)
}

// New creates a source backed by an OpenCV capture device.
func New(cfg Config) *Source {
	return newSource(cfg, openVideoDevice)
}

func newSource(cfg Config, open openFunc) *Source {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	return &Source{cfg: cfg, open: open, sleep: time.Sleep}
}

// Open acquires the capture device. Failure here is a startup error.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, err := s.open(s.cfg)
	if err != nil {
		return err
	}
	s.dev = dev
	logger.Info("Camera", "Device %d opened (%dx%d @ %d fps)",
		s.cfg.DeviceIndex, s.cfg.Width, s.cfg.Height, s.cfg.FPS)
	return nil
}

// Read returns the freshest frame. On a device failure it waits the
// current backoff delay, attempts one reconnect, and on failure serves
// the last good frame marked stale. After MaxRetries consecutive
// failed attempts it returns ErrUnavailable. The caller owns the
// returned frame and must Close it.
func (s *Source) Read() (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return s.readExhausted()
	}

	if s.dev != nil {
		if frame, err := s.capture(); err == nil {
			return frame, nil
		}
	}

	// Read failed: one backoff-spaced reconnect attempt.
	attempt := s.failures + 1
	s.sleep(s.backoffDelay(attempt))

	if s.reconnect() {
		if frame, err := s.capture(); err == nil {
			logger.Info("Camera", "Reconnected on attempt %d", attempt)
			return frame, nil
		}
	}

	s.failures = attempt
	logger.Warn("Camera", "Reconnect attempt %d/%d failed", attempt, s.cfg.MaxRetries)

	if s.failures >= s.cfg.MaxRetries {
		s.exhausted = true
		logger.Error("Camera", "Reconnect budget exhausted (%d attempts)", s.cfg.MaxRetries)
		return nil, ErrUnavailable
	}
	return s.staleFrame()
}

// readExhausted keeps probing for the camera at the capped delay
// cadence without sleeping; the caller controls the retry pace.
func (s *Source) readExhausted() (*types.Frame, error) {
	if s.reconnect() {
		if frame, err := s.capture(); err == nil {
			logger.Info("Camera", "Device recovered after exhausted reconnect budget")
			return frame, nil
		}
	}
	return nil, ErrUnavailable
}

func (s *Source) capture() (*types.Frame, error) {
	frame, err := s.dev.Capture()
	if err != nil {
		return nil, err
	}

	s.frameNum++
	frame.Number = s.frameNum
	s.failures = 0
	s.exhausted = false

	if s.last != nil {
		s.last.Close()
	}
	s.last = frame.Clone()
	return frame, nil
}

func (s *Source) reconnect() bool {
	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	dev, err := s.open(s.cfg)
	if err != nil {
		return false
	}
	s.dev = dev
	s.reconnects++
	return true
}

func (s *Source) staleFrame() (*types.Frame, error) {
	if s.last == nil {
		// Nothing ever captured, nothing to fall back on.
		return nil, ErrUnavailable
	}
	s.staleReads++
	frame := s.last.Clone()
	frame.Stale = true
	frame.Timestamp = time.Now()
	return frame, nil
}

func (s *Source) backoffDelay(attempt int) time.Duration {
	delay := s.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.cfg.MaxRetryDelay {
			return s.cfg.MaxRetryDelay
		}
	}
	return delay
}

// Healthy reports whether the device is open and inside its budget.
func (s *Source) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil && !s.exhausted
}

// DeviceInfo describes the source for status endpoints.
type DeviceInfo struct {
	DeviceIndex int    `json:"device_index"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FPS         int    `json:"fps"`
	Healthy     bool   `json:"healthy"`
	FramesRead  uint64 `json:"frames_read"`
	Reconnects  uint64 `json:"reconnects"`
	StaleReads  uint64 `json:"stale_reads"`
}

// Info returns a point-in-time description of the source.
func (s *Source) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DeviceInfo{
		DeviceIndex: s.cfg.DeviceIndex,
		Width:       s.cfg.Width,
		Height:      s.cfg.Height,
		FPS:         s.cfg.FPS,
		Healthy:     s.dev != nil && !s.exhausted,
		FramesRead:  s.frameNum,
		Reconnects:  s.reconnects,
		StaleReads:  s.staleReads,
	}
}

// Close releases the device and the retained fallback frame.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		s.dev.Close()
		s.dev = nil
	}
	if s.last != nil {
		s.last.Close()
		s.last = nil
	}
}

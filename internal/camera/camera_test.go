package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// fakeDevice returns scripted capture results; once the script is
// consumed the last entry repeats. An empty script always succeeds.
type fakeDevice struct {
	results []error // nil means a successful capture
	pos     int
	closed  bool
}

func (d *fakeDevice) Capture() (*types.Frame, error) {
	var err error
	if len(d.results) > 0 {
		if d.pos >= len(d.results) {
			d.pos = len(d.results) - 1
		}
		err = d.results[d.pos]
		d.pos++
	}
	if err != nil {
		return nil, err
	}
	return &types.Frame{Width: 640, Height: 480, Timestamp: time.Now()}, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// testHarness wires a Source to scripted devices and records sleeps.
type testHarness struct {
	source    *Source
	sleeps    []time.Duration
	openCalls int
	openErrs  []error // per reopen attempt after the initial Open; nil opens a fresh device
	devices   []*fakeDevice
	script    func() *fakeDevice
}

func newHarness(t *testing.T, cfg Config, script func() *fakeDevice) *testHarness {
	t.Helper()
	h := &testHarness{script: script}
	h.source = newSource(cfg, func(Config) (Device, error) {
		h.openCalls++
		if n := h.openCalls - 1; n < len(h.openErrs) && h.openErrs[n] != nil {
			return nil, h.openErrs[n]
		}
		dev := h.script()
		h.devices = append(h.devices, dev)
		return dev, nil
	})
	h.source.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

func TestReadReturnsFreshFrames(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 5, RetryDelay: time.Second}, func() *fakeDevice {
		return &fakeDevice{}
	})
	require.NoError(t, h.source.Open())

	f1, err := h.source.Read()
	require.NoError(t, err)
	f2, err := h.source.Read()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), f1.Number)
	assert.Equal(t, uint64(2), f2.Number)
	assert.False(t, f1.Stale)
	assert.Empty(t, h.sleeps)
}

func TestReconnectBackoffServesStaleFrames(t *testing.T) {
	readErr := errors.New("read failed")
	deviceCount := 0
	h := newHarness(t, Config{MaxRetries: 5, RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second},
		func() *fakeDevice {
			deviceCount++
			switch deviceCount {
			case 1:
				// First device: one good frame, then permanent failure.
				return &fakeDevice{results: []error{nil, readErr}}
			case 2, 3:
				// Reopened devices that immediately fail to capture.
				return &fakeDevice{results: []error{readErr}}
			default:
				// Recovery.
				return &fakeDevice{}
			}
		})
	require.NoError(t, h.source.Open())

	fresh, err := h.source.Read()
	require.NoError(t, err)
	require.False(t, fresh.Stale)

	// Two failing reads: each waits its backoff, attempts one
	// reconnect, and serves the last good frame marked stale.
	for i := 0; i < 2; i++ {
		frame, err := h.source.Read()
		require.NoError(t, err, "read %d during reconnect window", i+1)
		assert.True(t, frame.Stale)
		assert.Equal(t, fresh.Number, frame.Number)
		frame.Close()
	}

	// Third failing read: the third backoff-spaced attempt lands on a
	// healthy device and the read comes back fresh.
	recovered, err := h.source.Read()
	require.NoError(t, err)
	assert.False(t, recovered.Stale)
	assert.Equal(t, fresh.Number+1, recovered.Number)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.sleeps)
	assert.Equal(t, 4, h.openCalls) // initial open plus three reconnect attempts
	assert.True(t, h.source.Healthy())
}

func TestExhaustedBudgetSignalsUnavailable(t *testing.T) {
	openErr := errors.New("no such device")
	h := newHarness(t, Config{MaxRetries: 3, RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second},
		func() *fakeDevice {
			return &fakeDevice{results: []error{nil, errors.New("read failed")}}
		})
	// Every reopen after the initial one fails outright.
	h.openErrs = []error{nil, openErr, openErr, openErr, openErr}
	require.NoError(t, h.source.Open())

	_, err := h.source.Read()
	require.NoError(t, err)

	// Two failing reads stay inside the budget and serve stale frames.
	for i := 0; i < 2; i++ {
		frame, err := h.source.Read()
		require.NoError(t, err)
		assert.True(t, frame.Stale)
		frame.Close()
	}

	// Third failure exhausts the budget.
	_, err = h.source.Read()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, h.source.Healthy())

	// Subsequent reads keep probing without sleeping.
	sleepsBefore := len(h.sleeps)
	_, err = h.source.Read()
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, sleepsBefore, len(h.sleeps))
}

func TestRecoveryAfterExhaustion(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2, RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second},
		func() *fakeDevice {
			return &fakeDevice{}
		})
	failingOpen := errors.New("device busy")
	h.openErrs = []error{nil, failingOpen, failingOpen}
	require.NoError(t, h.source.Open())

	_, err := h.source.Read()
	require.NoError(t, err)

	// Exhaust the budget (MaxRetries=2). The first device keeps failing
	// after its single good frame.
	h.devices[0].results = []error{errors.New("read failed")}
	h.devices[0].pos = 0

	frame, err := h.source.Read()
	require.NoError(t, err)
	assert.True(t, frame.Stale)
	frame.Close()

	_, err = h.source.Read()
	require.ErrorIs(t, err, ErrUnavailable)

	// Camera comes back: the next probe reopens and reads fresh.
	recovered, err := h.source.Read()
	require.NoError(t, err)
	assert.False(t, recovered.Stale)
	assert.True(t, h.source.Healthy())
}

func TestReadWithNoHistoryIsUnavailable(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3, RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second},
		func() *fakeDevice {
			return &fakeDevice{results: []error{errors.New("read failed")}}
		})
	require.NoError(t, h.source.Open())

	// No frame was ever captured, so there is nothing stale to serve.
	_, err := h.source.Read()
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestInfoReportsState(t *testing.T) {
	h := newHarness(t, Config{DeviceIndex: 2, Width: 1280, Height: 720, FPS: 30,
		MaxRetries: 5, RetryDelay: time.Second}, func() *fakeDevice {
		return &fakeDevice{}
	})
	require.NoError(t, h.source.Open())
	_, err := h.source.Read()
	require.NoError(t, err)

	info := h.source.Info()
	assert.Equal(t, 2, info.DeviceIndex)
	assert.Equal(t, uint64(1), info.FramesRead)
	assert.True(t, info.Healthy)

	h.source.Close()
	assert.True(t, h.devices[0].closed)
}

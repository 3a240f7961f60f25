package camera

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// Device is one open capture handle. The reconnect policy in Source
// works against this interface so it can be exercised without hardware.
type Device interface {
	Capture() (*types.Frame, error)
	Close() error
}

type openFunc func(cfg Config) (Device, error)

// videoDevice wraps a V4L2 capture handle via OpenCV.
type videoDevice struct {
	cap *gocv.VideoCapture
}

func openVideoDevice(cfg Config) (Device, error) {
	cap, err := gocv.OpenVideoCapture(cfg.DeviceIndex)
	if err != nil {
		return nil, fmt.Errorf("open device %d: %w", cfg.DeviceIndex, err)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	// Driver buffer depth 1 so every read surfaces the freshest frame
	// instead of a queued historical one.
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	return &videoDevice{cap: cap}, nil
}

func (d *videoDevice) Capture() (*types.Frame, error) {
	mat := gocv.NewMat()
	if !d.cap.Read(&mat) || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("device read failed")
	}
	return &types.Frame{
		Mat:       &mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: time.Now(),
	}, nil
}

func (d *videoDevice) Close() error {
	return d.cap.Close()
}

package detector

import (
	"errors"
	"strings"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

var (
	// ErrModelLoad is returned when the model cannot be loaded. Fatal.
	ErrModelLoad = errors.New("model load failed")

	// ErrInference marks a transient per-frame inference failure. The
	// pipeline treats the frame as having no detections and continues.
	ErrInference = errors.New("inference failed")

	// ErrResourceExhausted marks a device or allocation failure the
	// pipeline cannot recover from.
	ErrResourceExhausted = errors.New("inference resources exhausted")
)

// Detector runs the model on a single frame. An empty DetectionSet is
// a valid result. Implementations must not mutate the input frame.
type Detector interface {
	Detect(frame *types.Frame) (types.DetectionSet, error)
}

// Config defines the model and its thresholds.
type Config struct {
	ModelPath     string
	LibraryPath   string
	InputSize     int
	ConfThreshold float64
	IoUThreshold  float64
	Classes       []string
}

// classifyRunError splits session failures into the transient kind,
// handled per frame, and the exhausted kind, which stops the pipeline.
func classifyRunError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "memory") ||
		strings.Contains(msg, "alloc") ||
		strings.Contains(msg, "resource") {
		return ErrResourceExhausted
	}
	return ErrInference
}

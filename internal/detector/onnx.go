package detector

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// ONNXDetector runs a YOLO-family ONNX model through onnxruntime.
// Input is 1x3xSxS normalized RGB, output is 1x(4+classes)xanchors.
type ONNXDetector struct {
	mu  sync.Mutex
	cfg Config

	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	anchors      int

	inferences uint64
}

// NewONNX creates an unloaded detector. Call Load before Detect.
func NewONNX(cfg Config) *ONNXDetector {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	return &ONNXDetector{cfg: cfg}
}

// Load initializes the runtime and builds the session and tensors.
func (d *ONNXDetector) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.cfg.Classes) == 0 {
		return fmt.Errorf("%w: class list is required", ErrModelLoad)
	}

	if d.cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(d.cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: initialize runtime: %v", ErrModelLoad, err)
		}
	}

	size := int64(d.cfg.InputSize)
	inputShape := ort.NewShape(1, 3, size, size)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fmt.Errorf("%w: input tensor: %v", ErrModelLoad, err)
	}

	// Anchor count for the three YOLO detection strides.
	s := d.cfg.InputSize
	d.anchors = (s/8)*(s/8) + (s/16)*(s/16) + (s/32)*(s/32)

	outputShape := ort.NewShape(1, int64(4+len(d.cfg.Classes)), int64(d.anchors))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return fmt.Errorf("%w: output tensor: %v", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(d.cfg.ModelPath,
		[]string{"images"}, []string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, d.cfg.ModelPath, err)
	}

	d.inputTensor = inputTensor
	d.outputTensor = outputTensor
	d.session = session

	logger.Info("Detector", "Model loaded: %s (input %dx%d, %d classes)",
		d.cfg.ModelPath, d.cfg.InputSize, d.cfg.InputSize, len(d.cfg.Classes))
	return nil
}

// Warmup runs n dummy inferences so the first real frame does not pay
// runtime initialization latency.
func (d *ONNXDetector) Warmup(n int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return fmt.Errorf("%w: warmup before load", ErrModelLoad)
	}

	data := d.inputTensor.GetData()
	for i := range data {
		data[i] = 0
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		if err := d.session.Run(); err != nil {
			return fmt.Errorf("warmup run %d: %w", i+1, classifyRunError(err))
		}
	}
	logger.Info("Detector", "Warmup complete (%d runs in %v)", n, time.Since(start))
	return nil
}

// Detect runs inference on one frame and returns scaled, NMS-filtered
// detections. The frame is not mutated.
func (d *ONNXDetector) Detect(frame *types.Frame) (types.DetectionSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ds := types.DetectionSet{
		FrameNumber: frame.Number,
		Timestamp:   float64(frame.Timestamp.UnixNano()) / 1e9,
	}

	if d.session == nil {
		return ds, fmt.Errorf("%w: detect before load", ErrInference)
	}
	if frame.Mat == nil {
		return ds, fmt.Errorf("%w: frame has no pixel data", ErrInference)
	}

	img, err := frame.Mat.ToImage()
	if err != nil {
		return ds, fmt.Errorf("%w: convert frame: %v", ErrInference, err)
	}
	if err := prepareInput(img, d.inputTensor.GetData(), d.cfg.InputSize); err != nil {
		return ds, fmt.Errorf("%w: %v", ErrInference, err)
	}

	if err := d.session.Run(); err != nil {
		return ds, fmt.Errorf("%w: %v", classifyRunError(err), err)
	}
	d.inferences++

	ds.Detections = decodeOutputs(d.outputTensor.GetData(), d.anchors,
		d.cfg.Classes, d.cfg.ConfThreshold, d.cfg.IoUThreshold,
		frame.Width, frame.Height, d.cfg.InputSize)
	return ds, nil
}

// UpdateThresholds adjusts confidence and IoU filtering at runtime.
// Values outside (0,1] leave the current setting untouched.
func (d *ONNXDetector) UpdateThresholds(conf, iou float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conf > 0 && conf <= 1 {
		d.cfg.ConfThreshold = conf
	}
	if iou > 0 && iou <= 1 {
		d.cfg.IoUThreshold = iou
	}
	logger.Info("Detector", "Thresholds updated (conf=%.2f iou=%.2f)",
		d.cfg.ConfThreshold, d.cfg.IoUThreshold)
}

// ModelInfo describes the loaded model for status endpoints.
type ModelInfo struct {
	ModelPath     string   `json:"model_path"`
	InputSize     int      `json:"input_size"`
	ConfThreshold float64  `json:"conf_threshold"`
	IoUThreshold  float64  `json:"iou_threshold"`
	Classes       []string `json:"classes"`
	Loaded        bool     `json:"loaded"`
	Inferences    uint64   `json:"inferences"`
}

// Info returns a point-in-time description of the detector.
func (d *ONNXDetector) Info() ModelInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ModelInfo{
		ModelPath:     d.cfg.ModelPath,
		InputSize:     d.cfg.InputSize,
		ConfThreshold: d.cfg.ConfThreshold,
		IoUThreshold:  d.cfg.IoUThreshold,
		Classes:       d.cfg.Classes,
		Loaded:        d.session != nil,
		Inferences:    d.inferences,
	}
}

// Close destroys the session and tensors.
func (d *ONNXDetector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
}

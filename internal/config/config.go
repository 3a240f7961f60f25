package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that cannot be started with.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full appliance configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Inventory InventoryConfig `yaml:"inventory"`
	Sales     SalesConfig     `yaml:"sales"`
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Log       LogConfig       `yaml:"log"`
}

// CameraConfig configures the capture device and its recovery policy.
type CameraConfig struct {
	DeviceIndex        int     `yaml:"device_index"`
	Width              int     `yaml:"width"`
	Height             int     `yaml:"height"`
	FPS                int     `yaml:"fps"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelaySecs     float64 `yaml:"retry_delay_seconds"`
	MaxRetryDelaySecs  float64 `yaml:"max_retry_delay_seconds"`
}

// DetectorConfig configures the ONNX detection model.
type DetectorConfig struct {
	ModelPath     string   `yaml:"model_path"`
	LibraryPath   string   `yaml:"library_path"` // onnxruntime shared library, empty for system default
	InputSize     int      `yaml:"input_size"`
	ConfThreshold float64  `yaml:"conf_threshold"`
	IoUThreshold  float64  `yaml:"iou_threshold"`
	Classes       []string `yaml:"classes"`
	WarmupRuns    int      `yaml:"warmup_runs"`
}

// InventoryConfig configures temporal smoothing.
type InventoryConfig struct {
	Window int    `yaml:"window"`
	Method string `yaml:"method"`
}

// SalesConfig configures the product presence tracker.
type SalesConfig struct {
	VerificationSecs float64 `yaml:"verification_interval_seconds"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StreamConfig configures the broadcast pipeline.
type StreamConfig struct {
	TargetFPS          int     `yaml:"target_fps"`
	JPEGQuality        int     `yaml:"jpeg_quality"`
	StatsIntervalSecs  float64 `yaml:"stats_interval_seconds"`
	QueueCapacity      int     `yaml:"queue_capacity"`
	DegradedIntervalMs int     `yaml:"degraded_interval_ms"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			DeviceIndex:       0,
			Width:             1280,
			Height:            720,
			FPS:               30,
			MaxRetries:        5,
			RetryDelaySecs:    1,
			MaxRetryDelaySecs: 30,
		},
		Detector: DetectorConfig{
			ModelPath:     "models/pokebowl.onnx",
			InputSize:     640,
			ConfThreshold: 0.25,
			IoUThreshold:  0.45,
			WarmupRuns:    5,
			Classes: []string{
				"salmon_poke", "tuna_poke", "spicy_tuna_poke",
				"shrimp_poke", "veggie_poke", "chicken_teriyaki",
			},
		},
		Inventory: InventoryConfig{
			Window: 10,
			Method: "median",
		},
		Sales: SalesConfig{
			VerificationSecs: 5,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Stream: StreamConfig{
			TargetFPS:          30,
			JPEGQuality:        85,
			StatsIntervalSecs:  1,
			QueueCapacity:      2,
			DegradedIntervalMs: 500,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate fills zero values with defaults and rejects settings the
// pipeline cannot run with.
func (c *Config) Validate() error {
	def := Default()

	if c.Camera.Width <= 0 {
		c.Camera.Width = def.Camera.Width
	}
	if c.Camera.Height <= 0 {
		c.Camera.Height = def.Camera.Height
	}
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = def.Camera.FPS
	}
	if c.Camera.MaxRetries <= 0 {
		c.Camera.MaxRetries = def.Camera.MaxRetries
	}
	if c.Camera.RetryDelaySecs <= 0 {
		c.Camera.RetryDelaySecs = def.Camera.RetryDelaySecs
	}
	if c.Camera.MaxRetryDelaySecs < c.Camera.RetryDelaySecs {
		c.Camera.MaxRetryDelaySecs = def.Camera.MaxRetryDelaySecs
	}
	if c.Camera.DeviceIndex < 0 {
		return fmt.Errorf("%w: camera device_index %d", ErrInvalid, c.Camera.DeviceIndex)
	}

	if c.Detector.ModelPath == "" {
		return fmt.Errorf("%w: detector model_path is required", ErrInvalid)
	}
	if c.Detector.InputSize <= 0 {
		c.Detector.InputSize = def.Detector.InputSize
	}
	if c.Detector.ConfThreshold <= 0 || c.Detector.ConfThreshold > 1 {
		return fmt.Errorf("%w: conf_threshold %v outside (0,1]", ErrInvalid, c.Detector.ConfThreshold)
	}
	if c.Detector.IoUThreshold <= 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("%w: iou_threshold %v outside (0,1]", ErrInvalid, c.Detector.IoUThreshold)
	}
	if c.Detector.WarmupRuns < 0 {
		c.Detector.WarmupRuns = def.Detector.WarmupRuns
	}
	if len(c.Detector.Classes) == 0 {
		c.Detector.Classes = def.Detector.Classes
	}

	if c.Inventory.Window <= 0 {
		c.Inventory.Window = def.Inventory.Window
	}
	switch c.Inventory.Method {
	case "":
		c.Inventory.Method = def.Inventory.Method
	case "median", "mean", "mode":
	default:
		return fmt.Errorf("%w: smoothing method %q", ErrInvalid, c.Inventory.Method)
	}

	if c.Sales.VerificationSecs <= 0 {
		c.Sales.VerificationSecs = def.Sales.VerificationSecs
	}
	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	if c.Stream.TargetFPS <= 0 {
		c.Stream.TargetFPS = def.Stream.TargetFPS
	}
	if c.Stream.JPEGQuality <= 0 || c.Stream.JPEGQuality > 100 {
		c.Stream.JPEGQuality = def.Stream.JPEGQuality
	}
	if c.Stream.StatsIntervalSecs <= 0 {
		c.Stream.StatsIntervalSecs = def.Stream.StatsIntervalSecs
	}
	if c.Stream.QueueCapacity <= 0 {
		c.Stream.QueueCapacity = def.Stream.QueueCapacity
	}
	if c.Stream.DegradedIntervalMs <= 0 {
		c.Stream.DegradedIntervalMs = def.Stream.DegradedIntervalMs
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	return nil
}

// RetryDelay returns the initial reconnect backoff as a duration.
func (c CameraConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs * float64(time.Second))
}

// MaxRetryDelay returns the backoff cap as a duration.
func (c CameraConfig) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelaySecs * float64(time.Second))
}

// StatsInterval returns the stats broadcast period as a duration.
func (c StreamConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSecs * float64(time.Second))
}

// DegradedInterval returns the degraded-mode cycle period.
func (c StreamConfig) DegradedInterval() time.Duration {
	return time.Duration(c.DegradedIntervalMs) * time.Millisecond
}

// VerificationInterval returns the sale verification window.
func (c SalesConfig) VerificationInterval() time.Duration {
	return time.Duration(c.VerificationSecs * float64(time.Second))
}

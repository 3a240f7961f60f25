package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/broadcast"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/camera"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/config"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/detector"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/metrics"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/orchestrator"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/server"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/tracker"
)

var (
	// Command-line flags; set flags override the config file.
	configPath  = flag.String("config", "", "YAML config file path")
	httpAddr    = flag.String("http", "", "HTTP server address (e.g. :8080)")
	cameraIndex = flag.Int("camera", -1, "Camera device index")
	modelPath   = flag.String("model", "", "ONNX model path")
	targetFPS   = flag.Int("fps", 0, "Target pipeline FPS")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration rejected: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, cfg.Log.Color)

	logger.Info("Main", "Poke bowl inventory server starting...")
	logger.Info("Main", "Camera %d (%dx%d), model %s, listening on %s",
		cfg.Camera.DeviceIndex, cfg.Camera.Width, cfg.Camera.Height,
		cfg.Detector.ModelPath, cfg.Server.Addr)

	m := metrics.New()

	source := camera.New(camera.Config{
		DeviceIndex:   cfg.Camera.DeviceIndex,
		Width:         cfg.Camera.Width,
		Height:        cfg.Camera.Height,
		FPS:           cfg.Camera.FPS,
		MaxRetries:    cfg.Camera.MaxRetries,
		RetryDelay:    cfg.Camera.RetryDelay(),
		MaxRetryDelay: cfg.Camera.MaxRetryDelay(),
	})

	det := detector.NewONNX(detector.Config{
		ModelPath:     cfg.Detector.ModelPath,
		LibraryPath:   cfg.Detector.LibraryPath,
		InputSize:     cfg.Detector.InputSize,
		ConfThreshold: cfg.Detector.ConfThreshold,
		IoUThreshold:  cfg.Detector.IoUThreshold,
		Classes:       cfg.Detector.Classes,
	})

	trk := tracker.New(cfg.Inventory.Window, tracker.Method(cfg.Inventory.Method))
	sales := tracker.NewSalesTracker(cfg.Sales.VerificationInterval())
	hub := broadcast.NewHub(cfg.Stream.QueueCapacity)

	placeholder, err := detector.Placeholder(cfg.Camera.Width, cfg.Camera.Height, "NO SIGNAL")
	if err != nil {
		logger.Warn("Main", "Placeholder frame unavailable: %v", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		TargetFPS:        cfg.Stream.TargetFPS,
		StatsInterval:    cfg.Stream.StatsInterval(),
		DegradedInterval: cfg.Stream.DegradedInterval(),
		WarmupRuns:       cfg.Detector.WarmupRuns,
		Placeholder:      placeholder,
	}, source, det, detector.Renderer{Quality: cfg.Stream.JPEGQuality},
		trk, sales, hub, m)

	if err := orch.Init(); err != nil {
		logger.Error("Main", "Initialization failed: %v", err)
		os.Exit(1)
	}

	srv := server.New(hub, trk, sales, orch, source, det, m.Handler())
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info("Main", "HTTP server listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Main", "HTTP server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- orch.Run(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("Main", "Received %s, shutting down...", sig)
		cancel()
		if err := <-runDone; err != nil {
			exitCode = 1
		}
	case err := <-runDone:
		// Pipeline stopped on its own; only a fatal error does that.
		cancel()
		if err != nil {
			logger.Error("Main", "Pipeline stopped: %v", err)
			exitCode = 1
		}
	}

	hub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}

	orch.Close()
	logger.Info("Main", "Server stopped")
	os.Exit(exitCode)
}

// applyFlagOverrides copies explicitly set flags over the file config.
func applyFlagOverrides(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.Server.Addr = *httpAddr
		case "camera":
			cfg.Camera.DeviceIndex = *cameraIndex
		case "model":
			cfg.Detector.ModelPath = *modelPath
		case "fps":
			cfg.Stream.TargetFPS = *targetFPS
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})
}

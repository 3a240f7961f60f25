package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/broadcast"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/camera"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/detector"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/tracker"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// Pipeline is the read-only view of the orchestrator the HTTP surface
// needs.
type Pipeline interface {
	StateName() string
	Uptime() time.Duration
	Stats() types.StreamStats
}

// Camera surfaces capture device status.
type Camera interface {
	Info() camera.DeviceInfo
}

// Detector surfaces model status and runtime threshold tuning.
type Detector interface {
	Info() detector.ModelInfo
	UpdateThresholds(conf, iou float64)
}

// Server exposes the dashboard, the WebSocket endpoint, and the
// synchronous status APIs.
type Server struct {
	hub      *broadcast.Hub
	tracker  *tracker.Tracker
	sales    *tracker.SalesTracker
	pipeline Pipeline
	camera   Camera
	detector Detector
	metrics  http.Handler
}

// New builds the HTTP surface over the given components. camera,
// detector and metrics may be nil to omit their routes.
func New(hub *broadcast.Hub, trk *tracker.Tracker, sales *tracker.SalesTracker,
	pipeline Pipeline, cam Camera, det Detector, metrics http.Handler) *Server {
	return &Server{
		hub:      hub,
		tracker:  trk,
		sales:    sales,
		pipeline: pipeline,
		camera:   cam,
		detector: det,
		metrics:  metrics,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/stats", cors(s.handleStats))
	mux.HandleFunc("/api/inventory", cors(s.handleInventory))
	mux.HandleFunc("/api/sales", cors(s.handleSales))
	mux.HandleFunc("/api/tracker", cors(s.handleTracker))
	mux.HandleFunc("/api/tracker/reset", cors(s.handleTrackerReset))
	if s.camera != nil {
		mux.HandleFunc("/api/camera", cors(s.handleCamera))
	}
	if s.detector != nil {
		mux.HandleFunc("/api/detector", cors(s.handleDetector))
		mux.HandleFunc("/api/detector/thresholds", cors(s.handleThresholds))
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.pipeline.StateName()
	status := state
	switch state {
	case "RUNNING":
		status = "ok"
	case "DEGRADED":
		status = "degraded"
	}

	writeJSON(w, map[string]any{
		"status":             status,
		"uptime_seconds":     s.pipeline.Uptime().Seconds(),
		"active_connections": s.hub.ClientCount(),
		"frames_streamed":    s.hub.FramesStreamed(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pipeline.Stats()
	stats.ActiveConnections = s.hub.ClientCount()
	writeJSON(w, stats)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Inventory()
	if r.URL.Query().Get("sort") == "count" {
		snap = s.tracker.InventorySorted()
	}
	writeJSON(w, snap)
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"sales":         s.sales.Sales(0),
		"total_sales":   s.sales.TotalSales(),
		"active_timers": s.sales.ActiveTimers(time.Now()),
	})
}

func (s *Server) handleTracker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"inventory": s.tracker.GetStats(),
		"sales":     s.sales.GetStats(),
	})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.camera.Info())
}

func (s *Server) handleDetector(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.detector.Info())
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ConfThreshold float64 `json:"conf_threshold"`
		IoUThreshold  float64 `json:"iou_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	s.detector.UpdateThresholds(body.ConfThreshold, body.IoUThreshold)
	writeJSON(w, s.detector.Info())
}

func (s *Server) handleTrackerReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.tracker.Reset()
	s.sales.Reset()
	writeJSON(w, map[string]any{
		"status":   "reset",
		"reset_at": float64(time.Now().Unix()),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

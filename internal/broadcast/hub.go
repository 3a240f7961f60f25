package broadcast

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/internal/logger"
	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// Envelope is the wire format for every message pushed to viewers.
type Envelope struct {
	Type      string  `json:"type"` // "frame", "inventory" or "stats"
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp"`
}

const (
	TypeFrame     = "frame"
	TypeInventory = "inventory"
	TypeStats     = "stats"
)

// Hub fans out pre-serialized envelopes to viewer connections. Each
// client has a small bounded queue and its own writer goroutine, so a
// stalled connection only ever loses its own messages.
type Hub struct {
	queueCap int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[int]*client
	nextID  int
	closed  bool

	// Latest inventory and stats envelopes, used to prime new clients.
	latestInventory []byte
	latestStats     []byte

	framesStreamed atomic.Uint64
	dropped        atomic.Uint64
	totalClients   atomic.Uint64
}

// NewHub creates a hub with the given per-client queue capacity.
func NewHub(queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = 2
	}
	return &Hub{
		queueCap: queueCap,
		clients:  make(map[int]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Broadcast", "Upgrade failed: %v", err)
		return
	}
	h.Register(conn)
}

// Register adds an already-established connection to the hub and
// primes it with the latest inventory and stats.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}

	id := h.nextID
	h.nextID++
	c := newClient(id, conn, h.queueCap)
	h.clients[id] = c
	h.totalClients.Add(1)

	if h.latestInventory != nil {
		c.enqueue(h.latestInventory, &h.dropped)
	}
	if h.latestStats != nil {
		c.enqueue(h.latestStats, &h.dropped)
	}
	count := len(h.clients)
	h.mu.Unlock()

	logger.Info("Broadcast", "Client #%d connected (active: %d)", id, count)

	go c.writePump(h)
	go c.readPump(h)
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		logger.Info("Broadcast", "Client #%d disconnected (active: %d, dropped: %d)",
			id, count, c.droppedCount())
	}
}

// PublishFrame broadcasts an annotated JPEG as a base64 string.
func (h *Hub) PublishFrame(jpeg []byte) {
	payload, err := marshalEnvelope(TypeFrame, base64.StdEncoding.EncodeToString(jpeg))
	if err != nil {
		logger.Error("Broadcast", "Frame marshal error: %v", err)
		return
	}
	h.framesStreamed.Add(1)
	h.publish(payload, nil)
}

// PublishInventory broadcasts the smoothed inventory snapshot.
func (h *Hub) PublishInventory(snap types.InventorySnapshot) {
	payload, err := marshalEnvelope(TypeInventory, snap)
	if err != nil {
		logger.Error("Broadcast", "Inventory marshal error: %v", err)
		return
	}
	h.publish(payload, &h.latestInventory)
}

// PublishStats broadcasts pipeline statistics.
func (h *Hub) PublishStats(stats types.StreamStats) {
	payload, err := marshalEnvelope(TypeStats, stats)
	if err != nil {
		logger.Error("Broadcast", "Stats marshal error: %v", err)
		return
	}
	h.publish(payload, &h.latestStats)
}

func marshalEnvelope(msgType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

// publish serializes once and enqueues per client, never blocking on
// any of them.
func (h *Hub) publish(payload []byte, latest *[]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if latest != nil {
		*latest = payload
	}
	for _, c := range h.clients {
		c.enqueue(payload, &h.dropped)
	}
}

// ClientCount returns the number of active connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// FramesStreamed returns the number of frame envelopes published.
func (h *Hub) FramesStreamed() uint64 { return h.framesStreamed.Load() }

// Dropped returns the number of messages discarded to slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// TotalClients returns the number of connections ever accepted.
func (h *Hub) TotalClients() uint64 { return h.totalClients.Load() }

// CloseAll tears down every connection; used during shutdown. The hub
// accepts no further clients afterwards.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[int]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}
	if len(clients) > 0 {
		logger.Info("Broadcast", "Closed %d client(s)", len(clients))
	}
}

package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	maxReadLimit   = 512
	closeGraceWait = time.Second
)

// client is one viewer connection with its own bounded queue and
// writer goroutine.
type client struct {
	id   int
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newClient(id int, conn *websocket.Conn, queueCap int) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, queueCap),
	}
}

// enqueue adds a message without ever blocking the publisher. When the
// queue is full the oldest queued message is discarded so the client
// always converges on the most recent state.
func (c *client) enqueue(payload []byte, hubDropped *atomic.Uint64) {
	for {
		select {
		case c.send <- payload:
			return
		default:
		}
		select {
		case <-c.send:
			c.dropped.Add(1)
			hubDropped.Add(1)
		default:
		}
	}
}

func (c *client) droppedCount() uint64 { return c.dropped.Load() }

// shutdown closes the send queue exactly once; the writer goroutine
// finishes the remaining messages and closes the connection.
func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump drains the queue onto the wire. One stalled connection
// only ever delays its own pump.
func (c *client) writePump(h *Hub) {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c.id)
			// Drain until shutdown closes the channel.
			for range c.send {
			}
			return
		}
	}

	// Queue closed: polite close frame, then drop the connection.
	c.conn.SetWriteDeadline(time.Now().Add(closeGraceWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
}

// readPump consumes client input. Viewers have nothing to say; any
// read error, including malformed frames, costs only this connection.
func (c *client) readPump(h *Hub) {
	c.conn.SetReadLimit(maxReadLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c.id)
			return
		}
	}
}

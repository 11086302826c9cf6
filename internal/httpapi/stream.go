package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oi-tracker/internal/logger"
	"oi-tracker/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 90 * time.Second
	pingInterval = 45 * time.Second
	clientBuffer = 64
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

// streamMsg is the envelope for every frame sent to stream clients.
type streamMsg struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	out  chan streamMsg
	done chan struct{}
}

// Hub fans newly recorded snapshots out to websocket clients. Slow clients
// drop frames rather than block the refresh cycle.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Publish broadcasts snap to every connected client.
func (h *Hub) Publish(snap types.Snapshot) {
	h.broadcast(streamMsg{Type: "snapshot", Data: snap})
}

func (h *Hub) broadcast(m streamMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- m:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeWS upgrades the connection, greets the client with current() and
// then streams snapshots until the client goes away.
func (h *Hub) ServeWS(current func() map[string]*types.Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn(ctx, "Websocket upgrade failed", "error", err.Error())
			return
		}
		defer conn.Close()

		cl := &client{conn: conn, out: make(chan streamMsg, clientBuffer), done: make(chan struct{})}
		cl.out <- streamMsg{Type: "current", Data: current()}
		h.add(cl)
		logger.Debug(ctx, "Stream client connected", "remote", r.RemoteAddr)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			cl.writeLoop(ctx)
		}()

		cl.readLoop()

		h.remove(cl)
		close(cl.done)
		wg.Wait()
		logger.Debug(ctx, "Stream client disconnected", "remote", r.RemoteAddr)
	}
}

func (c *client) writeLoop(ctx context.Context) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case m := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				logger.Debug(ctx, "Stream write failed", "error", err.Error())
				c.conn.Close()
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop drains inbound frames so pongs and close frames are processed.
func (c *client) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

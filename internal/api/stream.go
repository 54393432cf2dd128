// Websocket stream of settlement summaries. Clients get a snapshot on
// connect and a fresh one every broadcast interval; slow readers are
// dropped rather than allowed to stall the hub.
package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tarrenhall/ashgrove/internal/economy"
	"github.com/tarrenhall/ashgrove/internal/engine"
)

const (
	broadcastEvery = 2 * time.Second
	writeWait      = 5 * time.Second
	maxStreamConns = 32
)

// summary is one stream frame.
type summary struct {
	Population int                   `json:"population"`
	Stats      engine.Stats          `json:"stats"`
	Currency   economy.CurrencyStats `json:"currency"`
	Events     []engine.Event        `json:"events"`
}

type streamHub struct {
	sim      *engine.Simulation
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{}
	once  sync.Once
}

func newStreamHub(simulation *engine.Simulation) *streamHub {
	return &streamHub{
		sim: simulation,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Observation stream, same trust level as the GET endpoints.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}
}

func (h *streamHub) handleConnect(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	full := len(h.conns) >= maxStreamConns
	h.mu.Unlock()
	if full {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	slog.Info("stream client connected", "remote", conn.RemoteAddr())

	// Reader goroutine: we never expect client frames, but reading is
	// what surfaces close and ping/pong handling.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.send(conn, h.frame())
}

func (h *streamHub) run() {
	ticker := time.NewTicker(broadcastEvery)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			frame := h.frame()
			h.mu.Lock()
			conns := make([]*websocket.Conn, 0, len(h.conns))
			for c := range h.conns {
				conns = append(conns, c)
			}
			h.mu.Unlock()
			for _, c := range conns {
				h.send(c, frame)
			}
		}
	}
}

func (h *streamHub) frame() summary {
	return summary{
		Population: h.sim.Roster.Living(),
		Stats:      h.sim.Stats(),
		Currency:   h.sim.Currency.Stats(),
		Events:     h.sim.Events(),
	}
}

func (h *streamHub) send(c *websocket.Conn, frame summary) {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteJSON(frame); err != nil {
		h.drop(c)
	}
}

func (h *streamHub) drop(c *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if present {
		c.Close()
		slog.Info("stream client disconnected", "remote", c.RemoteAddr())
	}
}

func (h *streamHub) stop() {
	h.once.Do(func() { close(h.done) })
	h.mu.Lock()
	for c := range h.conns {
		c.Close()
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}

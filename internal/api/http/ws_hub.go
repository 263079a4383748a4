package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"streamcast/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	// Clients only receive; anything beyond a pong is noise.
	wsReadLimit = 512
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// wsHub fans status updates out to connected WebSocket clients. Slow
// clients are dropped rather than allowed to stall the broadcast path.
type wsHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
}

type wsConn struct {
	hub  *wsHub
	sock *websocket.Conn
	out  chan []byte

	once sync.Once
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		logger: logger,
		conns:  make(map[*wsConn]struct{}),
	}
}

// attach takes ownership of an upgraded connection and starts its pumps.
func (h *wsHub) attach(sock *websocket.Conn) {
	c := &wsConn{hub: h, sock: sock, out: make(chan []byte, 256)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sock.Close()
		return
	}
	h.conns[c] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	metrics.WSClients.Set(float64(total))
	h.logger.Debug("ws client connected", slog.Int("total", total))

	go c.writeLoop()
	go c.readLoop()
}

// Broadcast serializes one typed event and queues it on every client.
// Clients whose queue is full are detached.
func (h *wsHub) Broadcast(kind string, data interface{}) {
	payload, err := json.Marshal(wsEvent{Type: kind, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}

	var stalled []*wsConn
	h.mu.Lock()
	for c := range h.conns {
		select {
		case c.out <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		c.detach()
	}
}

// Close disconnects every client and rejects future attaches.
func (h *wsHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for _, c := range conns {
		_ = c.sock.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			deadline,
		)
		c.detach()
	}
	h.logger.Debug("ws hub stopped, all clients disconnected")
}

func (c *wsConn) detach() {
	c.once.Do(func() {
		c.hub.mu.Lock()
		delete(c.hub.conns, c)
		total := len(c.hub.conns)
		c.hub.mu.Unlock()

		close(c.out)
		metrics.WSClients.Set(float64(total))
		c.hub.logger.Debug("ws client disconnected", slog.Int("total", total))
	})
}

func (c *wsConn) writeLoop() {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		c.sock.Close()
	}()
	for {
		select {
		case msg, ok := <-c.out:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) readLoop() {
	defer func() {
		c.detach()
		c.sock.Close()
	}()
	c.sock.SetReadLimit(wsReadLimit)
	_ = c.sock.SetReadDeadline(time.Now().Add(wsPongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.sock.ReadMessage(); err != nil {
			return
		}
	}
}

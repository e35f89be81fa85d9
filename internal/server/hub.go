package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Hub tracks connected WebSocket listeners and fans task events out to
// them. Delivery is best-effort: a listener that cannot keep up or has
// disconnected is dropped, never buffered for.
type Hub struct {
	logger *log.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Hub{
		logger: shared.WithLogger(logger, "component", "hub"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// handleWS upgrades the request and parks the connection until the peer
// goes away. Events arrive through Pump; the read loop exists only to
// notice disconnects.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The bridge is loopback-only; the usual origin check would
		// reject extension pages.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "err", err)
		return
	}

	h.add(conn)
	defer h.remove(conn)

	// Drain (and discard) client frames until the connection closes.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Pump forwards orchestrator events to all connected listeners until the
// channel closes or ctx is cancelled.
func (h *Hub) Pump(ctx context.Context, events <-chan tasks.TaskEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(ctx, event)
		}
	}
}

// broadcast writes one event to every listener, dropping the ones that fail.
func (h *Hub) broadcast(ctx context.Context, event tasks.TaskEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := wsjson.Write(writeCtx, conn, event)
		cancel()
		if err != nil {
			h.logger.Debug("dropping listener", "err", err)
			h.remove(conn)
			conn.Close(websocket.StatusGoingAway, "write failed")
		}
	}
}

// CloseAll disconnects every listener, used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "bridge shutting down")
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

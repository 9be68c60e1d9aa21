package streaming

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Hub upgrades incoming HTTP connections to WebSocket sessions,
// registers them under a mutex, and removes them exactly once on
// close. It is the WebSocket analogue of tcpsess.TcpAcceptor.
type Hub struct {
	upgrader      websocket.Upgrader
	handler       FrameHandler
	closeCallback CloseCallback
	timeout       time.Duration
	logger        *slog.Logger

	nextID atomic.Uint64

	mu       sync.RWMutex
	sessions map[uint64]*WebsocketSession
}

// NewHub builds a Hub that upgrades requests and dispatches inbound
// binary frames to handler. timeout governs the idle heartbeat/close
// state machine described in internal/streaming.WebsocketSession.
// Sessions of a Hub built by NewHub have no close callback.
func NewHub(handler FrameHandler, timeout time.Duration, logger *slog.Logger) *Hub {
	return NewHubWithCloseCallback(handler, nil, timeout, logger)
}

// NewHubWithCloseCallback is NewHub plus a websocket_close_callback:
// closeCallback, when non-nil, runs after a session is deregistered
// from the hub — e.g. the bridge broker uses it to release a closed
// session's subscriptions.
func NewHubWithCloseCallback(handler FrameHandler, closeCallback CloseCallback, timeout time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		handler:       handler,
		closeCallback: closeCallback,
		timeout:       timeout,
		logger:        logger.With("component", "ws-hub"),
		sessions:      make(map[uint64]*WebsocketSession),
	}
}

// Upgrade accepts a WebSocket upgrade on w/r, registers the resulting
// session, and returns it. Intended to be called from an
// internal/api route handler for the configured websocket path.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*WebsocketSession, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	id := h.nextID.Add(1)
	session := NewWebsocketSession(id, conn, h.timeout, h.handler, h.closeCallback, h.logger)
	session.onClose = h.deregister

	h.mu.Lock()
	h.sessions[id] = session
	h.mu.Unlock()

	h.logger.Info("session registered", "session_id", id, "total_sessions", h.countLocked())
	return session, nil
}

func (h *Hub) deregister(s *WebsocketSession) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
	h.logger.Info("session deregistered", "session_id", s.ID(), "total_sessions", h.countLocked())
}

func (h *Hub) countLocked() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SessionCount returns the number of currently registered sessions.
func (h *Hub) SessionCount() int {
	return h.countLocked()
}

// Broadcast sends data to every currently registered session.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	sessions := make([]*WebsocketSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Send(data)
	}
}

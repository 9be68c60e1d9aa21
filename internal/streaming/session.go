// Package streaming hosts the WebSocket half of the network bridge: a
// WebsocketSession per connection with the same single-in-flight-write
// outbound queue as the TCP bridge in internal/tcpsess, plus a
// heartbeat/idle-close state machine (internal/tcpsess has no heartbeat
// or idle timeout), and a Hub that tracks every live session and can
// broadcast to them.
package streaming

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Frame carries a binary payload in or out of a WebsocketSession. The
// bridge layers its own wire.Message schema on top of Data.
type Frame struct {
	Data []byte
}

// FrameHandler processes one inbound binary frame.
type FrameHandler func(data []byte, session *WebsocketSession)

// CloseCallback is invoked exactly once when a session closes, whether
// by heartbeat timeout, read error, or explicit Close.
type CloseCallback func(session *WebsocketSession)

type heartbeatState int32

const (
	stateActive heartbeatState = iota
	statePinged
	stateClosed
)

// WebsocketSession wraps one *websocket.Conn. It is accepted off a
// socket already handed off from HTTP after header processing (see
// internal/api's upgrade route).
type WebsocketSession struct {
	id     uint64
	conn   *websocket.Conn
	logger *slog.Logger

	handler       FrameHandler
	closeCallback CloseCallback
	onClose       func(*WebsocketSession) // hub deregistration, set by Hub.Upgrade

	timeout time.Duration

	state      atomic.Int32
	resetTimer chan struct{}

	outMu   sync.Mutex
	outbox  [][]byte
	writing bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebsocketSession wraps conn, starts its read loop and heartbeat
// loop, and returns immediately. Writes need no standing loop: Send
// starts a drain goroutine whenever the outbox becomes non-empty.
func NewWebsocketSession(id uint64, conn *websocket.Conn, timeout time.Duration, handler FrameHandler, closeCallback CloseCallback, logger *slog.Logger) *WebsocketSession {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &WebsocketSession{
		id:            id,
		conn:          conn,
		logger:        logger.With("component", "ws-session", "session_id", id),
		handler:       handler,
		closeCallback: closeCallback,
		timeout:       timeout,
		resetTimer:    make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		s.noteInbound()
		return nil
	})

	go s.heartbeatLoop()
	go s.readLoop()

	return s
}

// ID returns the session's assigned identifier.
func (s *WebsocketSession) ID() uint64 { return s.id }

// Send pushes data onto the outbound deque. If the deque was empty it
// initiates a write; at most one write is ever in flight and frames
// leave in the order they were pushed.
func (s *WebsocketSession) Send(data []byte) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, data)
	shouldStart := !s.writing
	if shouldStart {
		s.writing = true
	}
	s.outMu.Unlock()

	if shouldStart {
		go s.drainOutbox()
	}
}

func (s *WebsocketSession) drainOutbox() {
	for {
		s.outMu.Lock()
		if len(s.outbox) == 0 {
			s.writing = false
			s.outMu.Unlock()
			return
		}
		next := s.outbox[0]
		s.outbox = s.outbox[1:]
		s.outMu.Unlock()

		if err := s.conn.WriteMessage(websocket.BinaryMessage, next); err != nil {
			s.logger.Error("write failed", "error", err)
			s.shutdown()
			return
		}
	}
}

// Close terminates the session and transitions it to CLOSED. Idempotent.
func (s *WebsocketSession) Close() {
	s.shutdown()
}

func (s *WebsocketSession) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(stateClosed))
		_ = s.conn.Close()
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
		if s.closeCallback != nil {
			s.closeCallback(s)
		}
	})
}

func (s *WebsocketSession) noteInbound() {
	s.state.Store(int32(stateActive))
	select {
	case s.resetTimer <- struct{}{}:
	default:
	}
}

// heartbeatLoop implements the ACTIVE/PINGED/CLOSED state machine: a
// timer fires every `timeout`; its handling depends on the state it
// fires in, and any inbound frame resets the timer and forces ACTIVE.
func (s *WebsocketSession) heartbeatLoop() {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-s.resetTimer:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.timeout)

		case <-timer.C:
			switch heartbeatState(s.state.Load()) {
			case stateActive:
				s.state.Store(int32(statePinged))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.shutdown()
					return
				}
				timer.Reset(s.timeout)
			case statePinged:
				s.shutdown()
				return
			case stateClosed:
				return
			}
		}
	}
}

func (s *WebsocketSession) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown()
			return
		}

		s.noteInbound()

		if msgType != websocket.BinaryMessage {
			continue
		}
		if s.handler != nil {
			s.handler(data, s)
		}
	}
}

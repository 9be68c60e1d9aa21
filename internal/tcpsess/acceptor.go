package tcpsess

import (
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/OmarEhab007/busd/internal/wire"
)

// TcpAcceptor binds a listener and constructs a TcpSession for every
// accepted connection, tracking live sessions by id so callers can
// broadcast or enumerate them.
type TcpAcceptor struct {
	listener      net.Listener
	handler       Handler
	maxFrameBytes int
	logger        *slog.Logger

	// OnSessionClosed, if set, is invoked after a session is
	// deregistered, alongside the acceptor's own bookkeeping. Callers
	// that keep per-session state outside the acceptor (see
	// internal/bridge.Broker) use this to clean it up.
	OnSessionClosed func(sessionID uint64)

	nextID atomic.Uint64

	mu       sync.RWMutex
	sessions map[uint64]*TcpSession
}

// NewTcpAcceptor binds addr and returns an acceptor that is not yet
// accepting connections; call Serve to start the accept loop.
func NewTcpAcceptor(addr string, maxFrameBytes int, handler Handler, logger *slog.Logger) (*TcpAcceptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &TcpAcceptor{
		listener:      ln,
		handler:       handler,
		maxFrameBytes: maxFrameBytes,
		logger:        logger.With("component", "tcp-acceptor", "addr", addr),
		sessions:      make(map[uint64]*TcpSession),
	}, nil
}

// Addr returns the bound listener address.
func (a *TcpAcceptor) Addr() net.Addr { return a.listener.Addr() }

// Serve accepts connections until the listener is closed. It is
// intended to run on its own goroutine.
func (a *TcpAcceptor) Serve() error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return err
		}

		id := a.nextID.Add(1)
		var session *TcpSession
		session = NewTcpSession(id, conn, a.maxFrameBytes, a.handler, func(sessionID uint64, cause error) {
			a.deregister(sessionID)
			if cause != nil {
				a.logger.Info("session closed", "session_id", sessionID, "error", cause)
			} else {
				a.logger.Info("session closed", "session_id", sessionID)
			}
			if a.OnSessionClosed != nil {
				a.OnSessionClosed(sessionID)
			}
		}, a.logger)

		a.mu.Lock()
		a.sessions[id] = session
		a.mu.Unlock()

		a.logger.Info("session accepted", "session_id", id, "remote_addr", conn.RemoteAddr())
	}
}

// Close stops accepting new connections. It does not close existing
// sessions, and the acceptor offers no method that does; they stay open
// until they close themselves or a caller that tracks them closes them.
func (a *TcpAcceptor) Close() error {
	return a.listener.Close()
}

// Broadcast sends msg to every currently registered session.
func (a *TcpAcceptor) Broadcast(msg wire.Message) {
	a.mu.RLock()
	sessions := make([]*TcpSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.RUnlock()

	for _, s := range sessions {
		_ = s.Send(msg)
	}
}

// SessionCount returns the number of currently registered sessions.
func (a *TcpAcceptor) SessionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

func (a *TcpAcceptor) deregister(id uint64) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

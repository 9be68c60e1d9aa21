// Package tcpsess hosts a length-framed bidirectional byte stream on a
// single TCP connection. A TcpSession knows nothing about message
// semantics: framing always uses internal/wire's Encode/Decode (the
// codec is not pluggable), and callers supply only the handler that
// interprets each decoded Message, as internal/bridge does.
package tcpsess

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/OmarEhab007/busd/internal/wire"
)

// Handler processes one decoded frame on behalf of a session. It may
// call session.Send to reply.
type Handler func(msg wire.Message, session *TcpSession)

// ErrorCallback is invoked exactly once when a session terminates,
// whether due to I/O failure or a clean Close.
type ErrorCallback func(sessionID uint64, err error)

// TcpSession owns one net.Conn. Reads happen on a single goroutine that
// feeds Handler synchronously; writes go through an unbounded deque
// drained by at most one goroutine at a time, so Send never blocks the
// caller and frames are delivered in send order.
type TcpSession struct {
	id            uint64
	conn          net.Conn
	handler       Handler
	errorCallback ErrorCallback
	maxFrameBytes int
	logger        *slog.Logger

	outMu   sync.Mutex
	outbox  [][]byte
	writing bool

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

// NewTcpSession wraps conn with framing, starts its read loop, and
// returns immediately. id is a caller-assigned session identifier,
// typically from a monotonic counter or TcpAcceptor.
func NewTcpSession(id uint64, conn net.Conn, maxFrameBytes int, handler Handler, errorCallback ErrorCallback, logger *slog.Logger) *TcpSession {
	if logger == nil {
		logger = slog.Default()
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = wire.DefaultMaxFrameBytes
	}

	s := &TcpSession{
		id:            id,
		conn:          conn,
		handler:       handler,
		errorCallback: errorCallback,
		maxFrameBytes: maxFrameBytes,
		logger:        logger.With("component", "tcp-session", "session_id", id),
		done:          make(chan struct{}),
	}

	go s.readLoop()

	return s
}

// ID returns the session's assigned identifier.
func (s *TcpSession) ID() uint64 { return s.id }

// RemoteAddr returns the underlying connection's remote address.
func (s *TcpSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Send encodes msg and pushes it onto the outbound deque. Never blocks
// the caller; order is preserved relative to other Send calls. If the
// deque was empty this starts a write; at most one write is ever in
// flight for a session.
func (s *TcpSession) Send(msg wire.Message) error {
	if s.closed.Load() {
		return fmt.Errorf("tcpsess: session %d is closed", s.id)
	}

	frame, err := wire.Encode(msg, nil)
	if err != nil {
		return err
	}

	s.outMu.Lock()
	s.outbox = append(s.outbox, frame)
	shouldStart := !s.writing
	if shouldStart {
		s.writing = true
	}
	s.outMu.Unlock()

	if shouldStart {
		go s.drainOutbox()
	}
	return nil
}

// Close terminates the session. Idempotent.
func (s *TcpSession) Close() {
	s.closeTrigger(nil)
}

func (s *TcpSession) closeTrigger(cause error) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.Close()
		if s.errorCallback != nil {
			s.errorCallback(s.id, cause)
		}
	})
}

func (s *TcpSession) drainOutbox() {
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

		if _, err := s.conn.Write(next); err != nil {
			s.logger.Error("write failed", "error", err)
			s.closeTrigger(err)
			return
		}
	}
}

func (s *TcpSession) readLoop() {
	carry := make([]byte, 0, 4096)
	buf := make([]byte, 32*1024)

	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)

			for {
				msg, consumed, complete, decErr := wire.Decode(carry, s.maxFrameBytes)
				if decErr != nil {
					s.logger.Error("decode failed", "error", decErr)
					s.closeTrigger(decErr)
					return
				}
				if !complete {
					break
				}

				carry = carry[consumed:]
				if s.handler != nil {
					s.handler(msg, s)
				}
			}
		}

		if err != nil {
			s.closeTrigger(err)
			return
		}
	}
}

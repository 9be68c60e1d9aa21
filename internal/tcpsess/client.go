package tcpsess

import (
	"log/slog"
	"net"
)

// TcpClient dials a single remote TcpAcceptor and wraps the resulting
// connection in a TcpSession sharing this process's usual read/write
// loops.
type TcpClient struct {
	*TcpSession
}

// Dial connects to addr synchronously and starts the session's
// background loops. errorCallback is invoked once if the connection
// later fails or is closed.
func Dial(addr string, maxFrameBytes int, handler Handler, errorCallback ErrorCallback, logger *slog.Logger) (*TcpClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	session := NewTcpSession(1, conn, maxFrameBytes, handler, errorCallback, logger)
	return &TcpClient{TcpSession: session}, nil
}

package tcpsess

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/busd/internal/wire"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not satisfied within %s", timeout)
}

func TestAcceptorClientRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var serverReceived []wire.Type

	acceptor, err := NewTcpAcceptor("127.0.0.1:0", 0, func(msg wire.Message, session *TcpSession) {
		mu.Lock()
		serverReceived = append(serverReceived, msg.Type)
		mu.Unlock()

		if msg.Type == wire.TypeSub {
			_ = session.Send(wire.Message{Type: wire.TypeSubAck, Payload: []byte("ack")})
		}
	}, nil)
	require.NoError(t, err)
	defer acceptor.Close()

	go func() { _ = acceptor.Serve() }()

	var clientMu sync.Mutex
	var clientReceived []wire.Type

	client, err := Dial(acceptor.Addr().String(), 0, func(msg wire.Message, session *TcpSession) {
		clientMu.Lock()
		clientReceived = append(clientReceived, msg.Type)
		clientMu.Unlock()
	}, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(wire.Message{Type: wire.TypeSub, Payload: []byte("sub")}))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(serverReceived) == 1
	})
	waitFor(t, time.Second, func() bool {
		clientMu.Lock()
		defer clientMu.Unlock()
		return len(clientReceived) == 1
	})

	mu.Lock()
	assert.Equal(t, []wire.Type{wire.TypeSub}, serverReceived)
	mu.Unlock()

	clientMu.Lock()
	assert.Equal(t, []wire.Type{wire.TypeSubAck}, clientReceived)
	clientMu.Unlock()
}

func TestAcceptorDeregistersOnClientDisconnect(t *testing.T) {
	acceptor, err := NewTcpAcceptor("127.0.0.1:0", 0, func(msg wire.Message, session *TcpSession) {}, nil)
	require.NoError(t, err)
	defer acceptor.Close()

	go func() { _ = acceptor.Serve() }()

	client, err := Dial(acceptor.Addr().String(), 0, func(msg wire.Message, session *TcpSession) {}, nil, nil)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return acceptor.SessionCount() == 1 })

	client.Close()

	waitFor(t, time.Second, func() bool { return acceptor.SessionCount() == 0 })
}

func TestAcceptorBroadcast(t *testing.T) {
	acceptor, err := NewTcpAcceptor("127.0.0.1:0", 0, func(msg wire.Message, session *TcpSession) {}, nil)
	require.NoError(t, err)
	defer acceptor.Close()

	go func() { _ = acceptor.Serve() }()

	var mu sync.Mutex
	received := 0

	client, err := Dial(acceptor.Addr().String(), 0, func(msg wire.Message, session *TcpSession) {
		mu.Lock()
		received++
		mu.Unlock()
	}, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	waitFor(t, time.Second, func() bool { return acceptor.SessionCount() == 1 })

	acceptor.Broadcast(wire.Message{Type: wire.TypePub, Payload: []byte("hi")})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received == 1
	})
}

func TestSessionSendAfterCloseErrors(t *testing.T) {
	acceptor, err := NewTcpAcceptor("127.0.0.1:0", 0, func(msg wire.Message, session *TcpSession) {}, nil)
	require.NoError(t, err)
	defer acceptor.Close()

	go func() { _ = acceptor.Serve() }()

	client, err := Dial(acceptor.Addr().String(), 0, func(msg wire.Message, session *TcpSession) {}, nil, nil)
	require.NoError(t, err)

	client.Close()
	err = client.Send(wire.Message{Type: wire.TypeSub})
	assert.Error(t, err)
}

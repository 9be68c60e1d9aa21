package bridge

import (
	"github.com/OmarEhab007/busd/internal/streaming"
	"github.com/OmarEhab007/busd/internal/wire"
)

// wsSession adapts a *streaming.WebsocketSession to the Session
// interface Broker needs: a WebSocket binary frame carries exactly one
// Message, so Send/receive skip the TCP bridge's length-prefixed
// framing and use wire.EncodeBody/DecodeBody instead.
type wsSession struct {
	session *streaming.WebsocketSession
}

// wsSessionIDOffset separates WebSocket session ids from TcpSession ids
// in Broker's shared per-session bookkeeping map: both transports
// assign their own ids starting at 1, so without an offset a TCP
// session and a WebSocket session could collide on the same key.
const wsSessionIDOffset = uint64(1) << 32

func (w wsSession) ID() uint64 { return wsSessionIDOffset + w.session.ID() }

func (w wsSession) Send(msg wire.Message) error {
	body, err := wire.EncodeBody(msg)
	if err != nil {
		return err
	}
	w.session.Send(body)
	return nil
}

func (w wsSession) Close() { w.session.Close() }

// WebSocketHandler returns a streaming.FrameHandler that feeds inbound
// binary frames through the same SUB/UNSUB/PUB handling as the TCP
// bridge. Wire it into streaming.NewHubWithCloseCallback alongside
// WebSocketCloseCallback so a dropped WebSocket cleans up its
// subscriptions exactly like a dropped TcpSession.
func (b *Broker) WebSocketHandler() streaming.FrameHandler {
	return func(data []byte, session *streaming.WebsocketSession) {
		msg, err := wire.DecodeBody(data)
		if err != nil {
			b.logger.Error("malformed websocket frame", "error", err)
			session.Close()
			return
		}
		b.dispatch(msg, wsSession{session: session})
	}
}

// WebSocketCloseCallback returns a streaming.CloseCallback that releases
// every subscription owned by a closed WebSocket session, the
// websocket_close_callback config option's bridge use.
func (b *Broker) WebSocketCloseCallback() streaming.CloseCallback {
	return func(session *streaming.WebsocketSession) {
		b.deregisterSession(wsSession{session: session}.ID())
	}
}

// Package bridge re-exports a local DataBus over the network. Broker is
// the server side: it terminates TCP sessions from remote peers and
// translates SUB/UNSUB/PUB frames into local bus operations. BusClient
// is the client side: it exposes local subscribe/publish calls that are
// actually serviced by a remote Broker.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OmarEhab007/busd/internal/audit"
	"github.com/OmarEhab007/busd/internal/bus"
	"github.com/OmarEhab007/busd/internal/codec"
	"github.com/OmarEhab007/busd/internal/ratelimit"
	"github.com/OmarEhab007/busd/internal/tcpsess"
	"github.com/OmarEhab007/busd/internal/wire"
)

type subKey struct {
	topic          string
	subscriberName string
}

// Session is the surface Broker needs from a transport-specific session
// to forward frames back to a connected peer. Both *tcpsess.TcpSession
// and the WebsocketSession adapter in websocket.go satisfy it, so one
// Broker serves the TCP bridge and the WebSocket upgrade route with the
// same SUB/UNSUB/PUB handling.
type Session interface {
	ID() uint64
	Send(msg wire.Message) error
	Close()
}

// Broker owns a DataBus and a TcpAcceptor and wires remote frames to
// local bus operations. One Broker instance serves every connected
// session; per-session subscription bookkeeping lives in
// sessionState.
type Broker struct {
	databus *bus.DataBus
	codec   *codec.Codec
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	acceptor *tcpsess.TcpAcceptor
	audit    *audit.Log

	mu       sync.Mutex
	sessions map[uint64]*sessionState
}

// SetAuditLog attaches a subscription audit trail. When set, every
// successful SUB/UNSUB logs an event; failures are logged and otherwise
// ignored since the audit trail is a best-effort side log, never a
// prerequisite for serving the bus.
func (b *Broker) SetAuditLog(log *audit.Log) {
	b.audit = log
}

func (b *Broker) recordAudit(kind audit.EventKind, topic, subscriberName string) {
	if b.audit == nil {
		return
	}
	if err := b.audit.Record(context.Background(), audit.Event{
		Kind:           kind,
		Topic:          topic,
		SubscriberName: subscriberName,
	}); err != nil {
		b.logger.Error("failed to record audit event", "error", err, "kind", kind, "topic", topic)
	}
}

type sessionState struct {
	mu   sync.Mutex
	subs map[subKey]uint64 // (topic, subscriber_name) -> local bus subscriber id
}

// NewBroker constructs a Broker bound to addr, serving databus over the
// wire protocol in internal/wire. limiter may be nil, in which case
// SubPayload.max_rate is accepted but not enforced.
func NewBroker(addr string, maxFrameBytes int, databus *bus.DataBus, c *codec.Codec, limiter *ratelimit.Limiter, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bridge-broker")

	b := &Broker{
		databus:  databus,
		codec:    c,
		limiter:  limiter,
		logger:   logger,
		sessions: make(map[uint64]*sessionState),
	}

	acceptor, err := tcpsess.NewTcpAcceptor(addr, maxFrameBytes, b.handle, logger)
	if err != nil {
		return nil, err
	}
	acceptor.OnSessionClosed = b.deregisterSession
	b.acceptor = acceptor
	return b, nil
}

// Addr returns the bound listener address.
func (b *Broker) Addr() string { return b.acceptor.Addr().String() }

// Serve runs the accept loop; intended to run on its own goroutine.
func (b *Broker) Serve() error { return b.acceptor.Serve() }

// Close stops accepting new connections.
func (b *Broker) Close() error { return b.acceptor.Close() }

func (b *Broker) handle(msg wire.Message, session *tcpsess.TcpSession) {
	b.dispatch(msg, session)
}

func (b *Broker) dispatch(msg wire.Message, session Session) {
	switch msg.Type {
	case wire.TypeSub:
		b.handleSub(msg, session)
	case wire.TypeUnsub:
		b.handleUnsub(msg, session)
	case wire.TypePub:
		b.handlePub(msg)
	default:
		b.logger.Warn("unexpected frame type from remote peer", "type", msg.Type)
	}
}

func (b *Broker) stateFor(session Session) *sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[session.ID()]
	if !ok {
		st = &sessionState{subs: make(map[subKey]uint64)}
		b.sessions[session.ID()] = st
	}
	return st
}

func (b *Broker) handleSub(msg wire.Message, session Session) {
	var payload wire.SubPayload
	if err := unmarshalJSON(msg.Payload, &payload); err != nil {
		b.logger.Error("malformed SUB payload", "error", err)
		session.Close()
		return
	}

	st := b.stateFor(session)
	key := subKey{topic: payload.Topic, subscriberName: payload.SubscriberName}

	bridgeCallback := func(value any) {
		b.forward(session, payload, value)
	}

	id, err := b.databus.Subscribe(payload.Topic, payload.SubscriberName, bridgeCallback, bus.DefaultQueueSize)
	result := wire.AckSuccess
	if err != nil {
		result = wire.AckSubRepeated
	} else {
		st.mu.Lock()
		st.subs[key] = id
		st.mu.Unlock()

		if b.limiter != nil && payload.MaxRate > 0 {
			b.limiter.Configure(fmt.Sprintf("%s/%s", payload.Topic, payload.SubscriberName), payload.MaxRate)
		}

		b.recordAudit(audit.EventSubscribe, payload.Topic, payload.SubscriberName)
	}

	ack, encErr := marshalJSON(wire.SubAckPayload{Topic: payload.Topic, SubscriberName: payload.SubscriberName, Result: result})
	if encErr != nil {
		b.logger.Error("failed to encode SUB_ACK", "error", encErr)
		return
	}
	_ = session.Send(wire.Message{Type: wire.TypeSubAck, Payload: ack})
}

func (b *Broker) handleUnsub(msg wire.Message, session Session) {
	var payload wire.UnSubPayload
	if err := unmarshalJSON(msg.Payload, &payload); err != nil {
		b.logger.Error("malformed UNSUB payload", "error", err)
		session.Close()
		return
	}

	st := b.stateFor(session)
	key := subKey{topic: payload.Topic, subscriberName: payload.SubscriberName}

	removed := b.databus.Unsubscribe(payload.Topic, payload.SubscriberName)
	if removed {
		st.mu.Lock()
		delete(st.subs, key)
		st.mu.Unlock()
		b.recordAudit(audit.EventUnsubscribe, payload.Topic, payload.SubscriberName)
	}

	result := wire.AckUnsubNotFound
	if removed {
		result = wire.AckSuccess
	}

	ack, err := marshalJSON(wire.UnSubAckPayload{Topic: payload.Topic, SubscriberName: payload.SubscriberName, Result: result})
	if err != nil {
		b.logger.Error("failed to encode UNSUB_ACK", "error", err)
		return
	}
	_ = session.Send(wire.Message{Type: wire.TypeUnsubAck, Payload: ack})
}

func (b *Broker) handlePub(msg wire.Message) {
	var payload wire.PubPayload
	if err := unmarshalJSON(msg.Payload, &payload); err != nil {
		b.logger.Error("malformed PUB payload", "error", err)
		return
	}

	value, err := b.codec.Decode(payload.DataType, payload.Data, msg.Compressed)
	if err != nil {
		b.logger.Error("failed to decode PUB payload", "error", err, "data_type", payload.DataType)
		return
	}

	b.databus.Publish(payload.Topic, value)
}

func (b *Broker) forward(session Session, sub wire.SubPayload, value any) {
	if b.limiter != nil && sub.MaxRate > 0 {
		key := fmt.Sprintf("%s/%s", sub.Topic, sub.SubscriberName)
		allowed, err := b.limiter.Allow(context.Background(), key)
		if err != nil {
			b.logger.Error("rate limit check failed", "error", err)
		} else if !allowed {
			return
		}
	}

	data, err := b.codec.Encode(value, sub.Compressed)
	if err != nil {
		b.logger.Error("failed to encode PUB payload", "error", err)
		return
	}

	payload, err := marshalJSON(wire.PubPayload{
		Topic:    sub.Topic,
		DataType: b.codec.TypeName(value),
		Data:     data,
	})
	if err != nil {
		b.logger.Error("failed to encode PUB frame", "error", err)
		return
	}

	_ = session.Send(wire.Message{Compressed: sub.Compressed, Type: wire.TypePub, Payload: payload})
}

// deregisterSession unsubscribes everything a terminated session owned,
// so terminated peers leave no dangling subscribers. Wired as the
// TcpAcceptor's OnSessionClosed hook in NewBroker.
func (b *Broker) deregisterSession(sessionID uint64) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	keys := make([]subKey, 0, len(st.subs))
	for k := range st.subs {
		keys = append(keys, k)
	}
	st.mu.Unlock()

	for _, k := range keys {
		b.databus.Unsubscribe(k.topic, k.subscriberName)
	}
}

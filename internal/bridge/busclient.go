package bridge

import (
	"log/slog"
	"sync"

	"github.com/OmarEhab007/busd/internal/bus"
	"github.com/OmarEhab007/busd/internal/codec"
	"github.com/OmarEhab007/busd/internal/tcpsess"
	"github.com/OmarEhab007/busd/internal/wire"
)

// BusClient is the client side of the bridge: it maintains one
// TcpSession to a remote Broker and presents the same subscribe/publish
// surface as a local DataBus, forwarding operations across the wire.
type BusClient struct {
	codec  *codec.Codec
	logger *slog.Logger

	session *tcpsess.TcpSession

	mu      sync.Mutex
	workers map[string]*bus.SubscriberWorker // keyed by topic; one local subscription per topic
}

// Connect dials addr and returns a ready BusClient.
func Connect(addr string, maxFrameBytes int, c *codec.Codec, logger *slog.Logger) (*BusClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bridge-busclient")

	bc := &BusClient{
		codec:   c,
		logger:  logger,
		workers: make(map[string]*bus.SubscriberWorker),
	}

	client, err := tcpsess.Dial(addr, maxFrameBytes, bc.handle, nil, logger)
	if err != nil {
		return nil, err
	}
	bc.session = client.TcpSession
	return bc, nil
}

// Close terminates the underlying session.
func (bc *BusClient) Close() { bc.session.Close() }

// Subscribe records a local callback under topic, then sends a SUB
// frame to the broker. Duplicate local subscription for the same topic
// fails before any frame is sent, matching subscribe's ALREADY_SUBSCRIBED
// semantics without a network round-trip.
func (bc *BusClient) Subscribe(topic, name string, callback bus.Callback, maxQueueSize int, maxRate int32, compressed bool) error {
	bc.mu.Lock()
	if _, exists := bc.workers[topic]; exists {
		bc.mu.Unlock()
		return bus.ErrAlreadySubscribed
	}
	worker := bus.NewSubscriberWorker(topic, name, 0, callback, maxQueueSize, bc.logger)
	bc.workers[topic] = worker
	bc.mu.Unlock()

	payload, err := marshalJSON(wire.SubPayload{
		Topic:          topic,
		SubscriberName: name,
		MaxRate:        maxRate,
		Compressed:     compressed,
	})
	if err != nil {
		return err
	}

	return bc.session.Send(wire.Message{Type: wire.TypeSub, Payload: payload})
}

// Unsubscribe stops the local worker for topic and sends an UNSUB
// frame.
func (bc *BusClient) Unsubscribe(topic, name string) error {
	bc.mu.Lock()
	worker, exists := bc.workers[topic]
	if exists {
		delete(bc.workers, topic)
	}
	bc.mu.Unlock()

	if exists {
		worker.Stop()
	}

	payload, err := marshalJSON(wire.UnSubPayload{Topic: topic, SubscriberName: name})
	if err != nil {
		return err
	}
	return bc.session.Send(wire.Message{Type: wire.TypeUnsub, Payload: payload})
}

// Publish encodes value under the codec's registered type name and
// sends a PUB frame.
func (bc *BusClient) Publish(topic string, value any, compressed bool) error {
	data, err := bc.codec.Encode(value, compressed)
	if err != nil {
		return err
	}

	payload, err := marshalJSON(wire.PubPayload{
		Topic:    topic,
		DataType: bc.codec.TypeName(value),
		Data:     data,
	})
	if err != nil {
		return err
	}

	return bc.session.Send(wire.Message{Compressed: compressed, Type: wire.TypePub, Payload: payload})
}

func (bc *BusClient) handle(msg wire.Message, session *tcpsess.TcpSession) {
	switch msg.Type {
	case wire.TypePub:
		bc.handlePub(msg)
	case wire.TypeSubAck, wire.TypeUnsubAck:
		// Acknowledgements are only logged at debug level; a
		// SUB_REPEATED/UNSUB_NOT_FOUND result is not reported back to
		// the caller of Subscribe/Unsubscribe.
		bc.logger.Debug("ack received", "type", msg.Type)
	default:
		bc.logger.Warn("unexpected frame type from broker", "type", msg.Type)
	}
}

func (bc *BusClient) handlePub(msg wire.Message) {
	var payload wire.PubPayload
	if err := unmarshalJSON(msg.Payload, &payload); err != nil {
		bc.logger.Error("malformed PUB payload", "error", err)
		return
	}

	bc.mu.Lock()
	worker, ok := bc.workers[payload.Topic]
	bc.mu.Unlock()
	if !ok {
		return
	}

	value, err := bc.codec.Decode(payload.DataType, payload.Data, msg.Compressed)
	if err != nil {
		bc.logger.Error("failed to decode PUB payload", "error", err, "data_type", payload.DataType)
		return
	}

	worker.PutData(value)
}

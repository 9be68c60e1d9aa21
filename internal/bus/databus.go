package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DataBus is the process-wide registry mapping topic names to Publishers.
// Publishers are created lazily on first publish or subscribe for a topic
// and are never removed. The registry may be read concurrently with
// publish from any goroutine; its own mutex serializes mutations to the
// publisher map.
//
// DataBus is not a package-level singleton: callers construct one with
// New and thread it through their components explicitly, which keeps
// tests free of hidden global state. Applications that want process-wide
// singleton semantics may still hold a single *DataBus in a package
// variable; DataBus itself does not impose that.
type DataBus struct {
	logger *slog.Logger

	mu         sync.RWMutex
	publishers map[string]*Publisher
	idTopic    map[uint64]string

	nextID atomic.Uint64
}

// New creates an empty DataBus.
func New(logger *slog.Logger) *DataBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataBus{
		logger:     logger.With("component", "bus"),
		publishers: make(map[string]*Publisher),
		idTopic:    make(map[uint64]string),
	}
}

// Publish delivers payload to every subscriber of topic, lazily creating
// the Publisher if this is the first traffic the topic has seen.
func (b *DataBus) Publish(topic string, payload any) {
	b.publisherFor(topic).PutData(payload)
}

// Subscribe registers callback under (topic, name) with a bounded queue
// of maxQueueSize, lazily creating the Publisher if needed. Returns
// ErrAlreadySubscribed if name is already subscribed on topic.
func (b *DataBus) Subscribe(topic, name string, callback Callback, maxQueueSize int) (uint64, error) {
	id := b.nextID.Add(1)

	pub := b.publisherFor(topic)
	if _, err := pub.AddSubscriber(name, id, callback, maxQueueSize); err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.idTopic[id] = topic
	b.mu.Unlock()

	return id, nil
}

// Unsubscribe removes the subscriber matching (topic, name). Returns
// false if no such subscriber exists.
func (b *DataBus) Unsubscribe(topic, name string) bool {
	b.mu.RLock()
	pub, ok := b.publishers[topic]
	b.mu.RUnlock()
	if !ok {
		return false
	}

	id, hasID := pub.IDForName(name)
	removed := pub.RemoveSubscriber(name)
	if removed && hasID {
		b.mu.Lock()
		delete(b.idTopic, id)
		b.mu.Unlock()
	}
	return removed
}

// UnsubscribeByID removes the subscriber with the given process-unique
// subscriber id, for federations (like the TCP bridge) that only know
// the id. Returns false if unknown.
func (b *DataBus) UnsubscribeByID(id uint64) bool {
	b.mu.Lock()
	topic, ok := b.idTopic[id]
	if ok {
		delete(b.idTopic, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}

	b.mu.RLock()
	pub, ok := b.publishers[topic]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	return pub.RemoveSubscriberByID(id)
}

// Stats returns a snapshot of every topic currently known to the
// registry.
func (b *DataBus) Stats() []TopicStat {
	b.mu.RLock()
	pubs := make([]*Publisher, 0, len(b.publishers))
	for _, p := range b.publishers {
		pubs = append(pubs, p)
	}
	b.mu.RUnlock()

	stats := make([]TopicStat, 0, len(pubs))
	for _, p := range pubs {
		stats = append(stats, p.Stats())
	}
	return stats
}

// Shutdown stops every worker on every topic. Safe to call once at
// process teardown.
func (b *DataBus) Shutdown() {
	b.mu.RLock()
	pubs := make([]*Publisher, 0, len(b.publishers))
	for _, p := range b.publishers {
		pubs = append(pubs, p)
	}
	b.mu.RUnlock()

	for _, p := range pubs {
		p.Shutdown()
	}
}

func (b *DataBus) publisherFor(topic string) *Publisher {
	b.mu.RLock()
	pub, ok := b.publishers[topic]
	b.mu.RUnlock()
	if ok {
		return pub
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if pub, ok = b.publishers[topic]; ok {
		return pub
	}
	pub = NewPublisher(topic, b.logger)
	b.publishers[topic] = pub
	return pub
}

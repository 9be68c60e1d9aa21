package bus

import (
	"log/slog"
	"sync"
)

// TopicStat is a snapshot of one topic's statistics and all of its current
// subscribers' statistics.
type TopicStat struct {
	Topic        string
	PublishCount uint64
	Subscribers  []SubscriberStat
}

// Publisher holds the set of subscriber workers for one topic and fans a
// published message out to all of them. add/remove/putData share one
// mutex: the iteration during putData holds the lock, so a subscriber
// removed mid-publish never sees a message published after removal
// returned, and a newly added subscriber only sees messages published
// after add returned.
type Publisher struct {
	topic  string
	logger *slog.Logger

	mu           sync.Mutex
	workers      map[string]*SubscriberWorker
	byID         map[uint64]*SubscriberWorker
	publishCount uint64
}

// NewPublisher creates an empty Publisher for topic.
func NewPublisher(topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		topic:   topic,
		logger:  logger.With("component", "bus-publisher", "topic", topic),
		workers: make(map[string]*SubscriberWorker),
		byID:    make(map[uint64]*SubscriberWorker),
	}
}

// PutData increments the publish count and delivers payload to every
// worker currently subscribed to this topic.
func (p *Publisher) PutData(payload any) {
	p.mu.Lock()
	p.publishCount++
	targets := make([]*SubscriberWorker, 0, len(p.workers))
	for _, w := range p.workers {
		targets = append(targets, w)
	}
	for _, w := range targets {
		w.PutData(payload)
	}
	p.mu.Unlock()
}

// AddSubscriber registers a new subscriber under subscriberID, which the
// caller must have already allocated (process-unique, monotonic). Returns
// ErrAlreadySubscribed if name is already in use on this topic.
func (p *Publisher) AddSubscriber(name string, subscriberID uint64, callback Callback, maxQueueSize int) (*SubscriberWorker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.workers[name]; exists {
		return nil, ErrAlreadySubscribed
	}

	w := NewSubscriberWorker(p.topic, name, subscriberID, callback, maxQueueSize, p.logger)
	p.workers[name] = w
	p.byID[subscriberID] = w

	p.logger.Info("subscriber added", "subscriber_name", name, "subscriber_id", subscriberID)
	return w, nil
}

// IDForName returns the subscriber id currently registered under name, if
// any.
func (p *Publisher) IDForName(name string) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[name]
	if !ok {
		return 0, false
	}
	return w.subscriberID, true
}

// RemoveSubscriber removes the subscriber matching name. It stops the
// worker before returning so no further callbacks fire for that
// subscription after RemoveSubscriber returns. Returns false if name is
// unknown.
func (p *Publisher) RemoveSubscriber(name string) bool {
	p.mu.Lock()
	w, exists := p.workers[name]
	if exists {
		delete(p.workers, name)
		delete(p.byID, w.subscriberID)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}

	w.Stop()
	p.logger.Info("subscriber removed", "subscriber_name", name, "subscriber_id", w.subscriberID)
	return true
}

// RemoveSubscriberByID removes the subscriber matching subscriberID, for
// federations that only know the numeric id. Returns false if unknown.
func (p *Publisher) RemoveSubscriberByID(subscriberID uint64) bool {
	p.mu.Lock()
	w, exists := p.byID[subscriberID]
	if exists {
		delete(p.byID, subscriberID)
		delete(p.workers, w.subscriberName)
	}
	p.mu.Unlock()

	if !exists {
		return false
	}

	w.Stop()
	p.logger.Info("subscriber removed by id", "subscriber_name", w.subscriberName, "subscriber_id", subscriberID)
	return true
}

// Stats returns a snapshot of this topic's publish count and every
// current subscriber's statistics.
func (p *Publisher) Stats() TopicStat {
	p.mu.Lock()
	publishCount := p.publishCount
	workers := make([]*SubscriberWorker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	subs := make([]SubscriberStat, 0, len(workers))
	for _, w := range workers {
		subs = append(subs, w.Stats())
	}

	return TopicStat{
		Topic:        p.topic,
		PublishCount: publishCount,
		Subscribers:  subs,
	}
}

// Shutdown stops every worker currently registered on this topic.
func (p *Publisher) Shutdown() {
	p.mu.Lock()
	workers := make([]*SubscriberWorker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.workers = make(map[string]*SubscriberWorker)
	p.byID = make(map[uint64]*SubscriberWorker)
	p.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

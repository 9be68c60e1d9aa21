package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Callback is invoked once per delivered message. A callback that panics
// is recovered by the drain loop, logged, and does not stop the worker or
// propagate to the publisher.
type Callback func(payload any)

// SubscriberStat is a point-in-time snapshot of one subscriber's delivery
// statistics.
type SubscriberStat struct {
	Topic                string
	SubscriberName       string
	SubscriberID         uint64
	QueueSize            int
	MaxQueueSize         int
	IncomingCount        uint64
	SuccessCount         uint64
	DroppedCount         uint64
	LastCallbackSeconds  float64
	TotalCallbackSeconds float64
}

// SubscriberWorker owns one subscriber's queue and callback. It is created
// on subscribe, starts its drain loop immediately, and is torn down on
// unsubscribe or process shutdown.
type SubscriberWorker struct {
	topic          string
	subscriberName string
	subscriberID   uint64

	queue    *RingQueue[any]
	callback Callback
	logger   *slog.Logger

	running atomic.Bool

	statsMu              sync.Mutex
	successCount         uint64
	lastCallbackSeconds  float64
	totalCallbackSeconds float64

	done     chan struct{}
	stopOnce sync.Once
}

// NewSubscriberWorker constructs a worker and immediately starts its
// background drain loop.
func NewSubscriberWorker(topic, subscriberName string, subscriberID uint64, callback Callback, maxQueueSize int, logger *slog.Logger) *SubscriberWorker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &SubscriberWorker{
		topic:          topic,
		subscriberName: subscriberName,
		subscriberID:   subscriberID,
		queue:          NewRingQueue[any](maxQueueSize),
		callback:       callback,
		logger:         logger.With("component", "bus-worker", "topic", topic, "subscriber_name", subscriberName, "subscriber_id", subscriberID),
		done:           make(chan struct{}),
	}
	w.running.Store(true)
	go w.run()
	return w
}

// PutData enqueues payload for delivery. Non-blocking; equivalent to
// queue.Put, so it is subject to the drop-oldest overflow policy.
func (w *SubscriberWorker) PutData(payload any) {
	w.queue.Put(payload)
}

// Stop halts the worker: it stops accepting new deliveries, unblocks a
// pending Take, and waits for at most one in-flight callback to finish
// before returning. Idempotent.
func (w *SubscriberWorker) Stop() {
	w.stopOnce.Do(func() {
		w.running.Store(false)
		w.queue.Shutdown()
		<-w.done
	})
}

// Stats returns a snapshot of this worker's statistics.
func (w *SubscriberWorker) Stats() SubscriberStat {
	w.statsMu.Lock()
	success := w.successCount
	last := w.lastCallbackSeconds
	total := w.totalCallbackSeconds
	w.statsMu.Unlock()

	return SubscriberStat{
		Topic:                w.topic,
		SubscriberName:       w.subscriberName,
		SubscriberID:         w.subscriberID,
		QueueSize:            w.queue.Size(),
		MaxQueueSize:         w.queue.MaxSize(),
		IncomingCount:        w.queue.IncomingCount(),
		SuccessCount:         success,
		DroppedCount:         w.queue.DroppedCount(),
		LastCallbackSeconds:  last,
		TotalCallbackSeconds: total,
	}
}

// run is the drain loop: it takes one payload at a time and invokes the
// callback, observing the running flag between items so Stop bounds
// shutdown latency to a single in-flight callback.
func (w *SubscriberWorker) run() {
	defer close(w.done)

	for {
		payload, ok := w.queue.Take()
		if !ok {
			return
		}
		if !w.running.Load() {
			return
		}

		w.invoke(payload)
	}
}

func (w *SubscriberWorker) invoke(payload any) {
	start := time.Now()
	succeeded := true

	func() {
		defer func() {
			if r := recover(); r != nil {
				succeeded = false
				w.logger.Error("callback panicked", "error", r)
			}
		}()
		w.callback(payload)
	}()

	elapsed := time.Since(start).Seconds()

	w.statsMu.Lock()
	if succeeded {
		w.successCount++
	}
	w.lastCallbackSeconds = elapsed
	w.totalCallbackSeconds += elapsed
	w.statsMu.Unlock()
}

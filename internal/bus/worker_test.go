package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestSubscriberWorkerDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	w := NewSubscriberWorker("topic", "sub", 1, func(payload any) {
		mu.Lock()
		got = append(got, payload.(int))
		mu.Unlock()
	}, 8, nil)
	defer w.Stop()

	for i := 1; i <= 5; i++ {
		w.PutData(i)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestSubscriberWorkerStatsTrackSuccessAndDrop(t *testing.T) {
	release := make(chan struct{})
	var processed atomic.Int32

	w := NewSubscriberWorker("topic", "sub", 1, func(payload any) {
		<-release
		processed.Add(1)
	}, 1, nil)
	defer w.Stop()

	w.PutData("first")
	waitFor(t, time.Second, func() bool { return w.Stats().QueueSize == 0 || processed.Load() > 0 })

	w.PutData("second")
	w.PutData("third")

	close(release)
	waitFor(t, time.Second, func() bool { return w.Stats().SuccessCount >= 2 })

	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.IncomingCount, uint64(3))
	assert.GreaterOrEqual(t, stats.DroppedCount, uint64(1))
}

func TestSubscriberWorkerRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32

	w := NewSubscriberWorker("topic", "sub", 1, func(payload any) {
		calls.Add(1)
		if payload.(string) == "boom" {
			panic("callback exploded")
		}
	}, 8, nil)
	defer w.Stop()

	w.PutData("boom")
	w.PutData("after")

	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.SuccessCount)
	assert.GreaterOrEqual(t, stats.TotalCallbackSeconds, float64(0))
}

func TestSubscriberWorkerStopIsIdempotent(t *testing.T) {
	w := NewSubscriberWorker("topic", "sub", 1, func(payload any) {}, 4, nil)
	w.Stop()
	w.Stop()
}

package pipeline

import (
	"sync"

	"alprd/internal/config"
	"alprd/internal/model"
)

// QueuedWrite is one admitted detection waiting for the storage writer.
// The image path is derived at write time from the detection itself.
type QueuedWrite struct {
	Detection model.Detection
}

// EnqueueResult reports how the queue handled an Enqueue call.
type EnqueueResult int

const (
	// EnqueueAccepted means the write was admitted with room to spare.
	EnqueueAccepted EnqueueResult = iota
	// EnqueueEvictedOldest means the write was admitted by evicting the
	// oldest pending write (drop-oldest policy).
	EnqueueEvictedOldest
	// EnqueueDroppedNew means the write was rejected because the queue is
	// full (drop-new policy).
	EnqueueDroppedNew
	// EnqueueClosed means the queue no longer accepts writes.
	EnqueueClosed
)

// Queue is the bounded FIFO handoff between detection producers and the
// single storage writer. Enqueue never blocks; DequeueBlocking suspends the
// writer when the queue is empty.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	items    []QueuedWrite // ring buffer
	head     int
	count    int
	capacity int
	policy   config.BackpressurePolicy
	closed   bool
}

// NewQueue creates a queue with the given capacity and backpressure policy.
func NewQueue(capacity int, policy config.BackpressurePolicy) *Queue {
	q := &Queue{
		items:    make([]QueuedWrite, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue admits a write according to the backpressure policy. It only ever
// holds the queue mutex for constant-time work, so producers are never
// throttled by storage latency.
func (q *Queue) Enqueue(w QueuedWrite) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return EnqueueClosed
	}

	result := EnqueueAccepted
	if q.count == q.capacity {
		if q.policy == config.DropNew {
			return EnqueueDroppedNew
		}
		// drop-oldest: a fresh detection is worth more than a stale one
		q.head = (q.head + 1) % q.capacity
		q.count--
		result = EnqueueEvictedOldest
	}

	q.items[(q.head+q.count)%q.capacity] = w
	q.count++
	q.notEmpty.Signal()
	return result
}

// DequeueBlocking removes the oldest pending write, suspending the caller
// while the queue is empty. It returns ok=false once the queue is closed and
// fully drained.
func (q *Queue) DequeueBlocking() (QueuedWrite, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	if q.count == 0 {
		return QueuedWrite{}, false
	}

	w := q.items[q.head]
	q.items[q.head] = QueuedWrite{} // release the image payload
	q.head = (q.head + 1) % q.capacity
	q.count--
	return w, true
}

// Close stops admission. Pending writes remain dequeueable so the writer can
// drain them during shutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}

// DiscardPending empties the queue and returns the number of writes thrown
// away. Used to abandon the drain once the shutdown grace period expires.
func (q *Queue) DiscardPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	for i := 0; i < q.count; i++ {
		q.items[(q.head+i)%q.capacity] = QueuedWrite{}
	}
	q.head = 0
	q.count = 0
	q.notEmpty.Broadcast()
	return n
}

// Len returns the number of pending writes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

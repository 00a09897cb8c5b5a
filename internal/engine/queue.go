package engine

import "sync"

// burst is the set of lines framed from one transport read.
type burst struct {
	seq   int64
	lines []string
}

// burstQueue is a thread-safe FIFO queue of bursts.
//
// The queue is unbounded so a slow store never blocks the transport
// reader; a blocked reader would let the remote shell's buffer overflow.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type burstQueue struct {
	mu     sync.Mutex
	bursts []burst
	closed bool
	signal chan struct{} // Signals burst availability (buffered, size 1)
}

// newBurstQueue creates an empty burst queue.
func newBurstQueue() *burstQueue {
	return &burstQueue{
		bursts: make([]burst, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a burst to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *burstQueue) Enqueue(b burst) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.bursts = append(q.bursts, b)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (burst{}, false) if the queue is empty.
func (q *burstQueue) TryDequeue() (burst, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.bursts) == 0 {
		return burst{}, false
	}

	b := q.bursts[0]

	// Release the line slice held by the vacated slot.
	q.bursts[0] = burst{}

	if len(q.bursts) == 1 {
		q.bursts = q.bursts[:0]
	} else {
		q.bursts = q.bursts[1:]
	}

	return b, true
}

// Wait returns a channel that signals when bursts may be available.
// The channel is closed when the queue is closed.
func (q *burstQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *burstQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.bursts)
}

// Drained reports whether the queue is closed and empty.
func (q *burstQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.bursts) == 0
}

// Close signals that no more bursts will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *burstQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

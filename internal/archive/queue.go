package archive

import "sync"

// queue is a bounded FIFO ring. Push never blocks.
type queue[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int // read position
	count  int
	closed bool

	// ready has capacity 1 and is signalled when items arrive.
	ready chan struct{}
}

func newQueue[T any](capacity int) *queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &queue[T]{
		buf:   make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// push appends item. It returns false when the queue is full or closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	if q.closed || q.count == len(q.buf) {
		q.mu.Unlock()
		return false
	}
	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = item
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// drain removes up to max items (all if max <= 0) in FIFO order.
func (q *queue[T]) drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = zero // Clear reference for GC
		q.head = (q.head + 1) % len(q.buf)
	}
	q.count -= n
	return out
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// close rejects further pushes. Queued items can still be drained.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

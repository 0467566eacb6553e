package events

import "sync"

// queue is an unbounded FIFO drained into out by its own goroutine, so a
// publisher never waits on a slow subscriber.
type queue[T any] struct {
	mu       sync.Mutex
	items    []T
	finished bool
	wake     chan struct{}
	out      chan T
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
}

func (q *queue[T]) push(item T) {
	q.mu.Lock()
	if q.finished {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
}

// finish lets the pump deliver what is queued and then close out.
func (q *queue[T]) finish() {
	q.mu.Lock()
	q.finished = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run stops early, dropping queued items, when done is closed.
func (q *queue[T]) run(done <-chan struct{}) {
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			finished := q.finished
			q.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-q.wake:
			case <-done:
				return
			}
			continue
		}
		var zero T
		item := q.items[0]
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- item:
		case <-done:
			return
		}
	}
}

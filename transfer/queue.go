package transfer

import (
	"context"
	"sync"
)

// jobQueue is an unbounded FIFO of job ids with a front-insertion path
// for retries. Pop is a blocking dequeue with cancellation, so an idle
// worker never polls.
type jobQueue struct {
	mu     sync.Mutex
	ids    []string
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{signal: make(chan struct{}, 1)}
}

// Push appends a job id to the back of the queue.
func (q *jobQueue) Push(id string) {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	q.wake()
}

// PushFront inserts a job id at the head of the queue. Retries are
// prioritized over new work.
func (q *jobQueue) PushFront(id string) {
	q.mu.Lock()
	q.ids = append([]string{id}, q.ids...)
	q.mu.Unlock()
	q.wake()
}

// Pop blocks until a job id is available or the context is cancelled.
func (q *jobQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids = q.ids[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.signal:
		}
	}
}

// Len returns the number of queued job ids.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *jobQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

package service

import (
	"context"
	"sync"
)

// OrderQueue is an unbounded FIFO of order ids with many producers and a
// single consumer. Enqueue never blocks.
type OrderQueue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

func NewOrderQueue() *OrderQueue {
	return &OrderQueue{ready: make(chan struct{}, 1)}
}

func (q *OrderQueue) Enqueue(orderID string) {
	q.mu.Lock()
	q.items = append(q.items, orderID)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value after one or more Enqueue calls. The consumer must
// drain with TryDequeue until it reports false.
func (q *OrderQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *OrderQueue) TryDequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// drop the consumed prefix of the backing array
		q.items = nil
	}
	return id, true
}

// Dequeue blocks until an order id is available or ctx is done.
func (q *OrderQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if id, ok := q.TryDequeue(); ok {
			return id, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (q *OrderQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

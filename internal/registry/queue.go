package registry

import (
	"context"
	"sync"

	"github.com/darkrelay/darkrelay/pkg/protocol"
)

// Queue is an unbounded FIFO of outbound messages with a single consumer,
// the connection's writer goroutine. A slow reader grows its own queue and
// nothing else; pushes never block and are never dropped while the queue
// is open.
type Queue struct {
	mu     sync.Mutex
	items  []protocol.ServerMessage
	wake   chan struct{}
	closed bool
}

func newQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Push appends msg and reports whether the queue was still open.
func (q *Queue) Push(msg protocol.ServerMessage) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a message is available, the context is cancelled, or the
// queue is closed and drained. A closed queue keeps yielding its remaining
// items so the writer can flush before the connection drops.
func (q *Queue) Pop(ctx context.Context) (protocol.ServerMessage, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.wake:
		}
	}
}

// Close rejects further pushes. Queued messages stay poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

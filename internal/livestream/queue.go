package livestream

import (
	"context"
	"sync"
)

// payloadQueue is an unbounded FIFO of payloads with a single blocking reader.
// push never blocks, so one slow viewer cannot stall a broadcast.
type payloadQueue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	ready  chan struct{} // capacity 1, signalled on push
	done   chan struct{} // closed by close
}

func newPayloadQueue() *payloadQueue {
	return &payloadQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// push appends p. It reports false if the queue has been closed.
func (q *payloadQueue) push(p []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, p)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop waits for the next payload. ok is false once the queue is closed.
func (q *payloadQueue) pop(ctx context.Context) (p []byte, ok bool, err error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false, nil
		}
		if len(q.items) > 0 {
			p = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return p, true, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// close wakes any blocked reader and drops the backlog.
func (q *payloadQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}

func (q *payloadQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

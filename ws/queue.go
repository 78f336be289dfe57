// ws/queue.go
package ws

import "sync"

// sendQueue is the unbounded outbound FIFO. A frame leaves the queue only
// once it has been written to the socket; a failed write goes back to the
// front, so queued sends survive reconnects in order.
type sendQueue struct {
	mu    sync.Mutex
	items [][]byte
	wake  chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{wake: make(chan struct{}, 1)}
}

func (q *sendQueue) Push(frame []byte) {
	q.mu.Lock()
	q.items = append(q.items, frame)
	q.mu.Unlock()
	q.signal()
}

// PushFront re-enqueues an in-flight frame after a failed send.
func (q *sendQueue) PushFront(frame []byte) {
	q.mu.Lock()
	q.items = append([][]byte{frame}, q.items...)
	q.mu.Unlock()
	q.signal()
}

// Pop blocks until a frame is available or done is closed. The second
// return is false when done fired.
func (q *sendQueue) Pop(done <-chan struct{}) ([]byte, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			frame := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return frame, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-done:
			return nil, false
		}
	}
}

func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *sendQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

package pipeline

import "sync"

// Queue is the unbounded FIFO between the capture callback and the
// assembler. Enqueue never waits on the consumer; the only contention is a
// short mutex-guarded append. Each enqueue signals Ready.
type Queue struct {
	mu    sync.Mutex
	items []Block
	head  int
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Enqueue(b Block) {
	q.mu.Lock()
	q.items = append(q.items, b)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryDequeue returns the oldest block, or ok == false when empty.
func (q *Queue) TryDequeue() (b Block, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.items) {
		return Block{}, false
	}
	b = q.items[q.head]
	q.items[q.head] = Block{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return b, true
}

// DrainTo moves every queued block to fn in FIFO order and returns the count.
// Blocks enqueued while draining are included.
func (q *Queue) DrainTo(fn func(Block)) int {
	n := 0
	for {
		b, ok := q.TryDequeue()
		if !ok {
			return n
		}
		fn(b)
		n++
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Ready receives a value after at least one Enqueue since the last receive.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

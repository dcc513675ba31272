package pools

import (
	"errors"
	"sync"
)

var (
	// ErrQueueClosed is returned by Push after Close.
	ErrQueueClosed = errors.New("task queue closed")
)

// Task is a unit of deferred work. It is executed by exactly one worker.
type Task func()

// TaskQueue is an unbounded multi-producer/multi-consumer FIFO of tasks.
//
// Push never waits for capacity. Pop blocks until a task is available or the
// queue has been closed and fully drained.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Task
	head   int
	closed bool
}

// NewTaskQueue creates an empty open queue
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task to the tail of the queue.
func (q *TaskQueue) Push(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, task)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// Pop removes the task at the head of the queue, waiting for one if the
// queue is empty. ok is false once the queue is closed and empty.
func (q *TaskQueue) Pop() (task Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.head == len(q.items) && !q.closed {
		q.cond.Wait()
	}
	if q.head == len(q.items) {
		return nil, false
	}

	task = q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return task, true
}

// Close stops intake. Tasks already queued are still handed out by Pop.
// Closing twice is a no-op.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cond.Broadcast()
}

// Closed reports whether Close has been called
func (q *TaskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued tasks not yet popped.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

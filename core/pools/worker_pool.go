package pools

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolStarted    = errors.New("worker pool already started")
	ErrPoolNotStarted = errors.New("worker pool not started")
	ErrPoolClosed     = errors.New("worker pool already closed")
)

// WorkerPool runs a fixed number of workers that consume one shared
// TaskQueue. The member set never changes after Start.
type WorkerPool struct {
	numWorkers int
	queue      *TaskQueue
	wg         sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool

	// onPanic receives the value recovered from a failing task
	onPanic func(recovered any)

	// Statistics
	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksFailed    atomic.Uint64
		busy           atomic.Int64
	}
}

// NewWorkerPool creates a pool of numWorkers workers reading from queue.
// A non-positive count selects runtime.NumCPU(); a nil queue gets a fresh one.
// Workers are not spawned until Start.
func NewWorkerPool(numWorkers int, queue *TaskQueue) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queue == nil {
		queue = NewTaskQueue()
	}

	return &WorkerPool{
		numWorkers: numWorkers,
		queue:      queue,
	}
}

// OnPanic installs a callback invoked when a task panics. It must be set
// before Start.
func (p *WorkerPool) OnPanic(fn func(recovered any)) {
	p.onPanic = fn
}

// Size returns the fixed worker count
func (p *WorkerPool) Size() int {
	return p.numWorkers
}

// Queue returns the queue the workers consume
func (p *WorkerPool) Queue() *TaskQueue {
	return p.queue
}

// Start spawns the workers exactly once.
func (p *WorkerPool) Start() error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return ErrPoolStarted
	}

	p.wg.Add(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		go p.run()
	}

	return nil
}

// Submit enqueues a task for some worker. It never blocks.
func (p *WorkerPool) Submit(task Task) error {
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	if err := p.queue.Push(task); err != nil {
		return err
	}

	p.stats.tasksSubmitted.Add(1)
	return nil
}

// CloseAndFinishWork closes the queue and blocks until every worker has
// finished the tasks already queued and exited.
func (p *WorkerPool) CloseAndFinishWork() error {
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}

	p.queue.Close()
	p.wg.Wait()
	return nil
}

// run is the worker loop: pop, execute, repeat until closed and empty.
func (p *WorkerPool) run() {
	defer p.wg.Done()

	for {
		task, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.execute(task)
	}
}

func (p *WorkerPool) execute(task Task) {
	p.stats.busy.Add(1)
	defer func() {
		p.stats.busy.Add(-1)
		if r := recover(); r != nil {
			p.stats.tasksFailed.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
			return
		}
		p.stats.tasksCompleted.Add(1)
	}()

	task()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		BusyWorkers:    int(p.stats.busy.Load()),
		TasksSubmitted: p.stats.tasksSubmitted.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksFailed:    p.stats.tasksFailed.Load(),
		TasksPending:   p.queue.Len(),
		Started:        p.started.Load(),
		Closed:         p.closed.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	BusyWorkers    int    `json:"busy_workers"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
	TasksPending   int    `json:"tasks_pending"`
	Started        bool   `json:"started"`
	Closed         bool   `json:"closed"`
}

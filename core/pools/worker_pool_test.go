package pools

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_Basic(t *testing.T) {
	pool := NewWorkerPool(4, nil)
	require.NoError(t, pool.Start())

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func() {
			counter.Add(1)
		}))
	}

	require.NoError(t, pool.CloseAndFinishWork())

	assert.Equal(t, int64(100), counter.Load())
	stats := pool.Stats()
	assert.Equal(t, uint64(100), stats.TasksSubmitted)
	assert.Equal(t, uint64(100), stats.TasksCompleted)
	assert.Equal(t, 0, stats.TasksPending)
	assert.True(t, stats.Closed)
}

func TestWorkerPool_StartTwice(t *testing.T) {
	pool := NewWorkerPool(2, nil)
	require.NoError(t, pool.Start())
	assert.ErrorIs(t, pool.Start(), ErrPoolStarted)
	require.NoError(t, pool.CloseAndFinishWork())
}

func TestWorkerPool_Lifecycle(t *testing.T) {
	pool := NewWorkerPool(2, nil)

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolNotStarted)
	assert.ErrorIs(t, pool.CloseAndFinishWork(), ErrPoolNotStarted)

	require.NoError(t, pool.Start())
	require.NoError(t, pool.CloseAndFinishWork())

	assert.ErrorIs(t, pool.CloseAndFinishWork(), ErrPoolClosed)
	assert.ErrorIs(t, pool.Submit(func() {}), ErrQueueClosed)
	assert.ErrorIs(t, pool.Start(), ErrPoolClosed)
}

func TestWorkerPool_DefaultSize(t *testing.T) {
	pool := NewWorkerPool(0, nil)
	assert.Greater(t, pool.Size(), 0)
	assert.NotNil(t, pool.Queue())
}

// Every task queued before the drain runs exactly once, including tasks
// still waiting behind slow ones.
func TestWorkerPool_DrainExactlyOnce(t *testing.T) {
	pool := NewWorkerPool(3, NewTaskQueue())
	require.NoError(t, pool.Start())

	const total = 300
	runs := make([]atomic.Int32, total)

	for i := 0; i < total; i++ {
		require.NoError(t, pool.Submit(func() {
			if i%50 == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			runs[i].Add(1)
		}))
	}

	require.NoError(t, pool.CloseAndFinishWork())

	for i := range runs {
		assert.Equal(t, int32(1), runs[i].Load(), "task %d", i)
	}
}

func TestWorkerPool_DrainWaitsForInFlight(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	require.NoError(t, pool.Start())

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, pool.Submit(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))

	<-started
	require.NoError(t, pool.CloseAndFinishWork())
	assert.True(t, finished.Load())
}

func TestWorkerPool_PanicKeepsWorkerAlive(t *testing.T) {
	pool := NewWorkerPool(1, nil)

	var mu sync.Mutex
	var recovered []any
	pool.OnPanic(func(r any) {
		mu.Lock()
		recovered = append(recovered, r)
		mu.Unlock()
	})
	require.NoError(t, pool.Start())

	var ran atomic.Bool
	require.NoError(t, pool.Submit(func() { panic("boom") }))
	require.NoError(t, pool.Submit(func() { ran.Store(true) }))
	require.NoError(t, pool.CloseAndFinishWork())

	assert.True(t, ran.Load())
	assert.Equal(t, []any{"boom"}, recovered)

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.TasksFailed)
	assert.Equal(t, uint64(1), stats.TasksCompleted)
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(8, nil)
	_ = pool.Start()
	defer pool.CloseAndFinishWork()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(func() {})
	}
}

package pools

import (
	"sync"
	"sync/atomic"
)

// BytePool is a tiered pool of byte slices used for streamed body chunks
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// Chunk sizes for response bodies
var defaultSizes = []int{
	4096,  // small files, error bodies
	16384, // typical static assets
	65536, // large downloads
}

// NewBytePool creates a new byte pool with standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom ascending size tiers
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a byte slice of exactly size bytes. Sizes above the largest
// tier are allocated directly.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)

	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}

	bp.misses.Add(1)
	return make([]byte, size)
}

// Put returns a byte slice to the tier matching its capacity
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)

	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			bp.puts.Add(1)
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

// Stats returns pool statistics
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		TotalGets: bp.gets.Load(),
		TotalPuts: bp.puts.Load(),
		Misses:    bp.misses.Load(),
	}
}

// BytePoolStats contains byte pool statistics
type BytePoolStats struct {
	TotalGets uint64 `json:"total_gets"`
	TotalPuts uint64 `json:"total_puts"`
	Misses    uint64 `json:"misses"`
}

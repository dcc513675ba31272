package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Connection buffer sizes
const (
	DefaultReadBufferSize  = 4 * 1024
	DefaultWriteBufferSize = 4 * 1024
)

// BufferPool recycles the buffered reader and writer wrapped around each
// accepted connection.
type BufferPool struct {
	readers sync.Pool
	writers sync.Pool

	readSize  int
	writeSize int

	// Statistics
	readerGets atomic.Uint64
	writerGets atomic.Uint64
	allocs     atomic.Uint64
}

// NewBufferPool creates a pool for readers of readSize and writers of
// writeSize bytes. Non-positive sizes select the defaults.
func NewBufferPool(readSize, writeSize int) *BufferPool {
	if readSize <= 0 {
		readSize = DefaultReadBufferSize
	}
	if writeSize <= 0 {
		writeSize = DefaultWriteBufferSize
	}

	bp := &BufferPool{readSize: readSize, writeSize: writeSize}
	bp.readers.New = func() any {
		bp.allocs.Add(1)
		return bufio.NewReaderSize(nil, bp.readSize)
	}
	bp.writers.New = func() any {
		bp.allocs.Add(1)
		return bufio.NewWriterSize(nil, bp.writeSize)
	}
	return bp
}

// ReadSize returns the reader buffer size
func (bp *BufferPool) ReadSize() int {
	return bp.readSize
}

// AcquireReader returns a reader over r
func (bp *BufferPool) AcquireReader(r io.Reader) *bufio.Reader {
	bp.readerGets.Add(1)
	br := bp.readers.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// ReleaseReader returns br to the pool
func (bp *BufferPool) ReleaseReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bp.readers.Put(br)
}

// AcquireWriter returns a writer over w
func (bp *BufferPool) AcquireWriter(w io.Writer) *bufio.Writer {
	bp.writerGets.Add(1)
	bw := bp.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// ReleaseWriter returns bw to the pool. Unflushed data is discarded.
func (bp *BufferPool) ReleaseWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	bp.writers.Put(bw)
}

// Stats returns buffer pool statistics
func (bp *BufferPool) Stats() BufferStats {
	gets := bp.readerGets.Load() + bp.writerGets.Load()
	allocs := bp.allocs.Load()

	hitRate := 0.0
	if gets > 0 && allocs <= gets {
		hitRate = float64(gets-allocs) / float64(gets)
	}
	return BufferStats{
		ReaderGets: bp.readerGets.Load(),
		WriterGets: bp.writerGets.Load(),
		Allocs:     allocs,
		HitRate:    hitRate,
	}
}

// BufferStats contains buffer pool statistics
type BufferStats struct {
	ReaderGets uint64  `json:"reader_gets"`
	WriterGets uint64  `json:"writer_gets"`
	Allocs     uint64  `json:"allocs"`
	HitRate    float64 `json:"hit_rate"`
}

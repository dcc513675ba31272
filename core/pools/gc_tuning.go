package pools

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters. Zero fields keep the runtime's
// current setting.
type GCConfig struct {
	// Percent sets the garbage collection target percentage (GOGC).
	// Higher values trade memory for fewer collections.
	Percent int

	// MemoryLimit sets the soft memory limit in bytes
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns a function restoring the previous
// settings
func ApplyGCConfig(cfg GCConfig) (restore func()) {
	prevPercent, prevLimit := -2, int64(-1)

	if cfg.Percent > 0 {
		prevPercent = debug.SetGCPercent(cfg.Percent)
	}
	if cfg.MemoryLimit > 0 {
		prevLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}

	return func() {
		if prevPercent != -2 {
			debug.SetGCPercent(prevPercent)
		}
		if prevLimit >= 0 {
			debug.SetMemoryLimit(prevLimit)
		}
	}
}

// CurrentMemoryLimit reports the soft memory limit, or 0 when unlimited
func CurrentMemoryLimit() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit == math.MaxInt64 {
		return 0
	}
	return limit
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total"`
	LastPause    time.Duration `json:"last_pause"`
	AvgPause     time.Duration `json:"avg_pause"`
	AllocBytes   uint64        `json:"alloc_bytes"`
	Sys          uint64        `json:"sys_bytes"`
	NumGoroutine int           `json:"goroutines"`
}

// ReadGCStats returns current GC statistics
func ReadGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		AllocBytes:   ms.Alloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
		stats.AvgPause = stats.PauseTotal / time.Duration(ms.NumGC)
	}
	return stats
}

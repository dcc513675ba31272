package pools

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyGCConfig(t *testing.T) {
	before := debug.SetGCPercent(-1)
	debug.SetGCPercent(before)
	limitBefore := CurrentMemoryLimit()

	restore := ApplyGCConfig(GCConfig{Percent: 250, MemoryLimit: 1 << 30})
	assert.Equal(t, 250, debug.SetGCPercent(250))
	assert.Equal(t, int64(1<<30), CurrentMemoryLimit())

	restore()
	assert.Equal(t, before, debug.SetGCPercent(before))
	assert.Equal(t, limitBefore, CurrentMemoryLimit())
}

func TestApplyGCConfigZeroKeepsSettings(t *testing.T) {
	before := debug.SetGCPercent(-1)
	debug.SetGCPercent(before)

	restore := ApplyGCConfig(GCConfig{})
	restore()
	assert.Equal(t, before, debug.SetGCPercent(before))
}

func TestReadGCStats(t *testing.T) {
	runtime.GC()
	stats := ReadGCStats()

	assert.Positive(t, stats.NumGC)
	assert.Positive(t, stats.Sys)
	assert.Positive(t, stats.NumGoroutine)
	assert.LessOrEqual(t, stats.AvgPause, stats.PauseTotal)
}

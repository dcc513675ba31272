package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/searchktools/fast-dispatch/core/observability"
	"github.com/searchktools/fast-dispatch/core/pools"
)

// EngineStats is a snapshot of the engine's pools and routes
type EngineStats struct {
	Workers     pools.WorkerPoolStats      `json:"workers"`
	Buffers     pools.BufferStats          `json:"buffers"`
	GC          pools.GCStats              `json:"gc"`
	Routes      int                        `json:"routes"`
	Middleware  int                        `json:"middleware"`
	Bottlenecks []observability.Bottleneck `json:"bottlenecks,omitempty"`
}

// JSON returns the statistics as indented JSON
func (s EngineStats) JSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Text returns the statistics in a human readable form
func (s EngineStats) Text() string {
	var b strings.Builder

	b.WriteString("=== Engine Statistics ===\n\n")

	b.WriteString("Workers:\n")
	fmt.Fprintf(&b, "  Size:      %d (%d busy)\n", s.Workers.NumWorkers, s.Workers.BusyWorkers)
	fmt.Fprintf(&b, "  Submitted: %d\n", s.Workers.TasksSubmitted)
	fmt.Fprintf(&b, "  Completed: %d\n", s.Workers.TasksCompleted)
	fmt.Fprintf(&b, "  Failed:    %d\n", s.Workers.TasksFailed)
	fmt.Fprintf(&b, "  Pending:   %d\n\n", s.Workers.TasksPending)

	b.WriteString("Buffers:\n")
	fmt.Fprintf(&b, "  Reader gets: %d\n", s.Buffers.ReaderGets)
	fmt.Fprintf(&b, "  Writer gets: %d\n", s.Buffers.WriterGets)
	fmt.Fprintf(&b, "  Hit rate:    %.2f%%\n\n", s.Buffers.HitRate*100)

	b.WriteString("GC:\n")
	fmt.Fprintf(&b, "  Cycles:     %d\n", s.GC.NumGC)
	fmt.Fprintf(&b, "  Avg pause:  %v\n", s.GC.AvgPause)
	fmt.Fprintf(&b, "  Heap:       %.2f MiB\n", float64(s.GC.AllocBytes)/(1<<20))
	fmt.Fprintf(&b, "  Goroutines: %d\n\n", s.GC.NumGoroutine)

	fmt.Fprintf(&b, "Routes: %d, global middleware: %d\n", s.Routes, s.Middleware)

	if len(s.Bottlenecks) > 0 {
		b.WriteString("\nBottlenecks:\n")
		for _, bn := range s.Bottlenecks {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", bn.Type, bn.Location, bn.Details)
		}
	}

	return b.String()
}

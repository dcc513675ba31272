package observability

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/searchktools/fast-dispatch/core/http"
)

const namespace = "fastdispatch"

// otherMethod labels every extension method so clients cannot mint series
const otherMethod = "OTHER"

// Monitor records dispatch metrics. Counters and histograms are exported
// through its Prometheus registry; per-route aggregates are also kept in
// memory for bottleneck reports.
type Monitor struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	parseErrors prometheus.Counter
	panics      prometheus.Counter
	connections prometheus.Gauge

	handlers sync.Map // route -> *HandlerMetrics
}

// HandlerMetrics stores per-route aggregates
type HandlerMetrics struct {
	Name          string
	Count         atomic.Uint64
	Errors        atomic.Uint64
	TotalDuration atomic.Uint64
	MaxDuration   atomic.Uint64
}

// Bottleneck represents a route whose latency or error rate is too high
type Bottleneck struct {
	Type     string  `json:"type"`
	Location string  `json:"location"`
	Severity int     `json:"severity"`
	Impact   float64 `json:"impact"`
	Details  string  `json:"details"`
}

// NewMonitor creates a monitor with its own registry
func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered, by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dequeue to response written.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Requests rejected by the parser.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Middleware or handler panics converted to 500.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Accepted connections not yet closed.",
		}),
	}

	m.registry.MustRegister(m.requests, m.duration, m.parseErrors, m.panics, m.connections)
	return m
}

// Registry returns the registry holding the monitor's collectors
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// WatchGauge registers a gauge sampled from fn at scrape time
func (m *Monitor) WatchGauge(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// RecordRequest records one answered request
func (m *Monitor) RecordRequest(route string, method http.Method, status int, duration time.Duration) {
	m.requests.WithLabelValues(route, methodLabel(method), strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(duration.Seconds())

	val, _ := m.handlers.LoadOrStore(route, &HandlerMetrics{Name: route})
	hm := val.(*HandlerMetrics)
	hm.Count.Add(1)
	if status >= 500 {
		hm.Errors.Add(1)
	}

	d := uint64(duration.Nanoseconds())
	hm.TotalDuration.Add(d)
	for {
		cur := hm.MaxDuration.Load()
		if d <= cur || hm.MaxDuration.CompareAndSwap(cur, d) {
			break
		}
	}
}

func methodLabel(m http.Method) string {
	if m == "" || m.IsStandard() {
		return m.String()
	}
	return otherMethod
}

// RecordParseError counts a request the parser rejected
func (m *Monitor) RecordParseError() {
	m.parseErrors.Inc()
}

// RecordPanic counts a recovered panic
func (m *Monitor) RecordPanic() {
	m.panics.Inc()
}

// ConnOpened and ConnClosed track live connections
func (m *Monitor) ConnOpened() { m.connections.Inc() }
func (m *Monitor) ConnClosed() { m.connections.Dec() }

// Handler returns a handler serving every metric in m's registry
func (m *Monitor) Handler() http.Handler {
	return Handler(m.registry)
}

// Bottlenecks reports routes averaging over 100ms or failing more than 5%
// of requests, most severe first.
func (m *Monitor) Bottlenecks() []Bottleneck {
	var out []Bottleneck

	m.handlers.Range(func(_, value any) bool {
		hm := value.(*HandlerMetrics)
		count := hm.Count.Load()
		if count == 0 {
			return true
		}

		avg := time.Duration(hm.TotalDuration.Load() / count)
		if avg > 100*time.Millisecond {
			out = append(out, Bottleneck{
				Type:     "latency",
				Location: hm.Name,
				Severity: 8,
				Impact:   float64(avg) / float64(time.Millisecond),
				Details:  fmt.Sprintf("high latency (%v avg)", avg),
			})
		}

		errs := hm.Errors.Load()
		if rate := float64(errs) / float64(count); rate > 0.05 {
			out = append(out, Bottleneck{
				Type:     "errors",
				Location: hm.Name,
				Severity: 10,
				Impact:   rate * 100,
				Details:  fmt.Sprintf("%.1f%% error rate", rate*100),
			})
		}
		return true
	})

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Location < out[j].Location
	})
	return out
}

// Handler renders the metrics of g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return func(req *http.Request) http.Resolution {
		families, err := g.Gather()
		if err != nil {
			return http.Error(500, "gather metrics: "+err.Error(), http.ErrorPlain)
		}

		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return http.Error(500, "encode metrics: "+err.Error(), http.ErrorPlain)
			}
		}
		return http.Bytes(200, string(expfmt.FmtText), buf.Bytes())
	}
}

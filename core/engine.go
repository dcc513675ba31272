package core

import (
	"bufio"
	"context"
	"errors"
	"net"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/fast-dispatch/core/http"
	"github.com/searchktools/fast-dispatch/core/middleware"
	"github.com/searchktools/fast-dispatch/core/observability"
	"github.com/searchktools/fast-dispatch/core/pools"
	"github.com/searchktools/fast-dispatch/core/router"
	"github.com/searchktools/fast-dispatch/logging"
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Workers is the fixed worker count; defaults to runtime.NumCPU()
	Workers int
	// ReadTimeout bounds reading one request; negative disables it
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one response; negative disables it
	WriteTimeout time.Duration
	// ReadBufferSize is the per-connection read buffer; it also caps the
	// header size for FastParser
	ReadBufferSize int
	// Parser reads requests; defaults to a TextParser with default limits
	Parser http.Parser
	// Logger defaults to logging.Default()
	Logger *zerolog.Logger
	// Monitor defaults to a fresh monitor
	Monitor *observability.Monitor
}

// Engine dispatches connections: each accepted connection becomes one task
// that parses, resolves, runs the middleware chain and handler, and writes
// the Resolution back before closing the connection.
type Engine struct {
	router  *router.Router
	global  *middleware.Pipeline
	pool    *pools.WorkerPool
	buffers *pools.BufferPool
	parser  http.Parser
	monitor *observability.Monitor
	logger  *zerolog.Logger
	baseCtx context.Context

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewEngine creates an engine. Routes and global middleware are registered
// before Start.
func NewEngine(opts Options) *Engine {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Parser == nil {
		opts.Parser = http.NewTextParser(http.Limits{})
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Monitor == nil {
		opts.Monitor = observability.NewMonitor()
	}

	e := &Engine{
		router:       router.New(),
		global:       middleware.NewPipeline(),
		pool:         pools.NewWorkerPool(opts.Workers, pools.NewTaskQueue()),
		buffers:      pools.NewBufferPool(opts.ReadBufferSize, 0),
		parser:       opts.Parser,
		monitor:      opts.Monitor,
		logger:       opts.Logger,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	e.baseCtx = logging.WithLogger(context.Background(), e.logger)

	e.pool.OnPanic(func(r any) {
		e.monitor.RecordPanic()
		e.logger.Error().Interface("panic", r).Msg("worker task failed")
	})

	e.watch("queue_depth", "Tasks waiting for a worker.", func() float64 {
		return float64(e.pool.Queue().Len())
	})
	e.watch("workers_busy", "Workers executing a task.", func() float64 {
		return float64(e.pool.Stats().BusyWorkers)
	})

	return e
}

func (e *Engine) watch(name, help string, fn func() float64) {
	if err := e.monitor.WatchGauge(name, help, fn); err != nil {
		e.logger.Warn().Err(err).Str("gauge", name).Msg("gauge not registered")
	}
}

// Router returns the route table
func (e *Engine) Router() *router.Router {
	return e.router
}

// Monitor returns the engine's metrics
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Use appends global middleware, run for every request in order
func (e *Engine) Use(steps ...middleware.Step) error {
	if e.router.Sealed() {
		return router.ErrSealed
	}
	e.global.Use(steps...)
	return nil
}

// Register adds a route using the given registration mode
func (e *Engine) Register(path string, method http.Method, steps []middleware.Step, handler http.Handler, mode router.Mode) error {
	return e.router.Register(path, method, steps, handler, mode)
}

// Handle adds or replaces a route
func (e *Engine) Handle(method http.Method, path string, handler http.Handler, steps ...middleware.Step) error {
	return e.router.Register(path, method, steps, handler, router.Overwrite)
}

// HandleIfAbsent adds a route, failing with router.ErrRouteConflict if the
// same template and method already exist
func (e *Engine) HandleIfAbsent(method http.Method, path string, handler http.Handler, steps ...middleware.Step) error {
	return e.router.Register(path, method, steps, handler, router.InsertIfAbsent)
}

// MustHandle adds a route and panics on a malformed template or conflict
func (e *Engine) MustHandle(method http.Method, path string, handler http.Handler, steps ...middleware.Step) {
	_ = e.router.Register(path, method, steps, handler, router.InsertOrAbort)
}

// GET registers a GET route (panics on conflict)
func (e *Engine) GET(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodGet, path, handler, steps...)
}

// POST registers a POST route (panics on conflict)
func (e *Engine) POST(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodPost, path, handler, steps...)
}

// PUT registers a PUT route (panics on conflict)
func (e *Engine) PUT(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodPut, path, handler, steps...)
}

// DELETE registers a DELETE route (panics on conflict)
func (e *Engine) DELETE(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodDelete, path, handler, steps...)
}

// PATCH registers a PATCH route (panics on conflict)
func (e *Engine) PATCH(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodPatch, path, handler, steps...)
}

// HEAD registers a HEAD route (panics on conflict)
func (e *Engine) HEAD(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodHead, path, handler, steps...)
}

// OPTIONS registers an OPTIONS route (panics on conflict)
func (e *Engine) OPTIONS(path string, handler http.Handler, steps ...middleware.Step) {
	e.MustHandle(http.MethodOptions, path, handler, steps...)
}

// NotFound installs the missing-route handler
func (e *Engine) NotFound(handler http.Handler) {
	e.router.SetMissing(handler)
}

// Start seals the route table and spawns the workers. Starting twice
// fails with pools.ErrPoolStarted.
func (e *Engine) Start() error {
	e.router.Seal()
	return e.pool.Start()
}

// Dispatch queues conn for processing by a worker. On error the
// connection is closed.
func (e *Engine) Dispatch(conn net.Conn) error {
	if err := e.pool.Submit(func() { e.Serve(conn) }); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// CloseAndFinishWork stops accepting tasks and waits until every queued
// connection has been answered.
func (e *Engine) CloseAndFinishWork() error {
	return e.pool.CloseAndFinishWork()
}

// Serve handles one connection to completion: parse, resolve, execute,
// respond and close. It never panics for a failing handler or middleware.
func (e *Engine) Serve(conn net.Conn) {
	start := time.Now()
	e.monitor.ConnOpened()
	defer e.monitor.ConnClosed()
	defer conn.Close()

	br := e.buffers.AcquireReader(conn)
	defer e.buffers.ReleaseReader(br)
	bw := e.buffers.AcquireWriter(conn)
	defer e.buffers.ReleaseWriter(bw)

	if e.readTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(e.readTimeout))
	}

	req, err := e.parser.Parse(br)
	if err != nil {
		status := http.StatusForError(err)
		e.monitor.RecordParseError()
		e.logger.Debug().Err(err).Str("remote", remoteAddr(conn)).Int("status", status).Msg("request rejected")

		e.respond(conn, bw, http.Error(status, http.StatusText(status), http.ErrorPlain), nil, e.logger)
		e.monitor.RecordRequest(routeInvalid, "", status, time.Since(start))
		return
	}
	defer http.ReleaseRequest(req)

	req.RemoteAddr = remoteAddr(conn)
	req.WithContext(e.baseCtx)

	res, route := e.execute(req)
	logger := logging.FromContext(req.Context())
	e.respond(conn, bw, res, req.ResponseHeaders(), logger)

	status := res.StatusCode()
	e.monitor.RecordRequest(route, req.Method, status, time.Since(start))
	logger.Debug().
		Str("route", route).
		Int("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("request served")
}

// execute resolves the route and runs the middleware chain and handler.
// A panic, a nil Resolution or one whose status and headers cannot be read
// becomes a 500.
func (e *Engine) execute(req *http.Request) (res http.Resolution, route string) {
	route = routeUnmatched

	defer func() {
		if r := recover(); r != nil {
			e.monitor.RecordPanic()
			logging.FromContext(req.Context()).Error().
				Interface("panic", r).
				Str("route", route).
				Bytes("stack", debug.Stack()).
				Msg("request failed")
			res = http.Error(500, http.StatusText(500), http.ErrorPlain)
		}
	}()

	match, err := e.router.Resolve(req.Method, req.Path)
	switch {
	case errors.Is(err, router.ErrNotFound):
		match = router.Match{Handler: notFound}
	case match.Missing():
		route = routeMissing
	default:
		route = match.Route.Pattern
	}
	req.SetParams(match.Params)

	res = e.global.Execute(req, match.Steps, match.Handler)
	if res == nil {
		logging.FromContext(req.Context()).Error().Str("route", route).Msg("handler returned no resolution")
		return http.Error(500, http.StatusText(500), http.ErrorPlain), route
	}

	snap, err := http.Snapshot(res)
	if err != nil {
		e.monitor.RecordPanic()
		logging.FromContext(req.Context()).Error().Err(err).Str("route", route).Msg("resolution failed")
		return http.Error(500, http.StatusText(500), http.ErrorPlain), route
	}
	return snap, route
}

// respond writes res to the connection. Write failures only get logged.
func (e *Engine) respond(conn net.Conn, bw *bufio.Writer, res http.Resolution, extra []http.Header, logger *zerolog.Logger) {
	if e.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
	}
	if _, err := http.WriteResolution(bw, res, extra); err != nil {
		logger.Debug().Err(err).Msg("response write failed")
	}
}

func notFound(*http.Request) http.Resolution {
	return http.Status(404)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Stats returns a snapshot of the engine's pools and route table
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Workers:     e.pool.Stats(),
		Buffers:     e.buffers.Stats(),
		GC:          pools.ReadGCStats(),
		Routes:      e.router.Len(),
		Middleware:  e.global.Len(),
		Bottlenecks: e.monitor.Bottlenecks(),
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/searchktools/fast-dispatch/config"
	"github.com/searchktools/fast-dispatch/core"
	"github.com/searchktools/fast-dispatch/core/http"
	"github.com/searchktools/fast-dispatch/core/middleware"
	"github.com/searchktools/fast-dispatch/core/observability"
	"github.com/searchktools/fast-dispatch/core/pools"
	"github.com/searchktools/fast-dispatch/logging"
)

// DefaultShutdownTimeout bounds the drain performed by Run on a signal
const DefaultShutdownTimeout = 30 * time.Second

// Lifecycle errors
var (
	ErrAlreadyRunning = errors.New("app: already running")
	ErrNotRunning     = errors.New("app: not running")
	ErrClosed         = errors.New("app: closed")
)

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Option customizes an App
type Option func(*App)

// WithLogger replaces the logger built from the configuration
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithMonitor shares a metrics monitor with the engine
func WithMonitor(m *observability.Monitor) Option {
	return func(a *App) { a.monitor = m }
}

// WithShutdownTimeout sets how long Run waits for the drain after a signal
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

// App owns the listener and the engine. Start accepts connections and hands
// each to the engine; Stop closes the listener and drains queued work.
type App struct {
	cfg             *config.Config
	engine          *core.Engine
	logger          *zerolog.Logger
	monitor         *observability.Monitor
	shutdownTimeout time.Duration

	mu       sync.Mutex
	state    state
	listener net.Listener
	handle   *Handle
}

// New creates an application from cfg. A nil cfg uses config.New().
func New(cfg *config.Config, opts ...Option) *App {
	if cfg == nil {
		cfg = config.New()
	}
	a := &App{cfg: cfg, shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger := logging.NewFromConfig(cfg.LoggingConfig())
		a.logger = &logger
	}

	a.engine = core.NewEngine(engineOptions(cfg, a.logger, a.monitor))
	a.installDefaults()
	return a
}

func engineOptions(cfg *config.Config, logger *zerolog.Logger, monitor *observability.Monitor) core.Options {
	limits := http.Limits{MaxHeaderBytes: cfg.MaxHeaderBytes, MaxBodyBytes: cfg.MaxBodyBytes}

	opts := core.Options{
		Workers:      cfg.Workers,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger,
		Monitor:      monitor,
	}
	switch cfg.Parser {
	case config.ParserFastHTTP:
		opts.Parser = http.NewFastParser(limits)
		opts.ReadBufferSize = cfg.MaxHeaderBytes
	default:
		opts.Parser = http.NewTextParser(limits)
	}
	return opts
}

// installDefaults wires the metrics route and the rate limiter the
// configuration asks for
func (a *App) installDefaults() {
	if a.cfg.RateLimit.RPS > 0 {
		_ = a.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RPS:   a.cfg.RateLimit.RPS,
			Burst: a.cfg.RateLimit.Burst,
		}))
	}
	if path := a.cfg.Metrics.Path; path != "" {
		if err := a.engine.HandleIfAbsent(http.MethodGet, path, a.engine.Monitor().Handler()); err != nil {
			a.logger.Warn().Err(err).Str("path", path).Msg("metrics route not installed")
		}
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config {
	return a.cfg
}

// Addr returns the bound listener address once started, the configured
// address otherwise
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.Addr
}

// Start binds the listener, starts the workers and runs the accept loop in
// the background. The returned Handle resolves once the app has stopped and
// every accepted connection has been answered.
func (a *App) Start() (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateRunning, stateStopping:
		return nil, ErrAlreadyRunning
	case stateStopped:
		return nil, ErrClosed
	}

	ln, err := a.listen()
	if err != nil {
		return nil, err
	}
	if err := a.engine.Start(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("starting engine: %w", err)
	}
	if gc := a.cfg.GC; gc.Percent > 0 || gc.MemoryLimit > 0 {
		pools.ApplyGCConfig(pools.GCConfig{Percent: gc.Percent, MemoryLimit: gc.MemoryLimit})
		a.logger.Info().Int("gc_percent", gc.Percent).Int64("memory_limit", gc.MemoryLimit).Msg("gc tuned")
	}

	a.listener = ln
	a.handle = newHandle()
	a.state = stateRunning

	go a.serve(ln, a.handle)

	a.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", a.engine.Stats().Workers.NumWorkers).
		Int("routes", a.engine.Router().Len()).
		Str("env", a.cfg.Env).
		Msg("server started")

	return a.handle, nil
}

func (a *App) listen() (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl(a.cfg.ReusePort)}
	ln, err := lc.Listen(context.Background(), "tcp", a.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
	}
	if a.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, a.cfg.MaxConns)
	}
	return ln, nil
}

// serve runs the accept loop, then drains the engine and resolves h
func (a *App) serve(ln net.Listener, h *Handle) {
	acceptErr := a.acceptLoop(ln)
	if acceptErr != nil {
		a.logger.Error().Err(acceptErr).Msg("accept loop failed")
	}
	ln.Close()

	a.logger.Info().Int("pending", a.engine.Stats().Workers.TasksPending).Msg("draining")
	drainErr := a.engine.CloseAndFinishWork()

	a.mu.Lock()
	a.state = stateStopped
	a.mu.Unlock()

	a.logger.Info().Msg("drain complete")
	h.resolve(errors.Join(acceptErr, drainErr))
}

func (a *App) acceptLoop(ln net.Listener) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if !isTemporary(err) {
				return fmt.Errorf("accept: %w", err)
			}

			delay = backoff(delay)
			a.logger.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0

		if err := a.engine.Dispatch(conn); err != nil {
			a.logger.Warn().Err(err).Msg("connection dropped")
		}
	}
}

func isTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED)
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	if delay *= 2; delay > time.Second {
		delay = time.Second
	}
	return delay
}

// Stop closes the listener and waits until every queued connection has been
// answered or ctx is done. Stopping an app that never started fails with
// ErrNotRunning, stopping twice with ErrClosed.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	switch a.state {
	case stateIdle:
		a.mu.Unlock()
		return ErrNotRunning
	case stateStopping, stateStopped:
		a.mu.Unlock()
		return ErrClosed
	}
	a.state = stateStopping
	ln, h := a.listener, a.handle
	a.mu.Unlock()

	a.logger.Info().Msg("stopping")
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		a.logger.Warn().Err(err).Msg("closing listener")
	}

	select {
	case <-h.Done():
		return h.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the app and blocks until ctx is cancelled, SIGINT or SIGTERM
// arrives, or the accept loop fails. It then drains within the shutdown
// timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := a.Start()
	if err != nil {
		return err
	}

	select {
	case <-h.Done():
		return h.Wait()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	return a.Stop(shutdownCtx)
}

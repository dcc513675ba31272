/*
Package fastdispatch is a minimal HTTP/1.x serving core.

Each accepted connection becomes one task on an unbounded queue. A fixed pool
of workers pops tasks, parses the request, resolves it against a route table,
runs the global middleware, the route's middleware and its handler, writes
exactly one response and closes the connection. Stopping closes the listener
and then drains every queued task before the pool exits.

Quick Start

	package main

	import (
	    "context"

	    "github.com/searchktools/fast-dispatch/app"
	    "github.com/searchktools/fast-dispatch/config"
	    "github.com/searchktools/fast-dispatch/core/http"
	    "github.com/searchktools/fast-dispatch/core/middleware"
	)

	func main() {
	    application := app.New(config.New())

	    engine := application.Engine()
	    engine.GET("/hello", func(req *http.Request) http.Resolution {
	        return http.Text(200, "Hello, World!")
	    })

	    engine.GET("/files/{*}", func(req *http.Request) http.Resolution {
	        return http.File("./public/" + req.Param("*"))
	    })

	    engine.POST("/admin", func(req *http.Request) http.Resolution {
	        return http.Status(204)
	    }, middleware.RequireHeader("Authorization", 401))

	    _ = application.Run(context.Background())
	}

Route templates

Templates are split on "/". A segment is a literal, a named parameter
"{name}", or the wildcard "{*}", which must be last and captures the rest
of the path. At each segment a literal match is tried before a parameter and
a parameter before the wildcard; resolution backtracks when a deeper branch
fails.

Middleware

A step returns Next to continue, Invalid with a Resolution to answer
immediately, or InvalidEmpty with a bare status. Global steps run before
route steps; the handler runs only if every step returned Next.

Modules

  - app: listener, accept loop and lifecycle (Start, Stop, Run)
  - config: configuration from YAML, .env and FASTDISPATCH_* variables
  - core: the engine that turns a connection into one response
  - core/http: requests, parsers, resolutions and the response writer
  - core/router: the route trie
  - core/middleware: the middleware chain and built-in steps
  - core/pools: task queue, worker pool and buffer pools
  - core/observability: Prometheus metrics and bottleneck detection
  - logging: zerolog setup and request-scoped loggers
  - cmd/fastdispatch: the serve, routes and version commands
*/
package fastdispatch

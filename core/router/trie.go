package router

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/searchktools/fast-dispatch/core/http"
	"github.com/searchktools/fast-dispatch/core/middleware"
)

// Mode selects how Register treats an existing route with the same key
type Mode int

const (
	// Overwrite replaces any existing route
	Overwrite Mode = iota
	// InsertIfAbsent fails with ErrRouteConflict when the key exists
	InsertIfAbsent
	// InsertOrAbort is InsertIfAbsent that panics on any registration error.
	// Use it for startup code only.
	InsertOrAbort
)

// WildcardParam is the parameter name bound to a wildcard remainder
const WildcardParam = "*"

// Route is a registered (template, method) pair
type Route struct {
	Pattern string
	Method  http.Method
	Steps   []middleware.Step
	Handler http.Handler

	paramNames []string
	wildcard   bool
}

// Match is the result of a successful Resolve. Route is nil when the
// missing-route handler was selected.
type Match struct {
	Route   *Route
	Handler http.Handler
	Steps   []middleware.Step
	Params  map[string]string
}

// Missing reports whether the match is the missing-route fallback
func (m Match) Missing() bool {
	return m.Route == nil
}

type node struct {
	static   map[string]*node
	param    *node
	wildcard *node
	routes   map[http.Method]*Route
}

// Router is a segment trie of routes.
//
// Routes are registered during a build phase. Seal ends that phase: once
// the server is serving, the table is read-only and further registration
// fails with ErrSealed.
type Router struct {
	mu      sync.RWMutex
	root    *node
	missing http.Handler
	count   int
	sealed  atomic.Bool
}

// New creates an empty router
func New() *Router {
	return &Router{root: &node{}}
}

// Register adds a route for method at the path template. Templates consist
// of literal segments, "{name}" parameters and an optional trailing "{*}".
// A malformed template or a conflict leaves the table untouched.
func (r *Router) Register(path string, method http.Method, steps []middleware.Step, handler http.Handler, mode Mode) error {
	err := r.register(path, method, steps, handler, mode)
	if err != nil && mode == InsertOrAbort {
		panic(err)
	}
	return err
}

func (r *Router) register(path string, method http.Method, steps []middleware.Step, handler http.Handler, mode Mode) error {
	if r.sealed.Load() {
		return &RouteError{Method: method, Path: path, Err: ErrSealed}
	}
	if method == "" {
		return &RouteError{Method: method, Path: path, Reason: "empty method", Err: ErrMalformedRoute}
	}
	if handler == nil {
		return &RouteError{Method: method, Path: path, Err: ErrNilHandler}
	}

	segs, err := parseTemplate(path)
	if err != nil {
		err.Method = method
		return err
	}

	route := &Route{
		Pattern: templateString(segs),
		Method:  method,
		Steps:   slices.Clone(steps),
		Handler: handler,
	}
	for _, s := range segs {
		switch s.kind {
		case segParam:
			route.paramNames = append(route.paramNames, s.text)
		case segWildcard:
			route.wildcard = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if mode != Overwrite {
		if n := r.root.find(segs); n != nil && n.routes[method] != nil {
			return &RouteError{
				Method: method,
				Path:   path,
				Reason: "already registered as " + n.routes[method].Pattern,
				Err:    ErrRouteConflict,
			}
		}
	}

	n := r.root.insert(segs)
	if n.routes == nil {
		n.routes = make(map[http.Method]*Route)
	}
	if _, exists := n.routes[method]; !exists {
		r.count++
	}
	n.routes[method] = route
	return nil
}

// SetMissing installs the handler used when no route matches. The last
// call wins; nil removes it.
func (r *Router) SetMissing(handler http.Handler) {
	r.mu.Lock()
	r.missing = handler
	r.mu.Unlock()
}

// Seal ends the build phase
func (r *Router) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called
func (r *Router) Sealed() bool {
	return r.sealed.Load()
}

// Len returns the number of registered routes
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Resolve finds the route for method and path. At each segment a literal
// child is tried first, then the parameter child, then the wildcard. When
// a literal branch fails deeper down, resolution backtracks into the
// parameter and wildcard siblings, so it matches more paths than a
// first-match walk would. When nothing matches, the missing-route handler
// is returned if installed, otherwise ErrNotFound.
func (r *Router) Resolve(method http.Method, path string) (Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, values := r.root.lookup(path, method, make([]string, 0, 4))
	if route == nil {
		if r.missing != nil {
			return Match{Handler: r.missing}, nil
		}
		return Match{}, ErrNotFound
	}

	var params map[string]string
	if len(values) > 0 {
		params = make(map[string]string, len(values))
		for i, name := range route.paramNames {
			params[name] = values[i]
		}
		if route.wildcard {
			params[WildcardParam] = values[len(values)-1]
		}
	}

	return Match{
		Route:   route,
		Handler: route.Handler,
		Steps:   route.Steps,
		Params:  params,
	}, nil
}

// lookup walks the remaining path, backtracking to less specific children
// when a deeper branch fails.
func (n *node) lookup(path string, method http.Method, values []string) (*Route, []string) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		if rt := n.routes[method]; rt != nil {
			return rt, values
		}
		return nil, nil
	}

	seg, rest, _ := strings.Cut(path, "/")

	if child := n.static[seg]; child != nil {
		if rt, v := child.lookup(rest, method, values); rt != nil {
			return rt, v
		}
	}
	if n.param != nil {
		if rt, v := n.param.lookup(rest, method, append(values, seg)); rt != nil {
			return rt, v
		}
	}
	if n.wildcard != nil {
		if rt := n.wildcard.routes[method]; rt != nil {
			return rt, append(values, path)
		}
	}
	return nil, nil
}

// find returns the node for segs without creating anything
func (n *node) find(segs []segment) *node {
	cur := n
	for _, s := range segs {
		switch s.kind {
		case segLiteral:
			cur = cur.static[s.text]
		case segParam:
			cur = cur.param
		case segWildcard:
			cur = cur.wildcard
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

// insert returns the node for segs, creating missing nodes
func (n *node) insert(segs []segment) *node {
	cur := n
	for _, s := range segs {
		switch s.kind {
		case segLiteral:
			if cur.static == nil {
				cur.static = make(map[string]*node)
			}
			child := cur.static[s.text]
			if child == nil {
				child = &node{}
				cur.static[s.text] = child
			}
			cur = child
		case segParam:
			if cur.param == nil {
				cur.param = &node{}
			}
			cur = cur.param
		case segWildcard:
			if cur.wildcard == nil {
				cur.wildcard = &node{}
			}
			cur = cur.wildcard
		}
	}
	return cur
}

// RouteInfo describes a registered route
type RouteInfo struct {
	Method     string `yaml:"method" json:"method"`
	Pattern    string `yaml:"pattern" json:"pattern"`
	Middleware int    `yaml:"middleware" json:"middleware"`
}

// Routes lists the registered routes ordered by pattern then method
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RouteInfo
	var walk func(n *node)
	walk = func(n *node) {
		for _, rt := range n.routes {
			out = append(out, RouteInfo{
				Method:     rt.Method.String(),
				Pattern:    rt.Pattern,
				Middleware: len(rt.Steps),
			})
		}
		for _, child := range n.static {
			walk(child)
		}
		if n.param != nil {
			walk(n.param)
		}
		if n.wildcard != nil {
			walk(n.wildcard)
		}
	}
	walk(r.root)

	slices.SortFunc(out, func(a, b RouteInfo) int {
		if c := strings.Compare(a.Pattern, b.Pattern); c != 0 {
			return c
		}
		return strings.Compare(a.Method, b.Method)
	})
	return out
}

package http

import (
	"context"
	"net/textproto"
	"sync"
)

// Method is an HTTP request method. Tokens outside the standard set are kept
// verbatim and compare by exact text.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// IsStandard reports whether m is one of the predefined methods
func (m Method) IsStandard() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions:
		return true
	}
	return false
}

func (m Method) String() string { return string(m) }

// Header is a single response header line
type Header struct {
	Name  string
	Value string
}

// Request is the unit flowing through the dispatch pipeline. It is owned by
// the task processing it and must not be retained after the handler returns.
type Request struct {
	Method     Method
	Path       string
	RawQuery   string
	Proto      string
	RemoteAddr string

	// Request body, read in full using Content-Length
	Body []byte

	ctx     context.Context
	headers map[string]string
	query   map[string]string
	params  map[string]string
	locals  map[string]any

	responseHeaders []Header
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{
			Body: make([]byte, 0, 1024),
		}
	},
}

// AcquireRequest returns an empty request from the pool
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// ReleaseRequest resets req and returns it to the pool
func ReleaseRequest(req *Request) {
	if req == nil {
		return
	}
	req.Reset()
	requestPool.Put(req)
}

// Reset clears the request for reuse, keeping allocated capacity
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.RawQuery = ""
	r.Proto = ""
	r.RemoteAddr = ""
	r.Body = r.Body[:0]
	r.ctx = nil

	clear(r.headers)
	clear(r.query)
	clear(r.locals)
	r.params = nil
	r.responseHeaders = r.responseHeaders[:0]
}

// Context returns the request context, never nil
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext replaces the request context in place
func (r *Request) WithContext(ctx context.Context) {
	r.ctx = ctx
}

// Header returns the value of the named header, case-insensitively
func (r *Request) Header(name string) string {
	return r.headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// SetHeader sets a header, replacing any previous value
func (r *Request) SetHeader(name, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[textproto.CanonicalMIMEHeaderKey(name)] = value
}

// AddHeader appends value to the named header, comma separated
func (r *Request) AddHeader(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	if prev, ok := r.headers[key]; ok {
		r.SetHeader(key, prev+", "+value)
		return
	}
	r.SetHeader(key, value)
}

// Headers returns a copy of all request headers keyed by canonical name
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// Query returns the decoded query parameter name
func (r *Request) Query(name string) string {
	return r.query[name]
}

// SetQuery sets a query parameter
func (r *Request) SetQuery(name, value string) {
	if r.query == nil {
		r.query = make(map[string]string)
	}
	r.query[name] = value
}

// Param returns the path parameter bound by the router. The wildcard
// remainder is bound to "*".
func (r *Request) Param(name string) string {
	return r.params[name]
}

// Params returns a copy of the bound path parameters
func (r *Request) Params() map[string]string {
	out := make(map[string]string, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// SetParams binds path parameters. The dispatcher calls it once after
// resolution; the map is not copied.
func (r *Request) SetParams(params map[string]string) {
	r.params = params
}

// Set stores request-scoped auxiliary data
func (r *Request) Set(key string, value any) {
	if r.locals == nil {
		r.locals = make(map[string]any)
	}
	r.locals[key] = value
}

// Get returns auxiliary data stored with Set
func (r *Request) Get(key string) (any, bool) {
	v, ok := r.locals[key]
	return v, ok
}

// SetResponseHeader records a header to add to whatever Resolution
// eventually answers this request. Headers the Resolution already sets win.
func (r *Request) SetResponseHeader(name, value string) {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for i := range r.responseHeaders {
		if r.responseHeaders[i].Name == name {
			r.responseHeaders[i].Value = value
			return
		}
	}
	r.responseHeaders = append(r.responseHeaders, Header{Name: name, Value: value})
}

// ResponseHeaders returns the headers recorded with SetResponseHeader
func (r *Request) ResponseHeaders() []Header {
	return r.responseHeaders
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/textproto"
	"strconv"
)

// Common header names
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderLocation      = "Location"
	HeaderConnection    = "Connection"
)

// Content types
const (
	ContentTypeText     = "text/plain; charset=utf-8"
	ContentTypeJSON     = "application/json"
	ContentTypeOctet    = "application/octet-stream"
	ContentTypeProtobuf = "application/x-protobuf"
)

// Resolution is the response produced for one request. It is consumed once
// by the write-back path.
type Resolution interface {
	// StatusCode returns the response status
	StatusCode() int
	// Headers returns the header lines in write order
	Headers() []Header
	// Body yields the body in chunks. A chunk is only valid until the
	// next iteration step.
	Body() iter.Seq2[[]byte, error]
}

// Handler produces the Resolution for a request
type Handler func(req *Request) Resolution

// fixed is a Resolution with an in-memory body
type fixed struct {
	status  int
	headers []Header
	body    []byte
}

func (f *fixed) StatusCode() int   { return f.status }
func (f *fixed) Headers() []Header { return f.headers }

func (f *fixed) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if len(f.body) > 0 {
			yield(f.body, nil)
		}
	}
}

// Status returns a Resolution with the given status and no body
func Status(code int) Resolution {
	return &fixed{
		status:  code,
		headers: []Header{{Name: HeaderContentLength, Value: "0"}},
	}
}

// Bytes returns a Resolution with a fixed body
func Bytes(code int, contentType string, body []byte) Resolution {
	if contentType == "" {
		contentType = ContentTypeOctet
	}
	return &fixed{
		status: code,
		headers: []Header{
			{Name: HeaderContentType, Value: contentType},
			{Name: HeaderContentLength, Value: strconv.Itoa(len(body))},
		},
		body: body,
	}
}

// Text returns a plain text Resolution
func Text(code int, s string) Resolution {
	return Bytes(code, ContentTypeText, []byte(s))
}

// JSON encodes v as the response body. An unencodable value yields a 500.
func JSON(code int, v any) Resolution {
	data, err := json.Marshal(v)
	if err != nil {
		return Error(500, "response encoding failed", ErrorJSON)
	}
	return Bytes(code, ContentTypeJSON, data)
}

// ErrorFormat selects how Error renders its body
type ErrorFormat int

const (
	ErrorPlain ErrorFormat = iota
	ErrorJSON
)

// ErrorFormatter renders an error Resolution for code and message
type ErrorFormatter func(code int, message string) Resolution

// Error returns an error Resolution carrying message
func Error(code int, message string, format ErrorFormat) Resolution {
	if format == ErrorJSON {
		data, _ := json.Marshal(struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}{code, message})
		return Bytes(code, ContentTypeJSON, data)
	}
	return Text(code, message)
}

// ErrorWith renders the error through format. A nil formatter, a nil result
// or a panicking formatter falls back to the plain text form.
func ErrorWith(code int, message string, format ErrorFormatter) (res Resolution) {
	if format == nil {
		return Error(code, message, ErrorPlain)
	}
	defer func() {
		if r := recover(); r != nil {
			res = Error(code, message, ErrorPlain)
		}
	}()
	if res = format(code, message); res == nil {
		return Error(code, message, ErrorPlain)
	}
	return res
}

// ErrResolutionFailed wraps a panic raised while reading a Resolution
var ErrResolutionFailed = errors.New("resolution failed")

// Snapshot reads the status and header lines of res once so they can be
// written without calling back into res. A panic while doing so, including
// a nil res, is returned as an error. A panic while iterating the body ends
// the body with an error.
func Snapshot(res Resolution) (out Resolution, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrResolutionFailed, r)
		}
	}()
	return &snapshot{status: res.StatusCode(), headers: res.Headers(), body: res.Body()}, nil
}

type snapshot struct {
	status  int
	headers []Header
	body    iter.Seq2[[]byte, error]
}

func (s *snapshot) StatusCode() int   { return s.status }
func (s *snapshot) Headers() []Header { return s.headers }

func (s *snapshot) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.body == nil {
			return
		}
		// Panics from the consumer's loop body are not ours to recover
		inYield := false
		defer func() {
			if inYield {
				return
			}
			if r := recover(); r != nil {
				yield(nil, fmt.Errorf("%w: body: %v", ErrResolutionFailed, r))
			}
		}()
		for chunk, err := range s.body {
			inYield = true
			if !yield(chunk, err) {
				return
			}
			inYield = false
		}
	}
}

// ErrInvalidRedirect is returned for a redirect status outside 301-308
var ErrInvalidRedirect = errors.New("invalid redirect status")

// Redirect returns a redirect to location. Only 301, 302, 303, 304, 307 and
// 308 are accepted.
func Redirect(code int, location string) (Resolution, error) {
	switch code {
	case 301, 302, 303, 304, 307, 308:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidRedirect, code)
	}
	return &fixed{
		status: code,
		headers: []Header{
			{Name: HeaderLocation, Value: location},
			{Name: HeaderContentLength, Value: "0"},
		},
	}, nil
}

// WithHeaders wraps res, adding headers it does not already set
func WithHeaders(res Resolution, headers ...Header) Resolution {
	if len(headers) == 0 {
		return res
	}
	return &decorated{Resolution: res, extra: headers}
}

type decorated struct {
	Resolution
	extra []Header
}

func (d *decorated) Headers() []Header {
	return mergeHeaders(d.Resolution.Headers(), d.extra)
}

// Merge combines two resolutions. The status and headers of left win over
// right; bodies are concatenated left then right.
func Merge(left, right Resolution) Resolution {
	return &merged{left: left, right: right}
}

type merged struct {
	left, right Resolution
}

func (m *merged) StatusCode() int { return m.left.StatusCode() }

func (m *merged) Headers() []Header {
	lh, rh := m.left.Headers(), m.right.Headers()
	ll, lok := contentLength(lh)
	rl, rok := contentLength(rh)

	out := mergeHeaders(withoutHeader(lh, HeaderContentLength), withoutHeader(rh, HeaderContentLength))
	if lok && rok {
		out = append(out, Header{Name: HeaderContentLength, Value: strconv.FormatInt(ll+rl, 10)})
	}
	return out
}

func (m *merged) Body() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for chunk, err := range m.left.Body() {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
		for chunk, err := range m.right.Body() {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// HeaderValue returns the first header named name, case-insensitively
func HeaderValue(headers []Header, name string) (string, bool) {
	name = textproto.CanonicalMIMEHeaderKey(name)
	for _, h := range headers {
		if textproto.CanonicalMIMEHeaderKey(h.Name) == name {
			return h.Value, true
		}
	}
	return "", false
}

// mergeHeaders appends the entries of extra whose names base lacks
func mergeHeaders(base, extra []Header) []Header {
	out := make([]Header, 0, len(base)+len(extra))
	out = append(out, base...)
	for _, h := range extra {
		if _, ok := HeaderValue(base, h.Name); !ok {
			out = append(out, h)
		}
	}
	return out
}

func withoutHeader(headers []Header, name string) []Header {
	name = textproto.CanonicalMIMEHeaderKey(name)
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if textproto.CanonicalMIMEHeaderKey(h.Name) != name {
			out = append(out, h)
		}
	}
	return out
}

func contentLength(headers []Header) (int64, bool) {
	v, ok := HeaderValue(headers, HeaderContentLength)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	ErrMalformedRequest    = errors.New("malformed HTTP request")
	ErrHeaderTooLarge      = errors.New("request header too large")
	ErrBodyTooLarge        = errors.New("request body too large")
	ErrUnsupportedTransfer = errors.New("unsupported transfer encoding")
)

// Default parser limits
const (
	DefaultMaxHeaderBytes = 1 << 16
	DefaultMaxBodyBytes   = 10 << 20
)

// Parser turns the bytes of one connection into a Request. Implementations
// return an error wrapping ErrMalformedRequest, ErrHeaderTooLarge or
// ErrBodyTooLarge for a request that cannot be served.
type Parser interface {
	Parse(r *bufio.Reader) (*Request, error)
}

// Limits bounds how much a parser reads before giving up
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return l
}

// TextParser reads the request line, headers and a Content-Length body.
type TextParser struct {
	Limits Limits
}

// NewTextParser creates a parser with the given limits
func NewTextParser(limits Limits) *TextParser {
	return &TextParser{Limits: limits.withDefaults()}
}

// Parse reads a single request from r
func (p *TextParser) Parse(r *bufio.Reader) (*Request, error) {
	limits := p.Limits.withDefaults()
	budget := limits.MaxHeaderBytes

	line, err := readLine(r, &budget)
	if err != nil {
		return nil, err
	}

	req := AcquireRequest()
	if err := parseRequestLine(req, line); err != nil {
		ReleaseRequest(req)
		return nil, err
	}

	for {
		line, err := readLine(r, &budget)
		if err != nil {
			ReleaseRequest(req)
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		if err := parseHeaderLine(req, line); err != nil {
			ReleaseRequest(req)
			return nil, err
		}
	}

	if err := readBody(req, r, limits.MaxBodyBytes); err != nil {
		ReleaseRequest(req)
		return nil, err
	}

	return req, nil
}

// readLine returns one line without its terminator, charging its length
// against the remaining header budget.
func readLine(r *bufio.Reader, budget *int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		*budget -= len(chunk)
		if *budget < 0 {
			return nil, ErrHeaderTooLarge
		}
		line = append(line, chunk...)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return nil, fmt.Errorf("%w: unexpected end of header", ErrMalformedRequest)
		}
		return nil, err
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

// ParseMethod validates a method token. Matching is case-sensitive, so
// "get" is kept as an extension method rather than folded to GET.
func ParseMethod(s string) (Method, error) {
	// A method is an HTTP token, the same grammar as a header name
	if !httpguts.ValidHeaderFieldName(s) {
		return "", fmt.Errorf("%w: invalid method %q", ErrMalformedRequest, s)
	}
	return Method(s), nil
}

// parseRequestLine parses METHOD TARGET PROTO
func parseRequestLine(req *Request, line []byte) error {
	method, rest, ok := strings.Cut(string(line), " ")
	if !ok {
		return fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}
	target, proto, ok := strings.Cut(rest, " ")
	if !ok || strings.Contains(proto, " ") {
		return fmt.Errorf("%w: request line %q", ErrMalformedRequest, line)
	}

	m, err := ParseMethod(method)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(proto, "HTTP/") {
		return fmt.Errorf("%w: invalid protocol %q", ErrMalformedRequest, proto)
	}

	req.Method = m
	req.Proto = proto
	return parseTarget(req, target)
}

// parseTarget splits the request target into path and decoded query
func parseTarget(req *Request, target string) error {
	if !strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: invalid target %q", ErrMalformedRequest, target)
	}

	path, rawQuery, _ := strings.Cut(target, "?")
	req.Path = path
	req.RawQuery = rawQuery

	if rawQuery == "" {
		return nil
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fmt.Errorf("%w: query: %v", ErrMalformedRequest, err)
	}
	for name, vs := range values {
		req.SetQuery(name, vs[0])
	}
	return nil
}

// parseHeaderLine parses a single "Name: value" line
func parseHeaderLine(req *Request, line []byte) error {
	name, value, ok := bytes.Cut(line, []byte(":"))
	if !ok {
		return fmt.Errorf("%w: header line %q", ErrMalformedRequest, line)
	}

	key := string(name)
	val := string(bytes.TrimSpace(value))
	if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(val) {
		return fmt.Errorf("%w: invalid header %q", ErrMalformedRequest, key)
	}

	req.AddHeader(key, val)
	return nil
}

// readBody reads exactly Content-Length bytes
func readBody(req *Request, r *bufio.Reader, maxBody int64) error {
	if te := req.Header("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		return fmt.Errorf("%w: %s", ErrUnsupportedTransfer, te)
	}

	cl := req.Header("Content-Length")
	if cl == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: content-length %q", ErrMalformedRequest, cl)
	}
	if n > maxBody {
		return ErrBodyTooLarge
	}
	if n == 0 {
		return nil
	}

	if int64(cap(req.Body)) < n {
		req.Body = make([]byte, n)
	}
	req.Body = req.Body[:n]
	if _, err := io.ReadFull(r, req.Body); err != nil {
		return fmt.Errorf("%w: short body: %v", ErrMalformedRequest, err)
	}
	return nil
}

// StatusForError maps a parse error to the response status
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return 413
	case errors.Is(err, ErrHeaderTooLarge):
		return 431
	case errors.Is(err, ErrUnsupportedTransfer):
		return 501
	default:
		return 400
	}
}

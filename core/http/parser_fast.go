package http

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// FastParser reads requests with fasthttp's request reader. Unlike
// TextParser it also accepts chunked bodies. The header size is bounded by
// the size of the bufio.Reader it is given.
type FastParser struct {
	Limits Limits
}

// NewFastParser creates a fasthttp-backed parser with the given limits
func NewFastParser(limits Limits) *FastParser {
	return &FastParser{Limits: limits.withDefaults()}
}

// Parse reads a single request from r
func (p *FastParser) Parse(r *bufio.Reader) (*Request, error) {
	limits := p.Limits.withDefaults()

	fr := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(fr)

	if err := fr.ReadLimitBody(r, int(limits.MaxBodyBytes)); err != nil {
		if errors.Is(err, fasthttp.ErrBodyTooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	method, err := ParseMethod(string(fr.Header.Method()))
	if err != nil {
		return nil, err
	}

	req := AcquireRequest()
	req.Method = method
	req.Proto = string(fr.Header.Protocol())

	if err := parseTarget(req, string(fr.Header.RequestURI())); err != nil {
		ReleaseRequest(req)
		return nil, err
	}

	fr.Header.VisitAll(func(k, v []byte) {
		req.AddHeader(string(k), string(v))
	})
	req.Body = append(req.Body[:0], fr.Body()...)

	return req, nil
}

package middleware

import (
	"github.com/searchktools/fast-dispatch/core/http"
)

type outcomeKind uint8

const (
	kindNext outcomeKind = iota
	kindInvalid
	kindInvalidEmpty
)

// Outcome is the verdict of one middleware step: continue to the next
// step, or stop with a Resolution.
type Outcome struct {
	kind       outcomeKind
	resolution http.Resolution
	status     int
}

// Next lets the request continue down the chain
func Next() Outcome {
	return Outcome{kind: kindNext}
}

// Invalid stops the chain and answers with res. A nil res is answered with
// a bare 500.
func Invalid(res http.Resolution) Outcome {
	return Outcome{kind: kindInvalid, resolution: res}
}

// InvalidEmpty stops the chain and answers with a body-less status
func InvalidEmpty(status int) Outcome {
	return Outcome{kind: kindInvalidEmpty, status: status}
}

// IsNext reports whether the outcome continues the chain
func (o Outcome) IsNext() bool {
	return o.kind == kindNext
}

// Resolution returns the response carried by a short-circuit outcome, or
// nil for Next.
func (o Outcome) Resolution() http.Resolution {
	switch o.kind {
	case kindInvalid:
		if o.resolution == nil {
			return http.Status(500)
		}
		return o.resolution
	case kindInvalidEmpty:
		return http.Status(o.status)
	}
	return nil
}

// Step is a middleware step. Steps may attach request-scoped data but must
// not change the path parameters.
type Step func(req *http.Request) Outcome

// Pipeline is the ordered global middleware chain
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		steps: make([]Step, 0, 8),
	}
}

// Use appends steps in registration order
func (p *Pipeline) Use(steps ...Step) *Pipeline {
	for _, s := range steps {
		if s != nil {
			p.steps = append(p.steps, s)
		}
	}
	return p
}

// Len returns the number of global steps
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Execute runs the global steps, then the route steps, then handler. The
// first short-circuit ends the run and its Resolution is returned. Panics
// from steps or the handler propagate to the caller.
func (p *Pipeline) Execute(req *http.Request, route []Step, handler http.Handler) http.Resolution {
	if res, stopped := run(p.steps, req); stopped {
		return res
	}
	if res, stopped := run(route, req); stopped {
		return res
	}
	return handler(req)
}

func run(steps []Step, req *http.Request) (http.Resolution, bool) {
	for _, step := range steps {
		if out := step(req); !out.IsNext() {
			return out.Resolution(), true
		}
	}
	return nil, false
}

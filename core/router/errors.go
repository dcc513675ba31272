package router

import (
	"errors"
	"fmt"

	"github.com/searchktools/fast-dispatch/core/http"
)

var (
	ErrRouteConflict  = errors.New("route conflict")
	ErrMalformedRoute = errors.New("malformed route")
	ErrNilHandler     = errors.New("nil route handler")
	ErrNotFound       = errors.New("route not found")
	ErrSealed         = errors.New("route table sealed")
)

// RouteError describes a rejected registration
type RouteError struct {
	Method http.Method
	Path   string
	Reason string
	Err    error
}

func (e *RouteError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s %s", e.Err, e.Method, e.Path)
	}
	return fmt.Sprintf("%v: %s %s: %s", e.Err, e.Method, e.Path, e.Reason)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

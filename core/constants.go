package core

import "time"

// Engine defaults
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Route labels used for requests that did not match a registered route
const (
	routeMissing   = "missing"
	routeUnmatched = "unmatched"
	routeInvalid   = "invalid"
)

package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNilDependency   = errors.New("nil dependency")
)

package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("audit record not found")
	ErrUnsupported = errors.New("unsupported store backend")
)

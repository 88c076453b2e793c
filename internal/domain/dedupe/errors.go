package dedupe

import "errors"

// Sentinel kinds for duplicate detector errors.
var (
	ErrUnavailable = errors.New("duplicate store unavailable")
	ErrCapacity    = errors.New("duplicate store at capacity")
)

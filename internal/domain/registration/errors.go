package registration

import "errors"

// Sentinel kinds for registration errors.
var (
	ErrInvalidPolicy   = errors.New("invalid registration policy")
	ErrDuplicateClient = errors.New("duplicate client registration")
)

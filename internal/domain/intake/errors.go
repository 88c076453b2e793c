package intake

import "errors"

// Sentinel kinds for pipeline construction errors.
var (
	ErrNilCollaborator = errors.New("intake: nil collaborator")
)

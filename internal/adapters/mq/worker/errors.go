package worker

import "errors"

// ErrStillRunning reports a worker that did not return after being stopped.
var ErrStillRunning = errors.New("worker still running")

package testevents

import "time"

// Push header values.
const (
	ContentTypeSET = "application/secevent+jwt"
	AcceptJSON     = "application/json"
)

// Bearer token lifetime.
const (
	BearerTTL = 10 * time.Minute
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	ProgressInterval     = time.Second
)

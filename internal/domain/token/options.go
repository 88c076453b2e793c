package token

import "time"

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithClock replaces the wall clock used for time claims.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// Package dedupe decides whether a security event token is seen for the first time.
package dedupe

import (
	"context"
	"strconv"

	"github.com/okian/uruk/internal/domain/token"
)

// Key identifies a token for replay detection: the issuer and its jti.
type Key struct {
	Issuer string
	JTI    string
}

// KeyOf returns the replay key of a decoded token.
func KeyOf(d token.Decoded) Key {
	return Key{Issuer: d.Issuer, JTI: d.JTI}
}

// String encodes the key unambiguously; the issuer is length-prefixed so that
// ("a:b", "c") and ("a", "b:c") never collide.
func (k Key) String() string {
	return strconv.Itoa(len(k.Issuer)) + ":" + k.Issuer + ":" + k.JTI
}

// Detector records keys and reports first admissions.
type Detector interface {
	// TryAdmit atomically records k. It returns true when k was not seen within
	// the retention window, false for a replay. Concurrent calls with the same key
	// admit exactly one. An error means no decision could be made.
	TryAdmit(ctx context.Context, k Key) (bool, error)
}

type disabled struct{}

// Disabled returns a detector that admits every key, whatever the context.
func Disabled() Detector { return disabled{} }

func (disabled) TryAdmit(context.Context, Key) (bool, error) { return true, nil }

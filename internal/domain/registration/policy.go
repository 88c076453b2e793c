// Package registration holds the per-client validation policies of the receiver.
package registration

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Policy is the validation policy of one registered client. It is immutable once built.
type Policy struct {
	clientID    string
	algorithm   string
	key         any
	audience    string
	issuer      string
	maxTokenAge time.Duration
	clockSkew   time.Duration
	critical    map[string]struct{}
	decryption  *Decryption
}

// Decryption carries the key material for encrypted tokens.
type Decryption struct {
	key                any
	keyAlgorithms      []jose.KeyAlgorithm
	contentEncryptions []jose.ContentEncryption
}

// NewPolicy builds a policy for clientID. Signing algorithm, verification key and
// audience are mandatory; a key that cannot serve the algorithm is rejected here.
func NewPolicy(clientID, algorithm string, key any, audience string, opts ...Option) (*Policy, error) {
	p := &Policy{
		clientID:  strings.TrimSpace(clientID),
		algorithm: algorithm,
		key:       key,
		audience:  audience,
		critical:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidPolicy)
	}
	if p.audience == "" {
		return nil, fmt.Errorf("%w: %s: audience is required", ErrInvalidPolicy, p.clientID)
	}
	if err := checkSigningKey(algorithm, key); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPolicy, p.clientID, err)
	}
	if p.maxTokenAge < 0 || p.clockSkew < 0 {
		return nil, fmt.Errorf("%w: %s: durations must not be negative", ErrInvalidPolicy, p.clientID)
	}
	if d := p.decryption; d != nil {
		if d.key == nil || len(d.keyAlgorithms) == 0 || len(d.contentEncryptions) == 0 {
			return nil, fmt.Errorf("%w: %s: decryption needs a key, key algorithms and content encryptions",
				ErrInvalidPolicy, p.clientID)
		}
	}
	return p, nil
}

func checkSigningKey(algorithm string, key any) error {
	if algorithm == "" || strings.EqualFold(algorithm, "none") {
		return fmt.Errorf("signing algorithm %q is not allowed", algorithm)
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return fmt.Errorf("unknown signing algorithm %q", algorithm)
	}

	var ok bool
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		b, isBytes := key.([]byte)
		ok = isBytes && len(b) > 0
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		_, ok = key.(*rsa.PublicKey)
	case *jwt.SigningMethodECDSA:
		_, ok = key.(*ecdsa.PublicKey)
	case *jwt.SigningMethodEd25519:
		_, ok = key.(ed25519.PublicKey)
	}
	if !ok {
		return fmt.Errorf("key of type %T cannot verify %s", key, algorithm)
	}
	return nil
}

// ClientID returns the registered client identifier.
func (p *Policy) ClientID() string { return p.clientID }

// Algorithm returns the only JWS algorithm accepted from the client.
func (p *Policy) Algorithm() string { return p.algorithm }

// VerificationKey returns the key used to verify signatures.
func (p *Policy) VerificationKey() any { return p.key }

// Audience returns the audience value tokens must carry.
func (p *Policy) Audience() string { return p.audience }

// Issuer returns the expected issuer, or "" when any issuer is accepted.
func (p *Policy) Issuer() string { return p.issuer }

// MaxTokenAge returns the maximum accepted age of a token. Zero means unbounded.
func (p *Policy) MaxTokenAge() time.Duration { return p.maxTokenAge }

// ClockSkew returns the tolerance applied to time claims.
func (p *Policy) ClockSkew() time.Duration { return p.clockSkew }

// SupportsCritical reports whether the named critical header is understood.
func (p *Policy) SupportsCritical(name string) bool {
	_, ok := p.critical[name]
	return ok
}

// CriticalHeaders returns the supported critical header names, sorted.
func (p *Policy) CriticalHeaders() []string {
	names := make([]string, 0, len(p.critical))
	for n := range p.critical {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Decryption returns the decryption settings, or nil when encrypted tokens are not accepted.
func (p *Policy) Decryption() *Decryption { return p.decryption }

// Key returns the content decryption key.
func (d *Decryption) Key() any { return d.key }

// KeyAlgorithms returns the accepted key management algorithms.
func (d *Decryption) KeyAlgorithms() []jose.KeyAlgorithm {
	return append([]jose.KeyAlgorithm(nil), d.keyAlgorithms...)
}

// ContentEncryptions returns the accepted content encryption algorithms.
func (d *Decryption) ContentEncryptions() []jose.ContentEncryption {
	return append([]jose.ContentEncryption(nil), d.contentEncryptions...)
}

// AllowsKeyAlgorithm reports whether alg is accepted.
func (d *Decryption) AllowsKeyAlgorithm(alg string) bool {
	return slices.Contains(d.keyAlgorithms, jose.KeyAlgorithm(alg))
}

// AllowsContentEncryption reports whether enc is accepted.
func (d *Decryption) AllowsContentEncryption(enc string) bool {
	return slices.Contains(d.contentEncryptions, jose.ContentEncryption(enc))
}

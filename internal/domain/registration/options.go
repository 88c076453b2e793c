package registration

import (
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Option applies an optional setting to a Policy under construction.
type Option func(*Policy)

// WithIssuer pins the expected "iss" claim. Empty means any issuer.
func WithIssuer(issuer string) Option {
	return func(p *Policy) {
		p.issuer = issuer
	}
}

// WithMaxTokenAge bounds how old "iat" may be. Zero disables the bound.
func WithMaxTokenAge(age time.Duration) Option {
	return func(p *Policy) {
		p.maxTokenAge = age
	}
}

// WithClockSkew sets the tolerance applied to exp, nbf and iat.
func WithClockSkew(skew time.Duration) Option {
	return func(p *Policy) {
		p.clockSkew = skew
	}
}

// WithCriticalHeaders lists the "crit" header names the receiver understands.
func WithCriticalHeaders(names ...string) Option {
	return func(p *Policy) {
		for _, n := range names {
			p.critical[n] = struct{}{}
		}
	}
}

// WithDecryption enables encrypted tokens for the client.
func WithDecryption(key any, keyAlgorithms []jose.KeyAlgorithm, encryptions []jose.ContentEncryption) Option {
	return func(p *Policy) {
		p.decryption = &Decryption{
			key:                key,
			keyAlgorithms:      append([]jose.KeyAlgorithm(nil), keyAlgorithms...),
			contentEncryptions: append([]jose.ContentEncryption(nil), encryptions...),
		}
	}
}

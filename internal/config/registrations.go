package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/uruk/internal/domain/registration"
)

const pemPrefix = "-----BEGIN"

// BuildRegistry converts the configured registrations into a registry.
// Registrations without an audience inherit the receiver audience.
func (c *Config) BuildRegistry(_ context.Context) (*registration.Registry, error) {
	policies := make([]*registration.Policy, 0, len(c.Registrations))
	for i := range c.Registrations {
		p, err := c.Registrations[i].policy(c.Audience)
		if err != nil {
			return nil, fmt.Errorf("%w: registrations[%d]: %w", ErrInvalidConfig, i, err)
		}
		policies = append(policies, p)
	}
	reg, err := registration.NewRegistry(policies...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return reg, nil
}

func (r *Registration) policy(defaultAudience string) (*registration.Policy, error) {
	key, err := r.verificationKey()
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", r.ClientID, err)
	}

	audience := r.Audience
	if audience == "" {
		audience = defaultAudience
	}

	opts := []registration.Option{
		registration.WithIssuer(r.Issuer),
		registration.WithMaxTokenAge(r.MaxTokenAge),
		registration.WithClockSkew(r.ClockSkew),
		registration.WithCriticalHeaders(r.CriticalHeaders...),
	}
	if r.DecryptionKey != "" {
		dk, err := decryptionKey(r.DecryptionKey)
		if err != nil {
			return nil, fmt.Errorf("client %q: decryption_key: %w", r.ClientID, err)
		}
		keyAlgs := make([]jose.KeyAlgorithm, len(r.KeyAlgorithms))
		for i, a := range r.KeyAlgorithms {
			keyAlgs[i] = jose.KeyAlgorithm(a)
		}
		encs := make([]jose.ContentEncryption, len(r.ContentEncryptions))
		for i, e := range r.ContentEncryptions {
			encs[i] = jose.ContentEncryption(e)
		}
		opts = append(opts, registration.WithDecryption(dk, keyAlgs, encs))
	}

	return registration.NewPolicy(r.ClientID, r.Algorithm, key, audience, opts...)
}

func (r *Registration) verificationKey() (any, error) {
	switch {
	case strings.HasPrefix(r.Algorithm, "HS"):
		if r.KeyEncoding == "base64" {
			b, err := base64.StdEncoding.DecodeString(r.Key)
			if err != nil {
				return nil, fmt.Errorf("key: %w", err)
			}
			return b, nil
		}
		return []byte(r.Key), nil
	case strings.HasPrefix(r.Algorithm, "RS"), strings.HasPrefix(r.Algorithm, "PS"):
		return jwt.ParseRSAPublicKeyFromPEM([]byte(r.Key))
	case strings.HasPrefix(r.Algorithm, "ES"):
		return jwt.ParseECPublicKeyFromPEM([]byte(r.Key))
	case r.Algorithm == "EdDSA":
		return jwt.ParseEdPublicKeyFromPEM([]byte(r.Key))
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", r.Algorithm)
	}
}

// decryptionKey accepts a PEM private key (RSA or EC) or a base64 symmetric key.
func decryptionKey(s string) (any, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, pemPrefix) {
		return base64.StdEncoding.DecodeString(s)
	}
	if k, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s)); err == nil {
		return k, nil
	}
	return jwt.ParseECPrivateKeyFromPEM([]byte(s))
}

package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator identifies the transmitter behind a request.
type Authenticator interface {
	// Authenticate returns the client id, or an error wrapping ErrUnauthenticated.
	Authenticate(r *http.Request) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (string, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

// BearerAuthenticator accepts an HS256 bearer JWT and names the client by its "sub" claim.
type BearerAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewBearerAuthenticator verifies bearer tokens signed with secret. Empty issuer
// or audience disables that check.
func NewBearerAuthenticator(secret []byte, issuer, audience string) *BearerAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &BearerAuthenticator{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(opts...),
	}
}

// Authenticate implements Authenticator.
func (a *BearerAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	var claims jwt.RegisteredClaims
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: bearer token has no subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

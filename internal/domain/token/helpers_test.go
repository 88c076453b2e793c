package token_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/uruk/internal/domain/registration"
)

var (
	hmacKey  = []byte(strings.Repeat("a", 128))
	otherKey = []byte(strings.Repeat("b", 128))
	jweKey   = []byte("0123456789abcdef")
	fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

// setClaims returns the claims of a minimal valid SET from Bob to uruk.
func setClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "Bob",
		"aud": "uruk",
		"iat": fixedNow.Add(-time.Minute).Unix(),
		"jti": "abc123",
		"events": map[string]any{
			"test": map[string]any{},
		},
	}
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims, header map[string]any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	tok.Header["typ"] = "secevent+jwt"
	for k, v := range header {
		if v == nil {
			delete(tok.Header, k)
			continue
		}
		tok.Header[k] = v
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	return sign(t, jwt.SigningMethodHS256, hmacKey, claims, nil)
}

// rawToken assembles a compact token from a literal header without signing it.
func rawToken(t *testing.T, header map[string]any, segments int) string {
	t.Helper()
	b, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	parts := []string{base64.RawURLEncoding.EncodeToString(b)}
	for i := 1; i < segments; i++ {
		parts = append(parts, base64.RawURLEncoding.EncodeToString([]byte("x")))
	}
	return strings.Join(parts, ".")
}

func encrypt(t *testing.T, plaintext string, enc jose.ContentEncryption, opts *jose.EncrypterOptions) string {
	t.Helper()
	e, err := jose.NewEncrypter(enc, jose.Recipient{Algorithm: jose.DIRECT, Key: jweKey}, opts)
	if err != nil {
		t.Fatalf("encrypter: %v", err)
	}
	obj, err := e.Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	s, err := obj.CompactSerialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return s
}

func bobPolicy(t *testing.T, opts ...registration.Option) *registration.Policy {
	t.Helper()
	p, err := registration.NewPolicy("Bob", "HS256", hmacKey, "uruk", opts...)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func withJWE() registration.Option {
	return registration.WithDecryption(jweKey,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A128GCM})
}

func splitToken(s string) []string {
	return strings.Split(s, ".")
}

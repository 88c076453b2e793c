package testevents

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/okian/uruk/pkg/logger"
)

// Minter signs SETs and bearer tokens for a sender run.
type Minter struct {
	issuer     string
	audience   string
	signingKey []byte

	clientID       string
	bearerSecret   []byte
	bearerIssuer   string
	bearerAudience string

	now func() time.Time
}

// NewMinter builds a Minter from the run configuration.
func NewMinter(config *Config) *Minter {
	return &Minter{
		issuer:         config.Issuer,
		audience:       config.Audience,
		signingKey:     []byte(config.SigningKey),
		clientID:       config.ClientID,
		bearerSecret:   []byte(config.BearerSecret),
		bearerIssuer:   config.BearerIssuer,
		bearerAudience: config.BearerAudience,
		now:            time.Now,
	}
}

// MintSET returns an HS256 SET carrying a single test event.
func (m *Minter) MintSET(jti string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": m.issuer,
		"aud": m.audience,
		"iat": m.now().Unix(),
		"jti": jti,
		"events": map[string]any{
			"test": map[string]any{},
		},
	})
	tok.Header["typ"] = "secevent+jwt"

	s, err := tok.SignedString(m.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign SET %s: %w", jti, err)
	}
	return s, nil
}

// BearerToken returns the HS256 token that authenticates the client on push.
func (m *Minter) BearerToken() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   m.clientID,
		Issuer:    m.bearerIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(BearerTTL)),
	}
	if m.bearerAudience != "" {
		claims.Audience = jwt.ClaimStrings{m.bearerAudience}
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.bearerSecret)
	if err != nil {
		return "", fmt.Errorf("sign bearer token: %w", err)
	}
	return s, nil
}

// generateTokens mints NumEvents SETs with random jti values.
func generateTokens(ctx context.Context, config *Config, minter *Minter, stats *Stats) ([]Token, error) {
	logger.Get().Info(ctx, "minting tokens", logger.Int("count", config.NumEvents))

	tokens := make([]Token, 0, config.NumEvents)
	for i := 0; i < config.NumEvents; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		jti := uuid.NewString()
		s, err := minter.MintSET(jti)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, Token{JTI: jti, JWT: s})
	}

	stats.TokensMinted = len(tokens)
	logger.Get().Info(ctx, "tokens minted", logger.Int("count", len(tokens)))
	return tokens, nil
}

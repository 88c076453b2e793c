// Package repository stores accepted audit records downstream of the intake queue.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okian/uruk/internal/domain/dedupe"
	"github.com/okian/uruk/internal/domain/model"
)

// Store persists audit records. Append must be idempotent on the record's
// issuer and jti, since a worker may retry after a partial failure.
type Store interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	Close() error
}

// Named is implemented by stores that report a backend name for metrics and logs.
type Named interface {
	Name() string
}

// NameOf returns the backend name of s, or "store".
func NameOf(s Store) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "store"
}

// envelope is the wire form of a record for message brokers and JSON columns.
type envelope struct {
	ID         string                     `json:"id"`
	ClientID   string                     `json:"client_id"`
	ReceivedAt time.Time                  `json:"received_at"`
	Issuer     string                     `json:"iss"`
	Audience   []string                   `json:"aud"`
	JTI        string                     `json:"jti"`
	IssuedAt   time.Time                  `json:"iat"`
	Subject    string                     `json:"sub,omitempty"`
	TxnID      string                     `json:"txn,omitempty"`
	Events     map[string]json.RawMessage `json:"events"`
	Token      string                     `json:"token"`
}

func newEnvelope(rec model.AuditRecord) envelope { //nolint:gocritic // hugeParam: records are values end to end
	return envelope{
		ID:         rec.ID.String(),
		ClientID:   rec.ClientID,
		ReceivedAt: rec.ReceivedAt,
		Issuer:     rec.Token.Issuer,
		Audience:   rec.Token.Audience,
		JTI:        rec.Token.JTI,
		IssuedAt:   rec.Token.IssuedAt,
		Subject:    rec.Token.Subject,
		TxnID:      rec.Token.TransactionID,
		Events:     rec.Token.Events,
		Token:      string(rec.Raw),
	}
}

func recordKey(rec model.AuditRecord) string { //nolint:gocritic // hugeParam: records are values end to end
	return dedupe.KeyOf(rec.Token).String()
}

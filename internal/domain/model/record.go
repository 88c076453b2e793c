// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/uruk/internal/domain/token"
)

// AuditRecord is an accepted security event token on its way to storage.
type AuditRecord struct {
	ID         uuid.UUID     // receiver-assigned record id
	Raw        []byte        // token exactly as received
	Token      token.Decoded // validated content
	ClientID   string        // registration that delivered the token
	ReceivedAt time.Time
}

// NewAuditRecord builds a record with a fresh id. raw is copied.
func NewAuditRecord(raw []byte, tok token.Decoded, clientID string, receivedAt time.Time) AuditRecord {
	return AuditRecord{
		ID:         uuid.New(),
		Raw:        append([]byte(nil), raw...),
		Token:      tok,
		ClientID:   clientID,
		ReceivedAt: receivedAt.UTC(),
	}
}

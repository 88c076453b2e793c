package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/uruk/internal/domain/model"
	"github.com/okian/uruk/pkg/metrics"
)

// MemoryStore keeps records in process memory. It is meant for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]model.AuditRecord
	byKey map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]model.AuditRecord),
		byKey: make(map[string]uuid.UUID),
	}
}

// Name implements Named.
func (s *MemoryStore) Name() string { return "memory" }

// Append stores rec unless a record with the same issuer and jti is already held.
func (s *MemoryStore) Append(ctx context.Context, rec model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byKey[key]; dup {
		return nil
	}
	s.byID[rec.ID] = rec
	s.byKey[key] = rec.ID
	metrics.UpdateStoredRecords(len(s.byID))
	return nil
}

// Get returns the record with the given id.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return model.AuditRecord{}, ErrNotFound
	}
	return rec, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// List returns the records delivered by clientID, oldest first. An empty
// clientID lists every record.
func (s *MemoryStore) List(_ context.Context, clientID string) []model.AuditRecord {
	s.mu.RLock()
	out := make([]model.AuditRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		if clientID == "" || rec.ClientID == clientID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

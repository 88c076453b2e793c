package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/uruk/internal/domain/model"
)

const defaultTable = "audit_records"

// PostgresStore writes records to PostgreSQL. The (issuer, jti) unique
// constraint makes Append idempotent.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStoreFromPool(pool, opts...), nil
}

// NewPostgresStoreFromPool wraps an existing pool. Close releases the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool, table: defaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Named.
func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// EnsureSchema creates the records table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			client_id   TEXT NOT NULL,
			issuer      TEXT NOT NULL,
			jti         TEXT NOT NULL,
			audience    TEXT[] NOT NULL,
			issued_at   TIMESTAMPTZ NOT NULL,
			received_at TIMESTAMPTZ NOT NULL,
			subject     TEXT,
			txn         TEXT,
			events      JSONB NOT NULL,
			token       TEXT NOT NULL,
			UNIQUE (issuer, jti)
		)`, s.ident())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Append inserts rec; a record with the same issuer and jti is left untouched.
func (s *PostgresStore) Append(ctx context.Context, rec model.AuditRecord) error { //nolint:gocritic // hugeParam: records are values end to end
	events, err := json.Marshal(rec.Token.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, client_id, issuer, jti, audience, issued_at, received_at, subject, txn, events, token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
		ON CONFLICT (issuer, jti) DO NOTHING`, s.ident())
	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.ClientID,
		rec.Token.Issuer,
		rec.Token.JTI,
		rec.Token.Audience,
		rec.Token.IssuedAt,
		rec.ReceivedAt,
		rec.Token.Subject,
		rec.Token.TransactionID,
		events,
		string(rec.Raw),
	)
	if err != nil {
		return fmt.Errorf("insert audit record %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads the record with the given id.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (model.AuditRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, client_id, issuer, jti, audience, issued_at, received_at,
		       COALESCE(subject, ''), COALESCE(txn, ''), events, token
		FROM %s WHERE id = $1`, s.ident())

	var (
		rec    model.AuditRecord
		events []byte
		raw    string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.ClientID,
		&rec.Token.Issuer,
		&rec.Token.JTI,
		&rec.Token.Audience,
		&rec.Token.IssuedAt,
		&rec.ReceivedAt,
		&rec.Token.Subject,
		&rec.Token.TransactionID,
		&events,
		&raw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AuditRecord{}, ErrNotFound
	}
	if err != nil {
		return model.AuditRecord{}, fmt.Errorf("select audit record %s: %w", id, err)
	}
	rec.Raw = []byte(raw)
	if err := json.Unmarshal(events, &rec.Token.Events); err != nil {
		return model.AuditRecord{}, fmt.Errorf("decode events: %w", err)
	}
	return rec, nil
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident())).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}


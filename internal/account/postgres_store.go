package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists accounts in PostgreSQL. Reference vectors are
// stored as JSONB; at the scale of a handful of enrollments per account
// there is no need for a vector column type.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	var (
		a        Account
		attr     string
		status   string
		refsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, attribute, references_json, created_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &status, &attr, &refsJSON, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	a.Status = Status(status)
	a.Attribute = Attribute(attr)
	if len(refsJSON) > 0 {
		if err := json.Unmarshal(refsJSON, &a.References); err != nil {
			return nil, fmt.Errorf("decode reference vectors: %w", err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Put inserts or replaces an account. Used by seeding and enrollment flows.
func (s *PostgresStore) Put(ctx context.Context, a *Account) error {
	refsJSON, err := json.Marshal(a.References)
	if err != nil {
		return fmt.Errorf("encode reference vectors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, status, attribute, references_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    attribute = EXCLUDED.attribute,
		    references_json = EXCLUDED.references_json,
		    updated_at = NOW()
	`, a.ID, a.Name, string(a.Status), string(a.Attribute), refsJSON, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists incidents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed incident store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, inc *Incident) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, account_id, transaction_id, capture, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inc.ID, inc.AccountID, inc.TransactionID, inc.Capture, inc.Reason, string(inc.Status), inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Incident, error) {
	var (
		inc    Incident
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, transaction_id, capture, reason, status, created_at
		FROM incidents
		WHERE id = $1
	`, id).Scan(&inc.ID, &inc.AccountID, &inc.TransactionID, &inc.Capture, &inc.Reason, &status, &inc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	inc.Status = ReviewStatus(status)
	return &inc, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status ReviewStatus, limit int) ([]*Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, transaction_id, capture, reason, status, created_at
		FROM incidents
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Incident
	for rows.Next() {
		var (
			inc Incident
			st  string
		)
		if err := rows.Scan(&inc.ID, &inc.AccountID, &inc.TransactionID, &inc.Capture, &inc.Reason, &st, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		inc.Status = ReviewStatus(st)
		result = append(result, &inc)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status ReviewStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

package risk

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, a *Assessment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, transaction_id, account_id, score, tier, rationale, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		a.ID, a.TransactionID, a.AccountID, a.Score, string(a.Tier), pq.Array(a.Rationale), a.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, score, tier, rationale, evaluated_at
		FROM risk_assessments
		WHERE account_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var (
			a         Assessment
			tier      string
			rationale pq.StringArray
		)
		if err := rows.Scan(&a.ID, &a.TransactionID, &a.AccountID, &a.Score, &tier, &rationale, &a.EvaluatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		a.Tier = Tier(tier)
		a.Rationale = []string(rationale)
		result = append(result, &a)
	}
	return result, rows.Err()
}

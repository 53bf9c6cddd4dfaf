package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, recipient, amount, category, location, score, tier, rationale, status, created_at
		FROM transactions
		WHERE id = $1
	`, id)

	tx, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID string) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, recipient, amount, category, location, score, tier, rationale, status, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Persist(ctx context.Context, tx *Transaction) error {
	var locJSON []byte
	if tx.Location != nil {
		var err error
		locJSON, err = json.Marshal(tx.Location)
		if err != nil {
			return fmt.Errorf("marshal location: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, recipient, amount, category, location, score, tier, rationale, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		tx.ID, tx.AccountID, tx.Recipient, tx.Amount.String(), string(tx.Category),
		locJSON, tx.Score, tx.Tier, pq.Array(tx.Rationale), string(tx.Status), tx.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicateID
		}
		return fmt.Errorf("persist transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTx(row rowScanner) (*Transaction, error) {
	var (
		tx        Transaction
		amountStr string
		category  string
		status    string
		locJSON   []byte
		rationale pq.StringArray
	)
	if err := row.Scan(&tx.ID, &tx.AccountID, &tx.Recipient, &amountStr, &category,
		&locJSON, &tx.Score, &tx.Tier, &rationale, &status, &tx.CreatedAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amountStr, err)
	}
	tx.Amount = amount
	tx.Category = Category(category)
	tx.Status = Status(status)
	tx.Rationale = []string(rationale)
	if len(locJSON) > 0 {
		var loc Geo
		if err := json.Unmarshal(locJSON, &loc); err == nil {
			tx.Location = &loc
		}
	}
	return &tx, nil
}

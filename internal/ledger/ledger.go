// Package ledger holds the transaction record and its persistence contract.
//
// A transaction enters the ledger only after scoring has fully succeeded:
// the workflow persists it with its score, tier, and rationale attached, and
// from then on only the status field changes. The score is never rewritten.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateID         = errors.New("transaction id already exists")
)

// Category is the payment rail a transaction travels over.
type Category string

const (
	CategoryUPI  Category = "UPI"
	CategoryIMPS Category = "IMPS"
	CategoryNEFT Category = "NEFT"
	CategoryRTGS Category = "RTGS"
)

// ValidCategory reports whether c is one of the supported rails.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryUPI, CategoryIMPS, CategoryNEFT, CategoryRTGS:
		return true
	}
	return false
}

// Status is the verification status of a recorded transaction.
// PENDING is the only non-terminal status.
type Status string

const (
	StatusApproved      Status = "APPROVED"
	StatusPending       Status = "PENDING"
	StatusFlaggedByUser Status = "FLAGGED_BY_USER"
	StatusBlockedByUser Status = "BLOCKED_BY_USER"
	StatusBlockedByAI   Status = "BLOCKED_BY_AI"
	StatusCancelled     Status = "CANCELLED"
)

// Blocked reports whether s is a blocked/cancelled terminal status.
// Transactions in these statuses do not count toward velocity totals.
func (s Status) Blocked() bool {
	switch s {
	case StatusFlaggedByUser, StatusBlockedByUser, StatusBlockedByAI, StatusCancelled:
		return true
	}
	return false
}

// Geo is an optional device location attached at submission time.
type Geo struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Place     string  `json:"place,omitempty"` // resolved place name
	City      string  `json:"city,omitempty"`
}

// Transaction is a recorded transaction. Score, Tier and Rationale are set
// exactly once at scoring time; Status is the only field the workflow
// mutates afterwards.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Category  Category        `json:"category"`
	Location  *Geo            `json:"location,omitempty"`
	Score     int             `json:"score"`
	Tier      string          `json:"tier"`
	Rationale []string        `json:"rationale"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store persists transactions.
type Store interface {
	Get(ctx context.Context, id string) (*Transaction, error)
	// History returns all transactions for an account, newest first.
	History(ctx context.Context, accountID string) ([]*Transaction, error)
	Persist(ctx context.Context, tx *Transaction) error
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// Package workflow drives the per-transaction verification state machine.
//
// Every submitted transaction gets its own instance, keyed by transaction
// id. The instance moves through scoring and the verification path the
// policy selects, and stays addressable after resolution until the sweeper
// reclaims it. Nothing is written to the ledger until scoring has fully
// succeeded, so a collaborator failure can never leave a half-persisted
// transaction behind.
package workflow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/policy"
	"github.com/dhruvm848/sentinel/internal/risk"
)

// Sentinel errors returned by the driver surface. Handlers map these to
// HTTP status codes with errors.Is.
var (
	// ErrValidation covers malformed submissions: non-positive amount,
	// empty recipient, unknown category or account.
	ErrValidation = errors.New("invalid transaction")

	// ErrAccountBlocked rejects submissions from blocked accounts.
	ErrAccountBlocked = errors.New("account is blocked")

	// ErrVelocityExceeded rejects a submission that would break a category
	// spending limit. Reported before scoring; no score is produced.
	ErrVelocityExceeded = errors.New("velocity limit exceeded")

	// ErrCollaborator wraps failures of the ledger, account store, or
	// scoring engine. The instance moves to Error and nothing is persisted.
	ErrCollaborator = errors.New("collaborator failure")

	// ErrTerminal rejects operations on an already-resolved transaction.
	ErrTerminal = errors.New("transaction already resolved")

	// ErrIllegalTransition rejects an operation the current state does not
	// accept, e.g. an OTP code for a biometric-path transaction.
	ErrIllegalTransition = errors.New("operation not valid in current state")

	// ErrNotFound means no instance exists for the transaction id.
	ErrNotFound = errors.New("workflow not found")
)

// State is the position of one instance in the verification flow.
type State string

const (
	// StateAwaitingConfirmation holds a high-value transaction before any
	// scoring happens. Nothing is persisted in this state.
	StateAwaitingConfirmation State = "AWAITING_CONFIRMATION"

	// StateAnalyzing is transient: scoring is in progress.
	StateAnalyzing State = "ANALYZING"

	// StateAwaitingUserAction means the transaction is persisted PENDING
	// and the account holder must confirm or deny.
	StateAwaitingUserAction State = "AWAITING_USER_ACTION"

	// StateVerificationOTP waits for the issued one-time code.
	StateVerificationOTP State = "VERIFICATION_OTP"

	// StateVerificationBiometric waits for a live capture or an
	// externally-computed verification result.
	StateVerificationBiometric State = "VERIFICATION_BIOMETRIC"

	// Terminal states.
	StateApproved  State = "APPROVED"
	StateBlocked   State = "BLOCKED"
	StateCancelled State = "CANCELLED"

	// StateError records a collaborator failure. Terminal for the
	// transaction; the account holder starts a new one.
	StateError State = "ERROR"
)

// Terminal reports whether s accepts no further operations.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateBlocked, StateCancelled, StateError:
		return true
	}
	return false
}

// Interactive reports whether s is waiting on the account holder. Only
// interactive instances are subject to abandonment.
func (s State) Interactive() bool {
	switch s {
	case StateAwaitingConfirmation, StateAwaitingUserAction,
		StateVerificationOTP, StateVerificationBiometric:
		return true
	}
	return false
}

// SubmitRequest is one proposed transaction entering the workflow.
type SubmitRequest struct {
	AccountID string
	Recipient string
	Amount    decimal.Decimal
	Category  ledger.Category
	Location  risk.LocationStatus
	Geo       *ledger.Geo // device location when Location is SUCCESS
}

// Snapshot is a read-only view of one instance, safe to hand to callers.
type Snapshot struct {
	TransactionID string      `json:"transactionId"`
	AccountID     string      `json:"accountId"`
	State         State       `json:"state"`
	Score         int         `json:"score,omitempty"`
	Tier          risk.Tier   `json:"tier,omitempty"`
	Rationale     []string    `json:"rationale,omitempty"`
	Path          policy.Path `json:"path,omitempty"`
	Reason        string      `json:"reason,omitempty"` // terminal reason
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// VerificationResult is the outcome of a biometric attempt supplied by an
// external driver via ResolveBiometric.
type VerificationResult struct {
	Match  bool
	Reason string
}

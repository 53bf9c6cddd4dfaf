package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/biometric"
	"github.com/dhruvm848/sentinel/internal/idgen"
	"github.com/dhruvm848/sentinel/internal/incident"
	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/metrics"
	"github.com/dhruvm848/sentinel/internal/notify"
	"github.com/dhruvm848/sentinel/internal/policy"
	"github.com/dhruvm848/sentinel/internal/profile"
	"github.com/dhruvm848/sentinel/internal/risk"
	"github.com/dhruvm848/sentinel/internal/syncutil"
	"github.com/dhruvm848/sentinel/internal/traces"
	"github.com/dhruvm848/sentinel/internal/velocity"
)

// otpDigits is the length of issued one-time codes.
const otpDigits = 6

// typicalCityCount is how many of the account's most frequent cities the
// location signal compares against.
const typicalCityCount = 3

// instance is the mutable per-transaction state. All fields are guarded by
// mu; the blocking biometric call runs outside the lock.
type instance struct {
	mu sync.Mutex

	tx        *ledger.Transaction // persisted only once scoring succeeds
	location  risk.LocationStatus // as reported at submission
	state     State
	score     int
	tier      risk.Tier
	rationale []string
	path      policy.Path
	otpCode   string
	reason    string
	persisted bool
	createdAt time.Time
	updatedAt time.Time
}

func (i *instance) snapshotLocked() *Snapshot {
	return &Snapshot{
		TransactionID: i.tx.ID,
		AccountID:     i.tx.AccountID,
		State:         i.state,
		Score:         i.score,
		Tier:          i.tier,
		Rationale:     append([]string(nil), i.rationale...),
		Path:          i.path,
		Reason:        i.reason,
		CreatedAt:     i.createdAt,
		UpdatedAt:     i.updatedAt,
	}
}

// Service owns all workflow instances and applies the transition rules.
type Service struct {
	ledger    ledger.Store
	accounts  account.Store
	engine    *risk.Engine
	verifier  *biometric.Verifier
	incidents incident.Store
	notifier  notify.Notifier

	highValue decimal.Decimal
	logger    *slog.Logger

	// accountLocks serializes account status writes so two transactions
	// for one account cannot race to an inconsistent status.
	accountLocks syncutil.ShardedMutex

	mu        sync.RWMutex
	instances map[string]*instance
}

// NewService wires the workflow to its collaborators.
func NewService(l ledger.Store, a account.Store, e *risk.Engine, v *biometric.Verifier, inc incident.Store, n notify.Notifier) *Service {
	return &Service{
		ledger:    l,
		accounts:  a,
		engine:    e,
		verifier:  v,
		incidents: inc,
		notifier:  n,
		highValue: policy.DefaultHighValueThreshold,
		logger:    slog.Default(),
		instances: make(map[string]*instance),
	}
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithHighValueThreshold overrides the pre-confirmation gate amount.
func (s *Service) WithHighValueThreshold(t decimal.Decimal) *Service {
	s.highValue = t
	return s
}

// Submit validates a proposed transaction and starts its workflow. High-value
// amounts park in AWAITING_CONFIRMATION until Confirm; everything else is
// scored immediately. Returns the transaction id and a state snapshot.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Snapshot, error) {
	ctx, span := traces.StartSpan(ctx, "workflow.Submit",
		traces.AccountID(req.AccountID),
		traces.Amount(req.Amount.String()),
	)
	defer span.End()

	if req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient must not be empty", ErrValidation)
	}
	if !ledger.ValidCategory(req.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, req.Category)
	}

	acct, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		if err == account.ErrAccountNotFound {
			return nil, fmt.Errorf("%w: unknown account %s", ErrValidation, req.AccountID)
		}
		return nil, fmt.Errorf("%w: load account: %v", ErrCollaborator, err)
	}
	if acct.Status == account.StatusBlocked {
		return nil, fmt.Errorf("%w: account %s", ErrAccountBlocked, req.AccountID)
	}

	history, err := s.ledger.History(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %v", ErrCollaborator, err)
	}

	now := time.Now()
	totals := velocity.Compute(history, req.Category, now)
	if exceeded, msg := velocity.WouldExceed(totals, req.Category, req.Amount); exceeded {
		return nil, fmt.Errorf("%w: %s", ErrVelocityExceeded, msg)
	}

	tx := &ledger.Transaction{
		ID:        idgen.WithPrefix("txn_"),
		AccountID: req.AccountID,
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Category:  req.Category,
		Location:  req.Geo,
		CreatedAt: now,
	}

	inst := &instance{
		tx:        tx,
		location:  req.Location,
		state:     StateAwaitingConfirmation,
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	s.instances[tx.ID] = inst
	s.mu.Unlock()
	metrics.ActiveWorkflows.Inc()

	if req.Amount.GreaterThanOrEqual(s.highValue) {
		s.logger.Info("high-value transaction awaiting confirmation",
			"transaction", tx.ID, "account", req.AccountID, "amount", req.Amount)
		inst.mu.Lock()
		defer inst.mu.Unlock()
		return inst.snapshotLocked(), nil
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if err := s.analyzeLocked(ctx, inst, acct, history, req, now); err != nil {
		return inst.snapshotLocked(), err
	}
	return inst.snapshotLocked(), nil
}

// Confirm advances a waiting instance: a parked high-value transaction is
// scored; a PENDING transaction proceeds to its verification path.
func (s *Service) Confirm(ctx context.Context, txID string) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.state {
	case StateAwaitingConfirmation:
		req := SubmitRequest{
			AccountID: inst.tx.AccountID,
			Recipient: inst.tx.Recipient,
			Amount:    inst.tx.Amount,
			Category:  inst.tx.Category,
			Location:  inst.location,
			Geo:       inst.tx.Location,
		}
		acct, err := s.accounts.Get(ctx, inst.tx.AccountID)
		if err != nil {
			return s.failLocked(inst, fmt.Errorf("%w: load account: %v", ErrCollaborator, err))
		}
		if acct.Status == account.StatusBlocked {
			// Blocked since submission; nothing was persisted, so a plain
			// cancel is the honest outcome.
			s.terminateLocked(ctx, inst, StateCancelled, ledger.StatusCancelled,
				"account blocked before confirmation", false)
			return inst.snapshotLocked(), fmt.Errorf("%w: account %s", ErrAccountBlocked, inst.tx.AccountID)
		}
		history, err := s.ledger.History(ctx, inst.tx.AccountID)
		if err != nil {
			return s.failLocked(inst, fmt.Errorf("%w: load history: %v", ErrCollaborator, err))
		}
		now := time.Now()
		// Headroom may have been consumed while parked; the gate applies
		// again here. The instance stays parked so the holder can retry
		// once the window resets, or cancel.
		totals := velocity.Compute(history, inst.tx.Category, now)
		if exceeded, msg := velocity.WouldExceed(totals, inst.tx.Category, inst.tx.Amount); exceeded {
			return nil, fmt.Errorf("%w: %s", ErrVelocityExceeded, msg)
		}
		if err := s.analyzeLocked(ctx, inst, acct, history, req, now); err != nil {
			return inst.snapshotLocked(), err
		}
		return inst.snapshotLocked(), nil

	case StateAwaitingUserAction:
		switch inst.path {
		case policy.PathOTP:
			inst.otpCode = idgen.OTP(otpDigits)
			inst.state = StateVerificationOTP
			inst.updatedAt = time.Now()
			metrics.OTPIssuedTotal.Inc()
			s.notify(ctx, inst.tx.AccountID, notify.KindOTP,
				fmt.Sprintf("Your verification code for transaction %s is %s", inst.tx.ID, inst.otpCode))
		case policy.PathBiometric:
			inst.state = StateVerificationBiometric
			inst.updatedAt = time.Now()
			s.notify(ctx, inst.tx.AccountID, notify.KindInfo,
				fmt.Sprintf("Biometric verification required for transaction %s", inst.tx.ID))
		default:
			return nil, fmt.Errorf("%w: no verification path pending", ErrIllegalTransition)
		}
		return inst.snapshotLocked(), nil

	default:
		if inst.state.Terminal() {
			return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
		}
		return nil, fmt.Errorf("%w: confirm from %s", ErrIllegalTransition, inst.state)
	}
}

// Deny resolves an AWAITING_USER_ACTION instance on the holder's word.
// block=false flags the transaction; block=true also blocks the account.
// Denying a parked high-value transaction is a neutral cancellation.
func (s *Service) Deny(ctx context.Context, txID string, block bool) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch inst.state {
	case StateAwaitingConfirmation:
		// Nothing scored, nothing persisted: plain cancel.
		s.terminateLocked(ctx, inst, StateCancelled, ledger.StatusCancelled,
			"declined before verification", false)
		return inst.snapshotLocked(), nil

	case StateAwaitingUserAction:
		status := ledger.StatusFlaggedByUser
		reason := "flagged as unrecognized by account holder"
		if block {
			status = ledger.StatusBlockedByUser
			reason = "blocked by account holder"
		}
		s.terminateLocked(ctx, inst, StateBlocked, status, reason, block)
		return inst.snapshotLocked(), nil

	default:
		if inst.state.Terminal() {
			return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
		}
		return nil, fmt.Errorf("%w: deny from %s", ErrIllegalTransition, inst.state)
	}
}

// SubmitOTP checks the supplied code against the issued one. Exact match
// approves; anything else blocks the transaction and the account. One
// attempt per transaction; there are no retries.
func (s *Service) SubmitOTP(ctx context.Context, txID, code string) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state.Terminal() {
		return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
	}
	if inst.state != StateVerificationOTP {
		return nil, fmt.Errorf("%w: otp submission from %s", ErrIllegalTransition, inst.state)
	}

	if code == inst.otpCode {
		metrics.VerificationsTotal.WithLabelValues("otp", "match").Inc()
		s.approveLocked(ctx, inst, "one-time code verified")
	} else {
		metrics.VerificationsTotal.WithLabelValues("otp", "mismatch").Inc()
		s.terminateLocked(ctx, inst, StateBlocked, ledger.StatusBlockedByUser,
			"one-time code mismatch", true)
	}
	inst.otpCode = ""
	return inst.snapshotLocked(), nil
}

// SubmitBiometric runs the verifier against a live capture and resolves the
// instance from the result. The blocking verification happens outside the
// instance lock so other workflows are never held up.
func (s *Service) SubmitBiometric(ctx context.Context, txID string, capture []byte) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	if inst.state.Terminal() {
		inst.mu.Unlock()
		return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
	}
	if inst.state != StateVerificationBiometric {
		inst.mu.Unlock()
		return nil, fmt.Errorf("%w: biometric submission from %s", ErrIllegalTransition, inst.state)
	}
	accountID := inst.tx.AccountID
	tier := inst.tier
	inst.mu.Unlock()

	acct, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: load account: %v", ErrCollaborator, err)
	}

	res, err := s.verifier.Verify(ctx, capture, acct, tier, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: biometric verification: %v", ErrCollaborator, err)
	}

	return s.ResolveBiometric(ctx, txID, VerificationResult{Match: res.Match, Reason: res.Reason}, capture)
}

// ResolveBiometric applies an externally-computed verification result. A
// match approves; any failure blocks the transaction, blocks the account,
// and opens a review incident carrying the failing capture.
func (s *Service) ResolveBiometric(ctx context.Context, txID string, result VerificationResult, capture []byte) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state.Terminal() {
		return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
	}
	if inst.state != StateVerificationBiometric {
		return nil, fmt.Errorf("%w: biometric result from %s", ErrIllegalTransition, inst.state)
	}

	if result.Match {
		metrics.VerificationsTotal.WithLabelValues("biometric", "match").Inc()
		s.approveLocked(ctx, inst, "biometric verification passed: "+result.Reason)
	} else {
		metrics.VerificationsTotal.WithLabelValues("biometric", "no_match").Inc()
		metrics.BiometricFailuresTotal.Inc()
		s.openIncident(ctx, inst.tx, capture, result.Reason)
		s.terminateLocked(ctx, inst, StateBlocked, ledger.StatusBlockedByAI,
			"biometric verification failed: "+result.Reason, true)
	}
	return inst.snapshotLocked(), nil
}

// Cancel abandons an unresolved transaction without flagging the account.
func (s *Service) Cancel(ctx context.Context, txID string) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state.Terminal() {
		return nil, fmt.Errorf("%w: state %s", ErrTerminal, inst.state)
	}

	s.terminateLocked(ctx, inst, StateCancelled, ledger.StatusCancelled,
		"cancelled by account holder", false)
	return inst.snapshotLocked(), nil
}

// Get returns a snapshot of the instance for a transaction id.
func (s *Service) Get(ctx context.Context, txID string) (*Snapshot, error) {
	inst, err := s.lookup(txID)
	if err != nil {
		return nil, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.snapshotLocked(), nil
}

func (s *Service) lookup(txID string) (*instance, error) {
	s.mu.RLock()
	inst, ok := s.instances[txID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, txID)
	}
	return inst, nil
}

// analyzeLocked scores the transaction and persists it. On LOW the
// transaction settles immediately; otherwise it is persisted PENDING and the
// instance waits for the account holder. Caller holds inst.mu.
func (s *Service) analyzeLocked(ctx context.Context, inst *instance, acct *account.Account, history []*ledger.Transaction, req SubmitRequest, now time.Time) error {
	inst.state = StateAnalyzing
	inst.updatedAt = now

	city := ""
	if req.Geo != nil {
		city = req.Geo.City
	}

	assessment, err := s.engine.Score(ctx, &risk.Input{
		Transaction:   inst.tx,
		Account:       acct,
		Profile:       profile.Build(history),
		Velocity:      velocity.Compute(history, req.Category, now),
		Location:      req.Location,
		City:          city,
		TypicalCities: profile.TypicalCities(history, typicalCityCount),
		History:       history,
		Now:           now,
	})
	if err != nil {
		_, ferr := s.failLocked(inst, fmt.Errorf("%w: score transaction: %v", ErrCollaborator, err))
		return ferr
	}

	inst.score = assessment.Score
	inst.tier = assessment.Tier
	inst.rationale = assessment.Rationale
	inst.tx.Score = assessment.Score
	inst.tx.Tier = string(assessment.Tier)
	inst.tx.Rationale = assessment.Rationale

	metrics.TransactionsScoredTotal.WithLabelValues(string(assessment.Tier)).Inc()
	s.logger.Info("transaction scored",
		"transaction", inst.tx.ID, "account", inst.tx.AccountID,
		"score", assessment.Score, "tier", assessment.Tier)

	decision := policy.RequiredWithThreshold(assessment.Tier, inst.tx.Amount, s.highValue)
	inst.path = decision.Path

	if decision.Path == policy.PathAutoApprove {
		inst.tx.Status = ledger.StatusApproved
		if err := s.ledger.Persist(ctx, inst.tx); err != nil {
			_, ferr := s.failLocked(inst, fmt.Errorf("%w: persist transaction: %v", ErrCollaborator, err))
			return ferr
		}
		inst.persisted = true
		inst.state = StateApproved
		inst.reason = "low risk; approved automatically"
		inst.updatedAt = time.Now()
		s.completed(inst)
		s.notify(ctx, inst.tx.AccountID, notify.KindApproval,
			fmt.Sprintf("Transaction %s of %s to %s approved", inst.tx.ID, inst.tx.Amount, inst.tx.Recipient))
		return nil
	}

	inst.tx.Status = ledger.StatusPending
	if err := s.ledger.Persist(ctx, inst.tx); err != nil {
		_, ferr := s.failLocked(inst, fmt.Errorf("%w: persist transaction: %v", ErrCollaborator, err))
		return ferr
	}
	inst.persisted = true
	inst.state = StateAwaitingUserAction
	inst.updatedAt = time.Now()
	s.notify(ctx, inst.tx.AccountID, notify.KindAlert,
		fmt.Sprintf("Transaction %s of %s to %s needs your review (risk tier %s)",
			inst.tx.ID, inst.tx.Amount, inst.tx.Recipient, inst.tier))
	return nil
}

// approveLocked settles a verified transaction. Caller holds inst.mu.
func (s *Service) approveLocked(ctx context.Context, inst *instance, reason string) {
	if err := s.updateStatus(ctx, inst, ledger.StatusApproved); err != nil {
		_, _ = s.failLocked(inst, fmt.Errorf("%w: update status: %v", ErrCollaborator, err))
		return
	}
	inst.state = StateApproved
	inst.reason = reason
	inst.updatedAt = time.Now()
	s.completed(inst)
	s.notify(ctx, inst.tx.AccountID, notify.KindApproval,
		fmt.Sprintf("Transaction %s approved: %s", inst.tx.ID, reason))
}

// terminateLocked resolves an instance into a blocked or cancelled terminal
// state, optionally cascading a block to the account. Caller holds inst.mu.
func (s *Service) terminateLocked(ctx context.Context, inst *instance, state State, status ledger.Status, reason string, blockAccount bool) {
	if inst.persisted {
		if err := s.updateStatus(ctx, inst, status); err != nil {
			_, _ = s.failLocked(inst, fmt.Errorf("%w: update status: %v", ErrCollaborator, err))
			return
		}
	}

	if blockAccount {
		unlock := s.accountLocks.Lock(inst.tx.AccountID)
		err := s.accounts.UpdateStatus(ctx, inst.tx.AccountID, account.StatusBlocked)
		unlock()
		if err != nil {
			s.logger.Error("failed to block account",
				"account", inst.tx.AccountID, "transaction", inst.tx.ID, "error", err)
		} else {
			s.logger.Warn("account blocked",
				"account", inst.tx.AccountID, "transaction", inst.tx.ID, "reason", reason)
		}
	}

	inst.state = state
	inst.reason = reason
	inst.updatedAt = time.Now()
	s.completed(inst)

	kind := notify.KindInfo
	if state == StateBlocked {
		kind = notify.KindAlert
	}
	s.notify(ctx, inst.tx.AccountID, kind,
		fmt.Sprintf("Transaction %s resolved: %s", inst.tx.ID, reason))
}

// failLocked moves an instance to Error after a collaborator failure and
// returns the wrapped error for the caller. Caller holds inst.mu.
func (s *Service) failLocked(inst *instance, err error) (*Snapshot, error) {
	inst.state = StateError
	inst.reason = err.Error()
	inst.updatedAt = time.Now()
	s.completed(inst)
	s.logger.Error("workflow error",
		"transaction", inst.tx.ID, "account", inst.tx.AccountID, "error", err)
	return inst.snapshotLocked(), err
}

// updateStatus writes the transaction's final status under the account lock
// and keeps the in-memory copy in sync.
func (s *Service) updateStatus(ctx context.Context, inst *instance, status ledger.Status) error {
	unlock := s.accountLocks.Lock(inst.tx.AccountID)
	defer unlock()
	if err := s.ledger.UpdateStatus(ctx, inst.tx.ID, status); err != nil {
		return err
	}
	inst.tx.Status = status
	return nil
}

// openIncident records a failed biometric attempt for human review.
// Best-effort: a store failure is logged, not surfaced.
func (s *Service) openIncident(ctx context.Context, tx *ledger.Transaction, capture []byte, reason string) {
	inc := &incident.Incident{
		ID:            idgen.WithPrefix("inc_"),
		AccountID:     tx.AccountID,
		TransactionID: tx.ID,
		Capture:       append([]byte(nil), capture...),
		Reason:        reason,
		Status:        incident.StatusPendingReview,
		CreatedAt:     time.Now(),
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		s.logger.Error("failed to create incident",
			"transaction", tx.ID, "account", tx.AccountID, "error", err)
		return
	}
	metrics.IncidentsCreatedTotal.Inc()
	s.logger.Info("incident opened for review",
		"incident", inc.ID, "transaction", tx.ID, "account", tx.AccountID)
}

// completed records terminal-state metrics. Caller holds inst.mu.
func (s *Service) completed(inst *instance) {
	metrics.ActiveWorkflows.Dec()
	metrics.WorkflowsCompletedTotal.WithLabelValues(string(inst.state)).Inc()
	metrics.WorkflowDuration.Observe(inst.updatedAt.Sub(inst.createdAt).Seconds())
}

// notify delivers best-effort.
func (s *Service) notify(ctx context.Context, accountID string, kind notify.Kind, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, accountID, kind, body); err != nil {
		s.logger.Warn("notification failed", "account", accountID, "error", err)
	}
}

package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/incident"
	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/logging"
	"github.com/dhruvm848/sentinel/internal/profile"
	"github.com/dhruvm848/sentinel/internal/risk"
	"github.com/dhruvm848/sentinel/internal/validation"
	"github.com/dhruvm848/sentinel/internal/velocity"
	"github.com/dhruvm848/sentinel/internal/workflow"
)

// -----------------------------------------------------------------------------
// Transaction workflow
// -----------------------------------------------------------------------------

type submitTransactionRequest struct {
	AccountID string  `json:"accountId" binding:"required"`
	Recipient string  `json:"recipient" binding:"required"`
	Amount    string  `json:"amount" binding:"required"`
	Category  string  `json:"category" binding:"required"`
	Location  string  `json:"locationStatus"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	Place     string  `json:"place"`
}

func (s *Server) submitTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var req submitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}

	if errs := validation.Validate(
		validation.Required("accountId", req.AccountID),
		validation.Required("recipient", req.Recipient),
		validation.ValidRecipient("recipient", req.Recipient),
		validation.ValidAmount("amount", req.Amount),
		validation.MaxLength("city", req.City, 200),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badRequest(c, "invalid_amount", "amount must be a decimal number")
		return
	}

	wfReq := workflow.SubmitRequest{
		AccountID: validation.SanitizeString(req.AccountID, 64),
		Recipient: validation.SanitizeString(req.Recipient, 128),
		Amount:    amount,
		Category:  ledger.Category(req.Category),
		Location:  risk.LocationStatus(req.Location),
	}
	if req.Location == string(risk.LocationSuccess) {
		wfReq.Geo = &ledger.Geo{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			City:      validation.SanitizeString(req.City, 200),
			Place:     validation.SanitizeString(req.Place, 200),
		}
	}

	snap, err := s.workflows.Submit(ctx, wfReq)
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}

	c.JSON(http.StatusCreated, snap)
}

func (s *Server) getTransaction(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	// Prefer the live workflow instance; fall back to the ledger for
	// transactions the sweeper has already reclaimed.
	if snap, err := s.workflows.Get(ctx, id); err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}

	tx, err := s.ledgerStore.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			notFound(c, "transaction_not_found", "No transaction with this id")
			return
		}
		s.internalError(c, "failed to load transaction", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) confirmTransaction(c *gin.Context) {
	snap, err := s.workflows.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type denyRequest struct {
	Block bool `json:"block"`
}

func (s *Server) denyTransaction(c *gin.Context) {
	var req denyRequest
	_ = c.ShouldBindJSON(&req) // body optional; default is flag-only

	snap, err := s.workflows.Deny(c.Request.Context(), c.Param("id"), req.Block)
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type otpRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) submitOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "code is required")
		return
	}

	snap, err := s.workflows.SubmitOTP(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type biometricRequest struct {
	Capture []byte `json:"capture"` // base64-encoded by encoding/json
	// Result fields for drivers that verify externally.
	Resolved bool   `json:"resolved"`
	Match    bool   `json:"match"`
	Reason   string `json:"reason"`
}

func (s *Server) submitBiometric(c *gin.Context) {
	var req biometricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	var (
		snap *workflow.Snapshot
		err  error
	)
	if req.Resolved {
		snap, err = s.workflows.ResolveBiometric(ctx, id,
			workflow.VerificationResult{Match: req.Match, Reason: req.Reason}, req.Capture)
	} else {
		if len(req.Capture) == 0 {
			badRequest(c, "invalid_request", "capture is required")
			return
		}
		snap, err = s.workflows.SubmitBiometric(ctx, id, req.Capture)
	}
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelTransaction(c *gin.Context) {
	snap, err := s.workflows.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.workflowError(c, err, snap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// workflowError maps workflow sentinel errors to HTTP responses. Every
// rejection carries the specific reason from the workflow.
func (s *Server) workflowError(c *gin.Context, err error, snap *workflow.Snapshot) {
	resp := gin.H{"message": err.Error()}
	if snap != nil {
		resp["state"] = snap.State
	}

	switch {
	case errors.Is(err, workflow.ErrValidation):
		resp["error"] = "invalid_transaction"
		c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, workflow.ErrAccountBlocked):
		resp["error"] = "account_blocked"
		c.JSON(http.StatusForbidden, resp)
	case errors.Is(err, workflow.ErrVelocityExceeded):
		resp["error"] = "velocity_limit_exceeded"
		c.JSON(http.StatusUnprocessableEntity, resp)
	case errors.Is(err, workflow.ErrNotFound):
		resp["error"] = "transaction_not_found"
		c.JSON(http.StatusNotFound, resp)
	case errors.Is(err, workflow.ErrTerminal):
		resp["error"] = "already_resolved"
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, workflow.ErrIllegalTransition):
		resp["error"] = "illegal_transition"
		c.JSON(http.StatusConflict, resp)
	default:
		logging.FromContext(c.Request.Context()).Error("workflow failure", "error", err)
		resp["error"] = "internal_error"
		c.JSON(http.StatusInternalServerError, resp)
	}
}

// -----------------------------------------------------------------------------
// Account read surface
// -----------------------------------------------------------------------------

func (s *Server) getAccount(c *gin.Context) {
	acct, err := s.accountStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			notFound(c, "account_not_found", "No account with this id")
			return
		}
		s.internalError(c, "failed to load account", err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) getProfile(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	history, err := s.ledgerStore.History(ctx, id)
	if err != nil {
		s.internalError(c, "failed to load history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId":     id,
		"profile":       profile.Build(history),
		"typicalCities": profile.TypicalCities(history, 3),
		"sampleSize":    len(history),
	})
}

func (s *Server) getVelocity(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	history, err := s.ledgerStore.History(ctx, id)
	if err != nil {
		s.internalError(c, "failed to load history", err)
		return
	}

	now := time.Now()
	out := gin.H{"accountId": id}
	for _, cat := range []ledger.Category{ledger.CategoryUPI, ledger.CategoryIMPS, ledger.CategoryNEFT, ledger.CategoryRTGS} {
		totals := velocity.Compute(history, cat, now)
		entry := gin.H{
			"daily":      totals.Daily,
			"weekly":     totals.Weekly,
			"controlled": velocity.Controlled(cat),
		}
		if velocity.Controlled(cat) {
			entry["headroom"] = velocity.Remaining(totals, cat)
		}
		out[string(cat)] = entry
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) listTransactions(c *gin.Context) {
	history, err := s.ledgerStore.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "failed to load history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history, "count": len(history)})
}

func (s *Server) listAssessments(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	assessments, err := s.riskStore.ListByAccount(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.internalError(c, "failed to load assessments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": assessments, "count": len(assessments)})
}

// -----------------------------------------------------------------------------
// Incident review (admin)
// -----------------------------------------------------------------------------

func (s *Server) listIncidents(c *gin.Context) {
	status := incident.ReviewStatus(c.DefaultQuery("status", string(incident.StatusPendingReview)))
	if !incident.ValidReviewStatus(status) {
		badRequest(c, "invalid_status", "status must be PENDING_REVIEW, ESCALATED, or RESOLVED")
		return
	}

	limit := parseLimit(c.Query("limit"), 50)
	incidents, err := s.incidentStore.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		s.internalError(c, "failed to list incidents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (s *Server) getIncident(c *gin.Context) {
	inc, err := s.incidentStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, incident.ErrIncidentNotFound) {
			notFound(c, "incident_not_found", "No incident with this id")
			return
		}
		s.internalError(c, "failed to load incident", err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

func (s *Server) escalateIncident(c *gin.Context) {
	s.updateIncident(c, incident.StatusEscalated)
}

func (s *Server) resolveIncident(c *gin.Context) {
	s.updateIncident(c, incident.StatusResolved)
}

func (s *Server) updateIncident(c *gin.Context, status incident.ReviewStatus) {
	err := s.incidentStore.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		if errors.Is(err, incident.ErrIncidentNotFound) {
			notFound(c, "incident_not_found", "No incident with this id")
			return
		}
		s.internalError(c, "failed to update incident", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

// -----------------------------------------------------------------------------
// Account administration
// -----------------------------------------------------------------------------

// accountPutter is the seeding surface both store implementations provide.
type accountPutter interface {
	Put(ctx context.Context, a *account.Account) error
}

type upsertAccountRequest struct {
	ID         string      `json:"id" binding:"required"`
	Name       string      `json:"name" binding:"required"`
	Status     string      `json:"status"`
	Attribute  string      `json:"attribute"`
	References [][]float64 `json:"references"`
}

func (s *Server) upsertAccount(c *gin.Context) {
	var req upsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if !validation.IsValidID(req.ID) {
		badRequest(c, "invalid_id", "identifier must be 8-64 characters of [a-zA-Z0-9_-]")
		return
	}

	putter, ok := s.accountStore.(accountPutter)
	if !ok {
		s.internalError(c, "account store does not support writes", nil)
		return
	}

	status := account.Status(req.Status)
	if status == "" {
		status = account.StatusActive
	}

	acct := &account.Account{
		ID:         req.ID,
		Name:       validation.SanitizeString(req.Name, 200),
		Status:     status,
		Attribute:  account.Attribute(req.Attribute),
		CreatedAt:  time.Now(),
		References: req.References,
	}
	if err := putter.Put(c.Request.Context(), acct); err != nil {
		s.internalError(c, "failed to store account", err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

type accountStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) setAccountStatus(c *gin.Context) {
	var req accountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "status is required")
		return
	}

	status := account.Status(req.Status)
	switch status {
	case account.StatusActive, account.StatusBlocked, account.StatusUnderReview:
	default:
		badRequest(c, "invalid_status", "status must be ACTIVE, BLOCKED, or UNDER_REVIEW")
		return
	}

	err := s.accountStore.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			notFound(c, "account_not_found", "No account with this id")
			return
		}
		s.internalError(c, "failed to update account status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

// -----------------------------------------------------------------------------
// Response helpers
// -----------------------------------------------------------------------------

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
}

func notFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, gin.H{"error": code, "message": message})
}

func (s *Server) internalError(c *gin.Context, message string, err error) {
	logging.FromContext(c.Request.Context()).Error(message, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": message,
	})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return fallback
	}
	return n
}

package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/account"
	"github.com/dhruvm848/sentinel/internal/idgen"
	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/velocity"
)

var (
	// ErrNonPositiveAmount and ErrEmptyRecipient are preconditions, not
	// scored risk: the engine refuses to score malformed input.
	ErrNonPositiveAmount = errors.New("risk: amount must be positive")
	ErrEmptyRecipient    = errors.New("risk: recipient must not be empty")
)

// Signal point values. All deltas are summed and the total clamped to
// [0,100]; ordering matters only for rationale readability.
const (
	pointsBandUpper        = 60
	pointsBandMiddle       = 35
	pointsRepeatRecipient  = 40
	pointsAmountOutlier    = 65
	pointsNewRecipient     = 25
	pointsOffHours         = 30
	pointsLateNight        = 45
	pointsLocationDenied   = 50
	pointsLocationUnknown  = 20
	pointsLocationMismatch = 60
	pointsUnderReview      = 15
	pointsNearVelocityCap  = 20
)

// repeatRecipientMin is the number of prior same-day payments to the same
// recipient that triggers the repeat penalty.
const repeatRecipientMin = 3

// outlierStddevs is how many standard deviations above the mean an amount
// must sit to count as a spend outlier.
const outlierStddevs = 2.5

// nearCapFraction of a daily limit at which the projected total starts
// drawing a velocity penalty.
const nearCapFraction = 0.8

// amountBands maps a velocity-controlled category to its point thresholds.
// Categories without bands (NEFT, RTGS) skip the amount signal entirely.
type amountBands struct {
	Upper  decimal.Decimal
	Middle decimal.Decimal
}

var bandsByCategory = map[ledger.Category]amountBands{
	ledger.CategoryUPI: {
		Upper:  decimal.NewFromInt(10_000),
		Middle: decimal.NewFromInt(2_000),
	},
	ledger.CategoryIMPS: {
		Upper:  decimal.NewFromInt(50_000),
		Middle: decimal.NewFromInt(10_000),
	},
}

// Engine scores transactions. Pure in-memory computation over the input
// snapshot; the only side effect is a best-effort async audit record.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates a scoring engine backed by the given audit store.
// A nil store disables the audit trail.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, logger: slog.Default()}
}

// WithLogger sets a structured logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// Score evaluates a proposed transaction and returns an assessment.
func (e *Engine) Score(ctx context.Context, in *Input) (*Assessment, error) {
	tx := in.Transaction
	if tx.Amount.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if tx.Recipient == "" {
		return nil, ErrEmptyRecipient
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	total := 0
	var rationale []string
	add := func(points int, line string) {
		total += points
		rationale = append(rationale, line)
	}

	// Category amount bands.
	if bands, ok := bandsByCategory[tx.Category]; ok {
		switch {
		case tx.Amount.GreaterThan(bands.Upper):
			add(pointsBandUpper, fmt.Sprintf("amount %s is in the upper band for %s (> %s): +%d",
				tx.Amount, tx.Category, bands.Upper, pointsBandUpper))
		case tx.Amount.GreaterThan(bands.Middle):
			add(pointsBandMiddle, fmt.Sprintf("amount %s is in the middle band for %s (> %s): +%d",
				tx.Amount, tx.Category, bands.Middle, pointsBandMiddle))
		}
	}

	// Repeat payments to the same recipient today.
	if n := sameDayPayments(in.History, tx.Recipient, now); n >= repeatRecipientMin {
		add(pointsRepeatRecipient, fmt.Sprintf("%d payments to %s already made today: +%d",
			n, tx.Recipient, pointsRepeatRecipient))
	}

	// Behavioral anomalies, or the coarse late-night check for thin history.
	if in.Profile != nil && in.Profile.Sufficient() {
		amount := tx.Amount.InexactFloat64()
		if in.Profile.StddevAmount > 0 && amount > in.Profile.MeanAmount+outlierStddevs*in.Profile.StddevAmount {
			add(pointsAmountOutlier, fmt.Sprintf("amount %s far exceeds typical spend (mean %.2f, stddev %.2f): +%d",
				tx.Amount, in.Profile.MeanAmount, in.Profile.StddevAmount, pointsAmountOutlier))
		}
		if !in.Profile.IsFrequentRecipient(tx.Recipient) {
			add(pointsNewRecipient, fmt.Sprintf("recipient %s is not among frequent recipients: +%d",
				tx.Recipient, pointsNewRecipient))
		}
		if !in.Profile.WithinActiveHours(now.Hour()) {
			add(pointsOffHours, fmt.Sprintf("transaction at %02d:00 is outside typical hours (%02d:00-%02d:00): +%d",
				now.Hour(), in.Profile.ActiveHourStart, in.Profile.ActiveHourEnd, pointsOffHours))
		}
	} else {
		if h := now.Hour(); h >= 1 && h < 6 {
			add(pointsLateNight, fmt.Sprintf("late-night transaction at %02d:00 with limited account history: +%d",
				h, pointsLateNight))
		}
		if firstPaymentTo(in.History, tx.Recipient) {
			rationale = append(rationale, fmt.Sprintf("first payment to recipient %s (insufficient history to model)", tx.Recipient))
		}
	}

	// Geolocation consistency.
	switch in.Location {
	case LocationDenied:
		add(pointsLocationDenied, fmt.Sprintf("CRITICAL: location access denied by device: +%d", pointsLocationDenied))
	case LocationSuccess:
		if in.City != "" && len(in.TypicalCities) > 0 && !containsCity(in.TypicalCities, in.City) {
			add(pointsLocationMismatch, fmt.Sprintf("location %s does not match usual cities %v: +%d",
				in.City, in.TypicalCities, pointsLocationMismatch))
		} else {
			rationale = append(rationale, fmt.Sprintf("location %s is consistent with account history", in.City))
		}
	case LocationPending:
		rationale = append(rationale, "location check still pending; not penalized")
	default: // UNAVAILABLE or missing
		add(pointsLocationUnknown, fmt.Sprintf("location unavailable at submission: +%d", pointsLocationUnknown))
	}

	// Velocity pressure: projected daily total near the configured cap.
	if l, ok := velocity.LimitFor(tx.Category); ok {
		projected := in.Velocity.Daily.Add(tx.Amount)
		nearCap := l.Daily.Mul(decimal.NewFromFloat(nearCapFraction))
		if projected.GreaterThan(nearCap) {
			add(pointsNearVelocityCap, fmt.Sprintf("projected daily %s spend %s approaches the %s limit: +%d",
				tx.Category, projected, l.Daily, pointsNearVelocityCap))
		}
	}

	// Account standing.
	if in.Account != nil && in.Account.Status == account.StatusUnderReview {
		add(pointsUnderReview, fmt.Sprintf("account is under review: +%d", pointsUnderReview))
	}

	score := clamp(total)
	tier := TierForScore(score)

	// A low score with suppressed flags would be unauditable, so flags are
	// always kept and softened instead.
	if tier == TierLow && total > 0 {
		rationale = append([]string{"minor risk signals noted; overall profile is consistent with account history"}, rationale...)
	}
	if len(rationale) == 0 {
		rationale = append(rationale, "no risk signals; transaction is consistent with account profile")
	}

	a := &Assessment{
		ID:            idgen.WithPrefix("risk_"),
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Score:         score,
		Tier:          tier,
		Rationale:     rationale,
		EvaluatedAt:   now,
	}

	// Persist asynchronously (best-effort audit trail).
	if e.store != nil {
		go func() {
			if err := e.store.Record(context.Background(), a); err != nil {
				e.logger.Warn("failed to record risk assessment", "assessment", a.ID, "error", err)
			}
		}()
	}

	return a, nil
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// sameDayPayments counts prior non-blocked payments to the recipient on the
// same calendar day as now.
func sameDayPayments(history []*ledger.Transaction, recipient string, now time.Time) int {
	count := 0
	y, m, d := now.Date()
	for _, tx := range history {
		if tx.Recipient != recipient || tx.Status.Blocked() {
			continue
		}
		ty, tm, td := tx.CreatedAt.Date()
		if ty == y && tm == m && td == d {
			count++
		}
	}
	return count
}

// firstPaymentTo reports whether the recipient never appears in history.
func firstPaymentTo(history []*ledger.Transaction, recipient string) bool {
	for _, tx := range history {
		if tx.Recipient == recipient {
			return false
		}
	}
	return true
}

func containsCity(cities []string, city string) bool {
	for _, c := range cities {
		if c == city {
			return true
		}
	}
	return false
}

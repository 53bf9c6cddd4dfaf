// Package velocity computes rolling per-category spend totals against the
// configured rail limits.
//
// Totals are computed over a snapshot of already-persisted history; two
// submissions milliseconds apart may both read pre-update totals, which is
// an accepted tolerance. The workflow recomputes totals on every submission
// so status changes are reflected on the next read.
package velocity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhruvm848/sentinel/internal/ledger"
)

// Limit is the daily and trailing-weekly spend cap for a category.
type Limit struct {
	Daily  decimal.Decimal
	Weekly decimal.Decimal
}

// limits holds the velocity-controlled categories. NEFT and RTGS carry no
// limits and are exempt from velocity enforcement.
var limits = map[ledger.Category]Limit{
	ledger.CategoryUPI: {
		Daily:  decimal.NewFromInt(100_000),
		Weekly: decimal.NewFromInt(500_000),
	},
	ledger.CategoryIMPS: {
		Daily:  decimal.NewFromInt(200_000),
		Weekly: decimal.NewFromInt(1_000_000),
	},
}

// LimitFor returns the configured limit for a category, if any.
func LimitFor(c ledger.Category) (Limit, bool) {
	l, ok := limits[c]
	return l, ok
}

// Controlled reports whether the category is velocity-controlled.
func Controlled(c ledger.Category) bool {
	_, ok := limits[c]
	return ok
}

// Totals is the current spend for one category.
type Totals struct {
	Daily  decimal.Decimal `json:"daily"`
	Weekly decimal.Decimal `json:"weekly"`
}

// Compute sums amounts for the category within the current calendar day and
// the trailing 7-day window. Blocked/cancelled transactions are excluded.
// Uncontrolled categories report zero without walking history.
func Compute(history []*ledger.Transaction, category ledger.Category, now time.Time) Totals {
	t := Totals{Daily: decimal.Zero, Weekly: decimal.Zero}
	if !Controlled(category) {
		return t
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := now.Add(-7 * 24 * time.Hour)

	for _, tx := range history {
		if tx.Category != category || tx.Status.Blocked() {
			continue
		}
		if tx.CreatedAt.After(now) {
			continue
		}
		if !tx.CreatedAt.Before(weekStart) {
			t.Weekly = t.Weekly.Add(tx.Amount)
		}
		if !tx.CreatedAt.Before(dayStart) {
			t.Daily = t.Daily.Add(tx.Amount)
		}
	}
	return t
}

// Headroom is the remaining allowance under each window, for display.
// Uncontrolled categories report no limit.
type Headroom struct {
	Limited         bool            `json:"limited"`
	DailyRemaining  decimal.Decimal `json:"dailyRemaining"`
	WeeklyRemaining decimal.Decimal `json:"weeklyRemaining"`
}

// Remaining returns the headroom left for a category given current totals.
func Remaining(totals Totals, category ledger.Category) Headroom {
	l, ok := limits[category]
	if !ok {
		return Headroom{Limited: false}
	}
	h := Headroom{
		Limited:         true,
		DailyRemaining:  l.Daily.Sub(totals.Daily),
		WeeklyRemaining: l.Weekly.Sub(totals.Weekly),
	}
	if h.DailyRemaining.IsNegative() {
		h.DailyRemaining = decimal.Zero
	}
	if h.WeeklyRemaining.IsNegative() {
		h.WeeklyRemaining = decimal.Zero
	}
	return h
}

// WouldExceed reports whether adding amount to the current totals would
// break either window's limit, with a user-facing message when it would.
func WouldExceed(totals Totals, category ledger.Category, amount decimal.Decimal) (bool, string) {
	l, ok := limits[category]
	if !ok {
		return false, ""
	}
	if totals.Daily.Add(amount).GreaterThan(l.Daily) {
		return true, "daily " + string(category) + " limit of " + l.Daily.String() + " would be exceeded"
	}
	if totals.Weekly.Add(amount).GreaterThan(l.Weekly) {
		return true, "weekly " + string(category) + " limit of " + l.Weekly.String() + " would be exceeded"
	}
	return false, ""
}

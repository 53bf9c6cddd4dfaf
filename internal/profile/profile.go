// Package profile derives a per-account behavioral model from transaction
// history: typical spend, frequent recipients, and active hours.
//
// Below MinSampleSize the builder returns fixed conservative defaults
// instead of degenerate statistics — a new account gets a generic model
// rather than NaN thresholds.
package profile

import (
	"math"
	"sort"

	"github.com/dhruvm848/sentinel/internal/ledger"
)

// MinSampleSize is the history length below which defaults apply.
const MinSampleSize = 5

// topRecipients is how many frequent recipients the profile tracks.
const topRecipients = 5

// Default profile values for accounts with insufficient history.
const (
	DefaultMean        = 1000.0
	DefaultStddev      = 500.0
	DefaultActiveStart = 9
	DefaultActiveEnd   = 22
)

// Profile is the derived behavioral model. It is computed on demand and
// never persisted.
type Profile struct {
	SampleSize         int      `json:"sampleSize"`
	MeanAmount         float64  `json:"meanAmount"`
	StddevAmount       float64  `json:"stddevAmount"`
	FrequentRecipients []string `json:"frequentRecipients"`
	ActiveHourStart    int      `json:"activeHourStart"`
	ActiveHourEnd      int      `json:"activeHourEnd"`
}

// Sufficient reports whether the profile was built from enough history to
// support the fine-grained anomaly checks.
func (p *Profile) Sufficient() bool {
	return p.SampleSize >= MinSampleSize
}

// IsFrequentRecipient reports whether the recipient is in the top set.
func (p *Profile) IsFrequentRecipient(recipient string) bool {
	for _, r := range p.FrequentRecipients {
		if r == recipient {
			return true
		}
	}
	return false
}

// WithinActiveHours reports whether the hour falls inside the typical
// activity window.
func (p *Profile) WithinActiveHours(hour int) bool {
	return hour >= p.ActiveHourStart && hour <= p.ActiveHourEnd
}

// Build derives a profile from an account's history. Order of the input does
// not matter. Deterministic given the same history.
func Build(history []*ledger.Transaction) *Profile {
	if len(history) < MinSampleSize {
		return &Profile{
			SampleSize:         len(history),
			MeanAmount:         DefaultMean,
			StddevAmount:       DefaultStddev,
			FrequentRecipients: nil,
			ActiveHourStart:    DefaultActiveStart,
			ActiveHourEnd:      DefaultActiveEnd,
		}
	}

	n := float64(len(history))

	var sum float64
	for _, tx := range history {
		sum += tx.Amount.InexactFloat64()
	}
	mean := sum / n

	var varianceSum float64
	for _, tx := range history {
		d := tx.Amount.InexactFloat64() - mean
		varianceSum += d * d
	}
	stddev := math.Sqrt(varianceSum / n) // population stddev

	modal := modalHour(history)
	start, end := modal-4, modal+4
	if start < 0 {
		start = 0
	}
	if end > 23 {
		end = 23
	}

	return &Profile{
		SampleSize:         len(history),
		MeanAmount:         mean,
		StddevAmount:       stddev,
		FrequentRecipients: frequentRecipients(history),
		ActiveHourStart:    start,
		ActiveHourEnd:      end,
	}
}

// frequentRecipients returns the top recipients by payment count.
// Ties break alphabetically so the result is stable.
func frequentRecipients(history []*ledger.Transaction) []string {
	counts := make(map[string]int)
	for _, tx := range history {
		counts[tx.Recipient]++
	}

	recipients := make([]string, 0, len(counts))
	for r := range counts {
		recipients = append(recipients, r)
	}
	sort.Slice(recipients, func(i, j int) bool {
		if counts[recipients[i]] != counts[recipients[j]] {
			return counts[recipients[i]] > counts[recipients[j]]
		}
		return recipients[i] < recipients[j]
	})

	if len(recipients) > topRecipients {
		recipients = recipients[:topRecipients]
	}
	return recipients
}

// modalHour returns the single most frequent transaction hour. Ties break
// toward the earlier hour.
func modalHour(history []*ledger.Transaction) int {
	var histogram [24]int
	for _, tx := range history {
		histogram[tx.CreatedAt.Hour()]++
	}
	best := 0
	for h := 1; h < 24; h++ {
		if histogram[h] > histogram[best] {
			best = h
		}
	}
	return best
}

// TypicalCities returns the account's top-N cities by frequency from
// transactions that carried a resolved location. Used by the scoring
// engine's geolocation-consistency signal.
func TypicalCities(history []*ledger.Transaction, n int) []string {
	counts := make(map[string]int)
	for _, tx := range history {
		if tx.Location != nil && tx.Location.City != "" {
			counts[tx.Location.City]++
		}
	}

	cities := make([]string, 0, len(counts))
	for c := range counts {
		cities = append(cities, c)
	}
	sort.Slice(cities, func(i, j int) bool {
		if counts[cities[i]] != counts[cities[j]] {
			return counts[cities[i]] > counts[cities[j]]
		}
		return cities[i] < cities[j]
	})

	if len(cities) > n {
		cities = cities[:n]
	}
	return cities
}

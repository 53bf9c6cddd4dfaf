// Package notify delivers workflow messages to account holders: one-time
// codes, approval confirmations, and block alerts.
package notify

import (
	"context"
	"sync"
	"time"
)

// Kind classifies a notification for subscribers.
type Kind string

const (
	KindOTP      Kind = "otp"
	KindApproval Kind = "approval"
	KindAlert    Kind = "alert"
	KindInfo     Kind = "info"
)

// Message is one notification addressed to an account holder.
type Message struct {
	AccountID string    `json:"accountId"`
	Kind      Kind      `json:"kind"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
}

// Notifier is the collaborator the workflow calls to surface codes and
// alerts. Implementations must not block the workflow for long; delivery is
// best-effort.
type Notifier interface {
	Notify(ctx context.Context, accountID string, kind Kind, body string) error
}

// Recorder is an in-memory Notifier that retains messages for inspection.
// Used in tests and as a fallback when no hub is configured.
type Recorder struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

// NewRecorder creates a recording notifier.
func NewRecorder() *Recorder {
	return &Recorder{messages: make(map[string][]Message)}
}

func (r *Recorder) Notify(ctx context.Context, accountID string, kind Kind, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[accountID] = append(r.messages[accountID], Message{
		AccountID: accountID,
		Kind:      kind,
		Body:      body,
		SentAt:    time.Now(),
	})
	return nil
}

// Messages returns a copy of the messages sent to an account.
func (r *Recorder) Messages(accountID string) []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Message(nil), r.messages[accountID]...)
}

// Multi fans a notification out to several notifiers. The first error wins
// but all notifiers are attempted.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, accountID string, kind Kind, body string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, accountID, kind, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}

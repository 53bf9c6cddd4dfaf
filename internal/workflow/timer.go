package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dhruvm848/sentinel/internal/ledger"
	"github.com/dhruvm848/sentinel/internal/metrics"
)

// Timer periodically reclaims resolved workflow instances after a cool-down
// and cancels interactive instances the account holder has abandoned.
type Timer struct {
	service      *Service
	interval     time.Duration
	cooldown     time.Duration
	abandonAfter time.Duration // 0 disables abandonment
	logger       *slog.Logger
	stop         chan struct{}
	running      atomic.Bool
}

// NewTimer creates a workflow sweeper. abandonAfter of zero disables the
// abandonment sweep; cooldown controls how long terminal instances stay
// queryable.
func NewTimer(service *Service, cooldown, abandonAfter time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:      service,
		interval:     5 * time.Second,
		cooldown:     cooldown,
		abandonAfter: abandonAfter,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in workflow timer", "panic", fmt.Sprint(r))
		}
	}()
	t.sweep(ctx)
}

func (t *Timer) sweep(ctx context.Context) {
	now := time.Now()

	reclaimed, abandoned := t.service.Sweep(ctx, now, t.cooldown, t.abandonAfter)
	if reclaimed > 0 {
		t.logger.Info("reclaimed resolved workflows", "count", reclaimed)
	}
	if abandoned > 0 {
		t.logger.Info("cancelled abandoned workflows", "count", abandoned)
	}
}

// Sweep removes terminal instances whose cool-down has elapsed and cancels
// interactive instances idle longer than abandonAfter. Returns the number
// reclaimed and the number cancelled as abandoned.
func (s *Service) Sweep(ctx context.Context, now time.Time, cooldown, abandonAfter time.Duration) (reclaimed, abandoned int) {
	// Collect candidates under the map lock, act outside it.
	s.mu.RLock()
	candidates := make([]*instance, 0, len(s.instances))
	for _, inst := range s.instances {
		candidates = append(candidates, inst)
	}
	s.mu.RUnlock()

	var expired []string
	for _, inst := range candidates {
		inst.mu.Lock()
		switch {
		case inst.state.Terminal() && now.Sub(inst.updatedAt) >= cooldown:
			expired = append(expired, inst.tx.ID)
		case abandonAfter > 0 && inst.state.Interactive() && now.Sub(inst.updatedAt) >= abandonAfter:
			s.terminateLocked(ctx, inst, StateCancelled, ledger.StatusCancelled,
				"abandoned by account holder", false)
			metrics.WorkflowsAbandonedTotal.Inc()
			abandoned++
		}
		inst.mu.Unlock()
	}

	if len(expired) > 0 {
		s.mu.Lock()
		for _, id := range expired {
			delete(s.instances, id)
		}
		s.mu.Unlock()
		reclaimed = len(expired)
	}
	return reclaimed, abandoned
}

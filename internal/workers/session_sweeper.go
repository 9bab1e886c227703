package workers

import (
	"context"
	"time"

	"comanda/internal/metrics"
	"comanda/internal/repository/memory"
	"comanda/internal/services/legacy_order"
	"comanda/internal/services/survey"
)

// SessionSweeper evicts conversation sessions whose last activity is
// older than the idle timeout. Survey sessions and abandoned legacy
// states ride the same sweep with their own TTLs.
type SessionSweeper struct {
	*BaseWorker
	store       *memory.SessionStore
	surveys     *survey.Service
	legacy      *legacy_order.Service
	idleTimeout time.Duration
	surveyTTL   time.Duration
}

// NewSessionSweeper creates the eviction worker
func NewSessionSweeper(
	store *memory.SessionStore,
	surveys *survey.Service,
	legacy *legacy_order.Service,
	sweepInterval time.Duration,
	idleTimeout time.Duration,
	surveyTTL time.Duration,
) *SessionSweeper {
	return &SessionSweeper{
		BaseWorker:  NewBaseWorker("session_sweeper", sweepInterval, true),
		store:       store,
		surveys:     surveys,
		legacy:      legacy,
		idleTimeout: idleTimeout,
		surveyTTL:   surveyTTL,
	}
}

// Run performs one sweep
func (w *SessionSweeper) Run(ctx context.Context) error {
	evicted := w.store.Sweep(w.idleTimeout)
	if evicted > 0 {
		metrics.SessionsEvicted.Add(float64(evicted))
	}
	metrics.ActiveSessions.Set(float64(w.store.Count()))

	if w.surveys != nil {
		if expired := w.surveys.Expire(w.surveyTTL); expired > 0 {
			w.Log().Infow("Expired survey sessions", "count", expired)
		}
	}
	if w.legacy != nil {
		if expired := w.legacy.Expire(w.idleTimeout); expired > 0 {
			w.Log().Infow("Expired legacy order states", "count", expired)
		}
	}

	return nil
}

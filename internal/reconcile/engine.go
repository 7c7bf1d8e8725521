package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vouh/Course-corner-sub000/internal/models"
)

// Store is the part of the transaction store the engine writes through.
// ConditionalUpdate must be a single atomic compare-and-set on status.
type Store interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Transaction, error)
	ConditionalUpdate(ctx context.Context, sessionID string, expected models.Status, t models.Transition) (bool, error)
}

// CreditDispatcher runs the referral side effect for a session that has just
// reached completed.
type CreditDispatcher interface {
	Dispatch(ctx context.Context, tx models.Transaction)
}

// Observer is told about every transition the engine wins.
type Observer interface {
	TransitionApplied(tx models.Transaction)
}

type Engine struct {
	store     Store
	credits   CreditDispatcher
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithCreditDispatcher(d CreditDispatcher) Option {
	return func(e *Engine) { e.credits = d }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetCreditDispatcher wires the dispatcher after construction, for the case
// where the dispatcher itself needs the engine's store.
func (e *Engine) SetCreditDispatcher(d CreditDispatcher) {
	e.credits = d
}

func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Apply is the only way a session leaves awaiting_result. It returns the
// session as stored after the call and whether this call performed the
// transition. A session that is already terminal, or a signal that does not
// map to a terminal status, yields applied=false and no error.
func (e *Engine) Apply(ctx context.Context, sessionID string, sig Signal, source Source) (*models.Transaction, bool, error) {
	current, err := e.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	log := e.logger.With("session_id", sessionID, "source", source, "signal", sig.Kind, "provider_code", sig.Code)

	switch sig.Kind {
	case SignalStillProcessing:
		log.Debug("provider still processing, no transition")
		return current, false, nil
	case SignalUnknown:
		log.Warn("unmapped provider result, needs operator review", "description", sig.Description)
		return current, false, nil
	}

	next, ok := Apply(*current, sig, e.now())
	if !ok {
		log.Info("session already terminal, signal ignored", "status", current.Status)
		return current, false, nil
	}

	won, err := e.store.ConditionalUpdate(ctx, sessionID, models.StatusAwaitingResult, transitionOf(next))
	if err != nil {
		return current, false, fmt.Errorf("transition session %s: %w", sessionID, err)
	}
	if !won {
		// Another writer decided first. Report what it decided; never retry.
		log.Info("lost transition race")
		latest, err := e.store.GetBySessionID(ctx, sessionID)
		if err != nil {
			return current, false, nil
		}
		return latest, false, nil
	}

	log.Info("session transitioned", "status", next.Status, "reason", derefString(next.ResultReason))

	for _, o := range e.observers {
		o.TransitionApplied(next)
	}
	if next.Status == models.StatusCompleted && next.HasReferral() && e.credits != nil {
		e.credits.Dispatch(ctx, next)
	}
	return &next, true, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/vouh/Course-corner-sub000/internal/cache"
	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

// CallbackRecorder is the audit log of webhook deliveries.
type CallbackRecorder interface {
	Record(ctx context.Context, event *models.CallbackEvent) error
}

type CallbackService struct {
	store    TransactionStore
	cache    cache.SessionCache
	engine   *reconcile.Engine
	recorder CallbackRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewCallbackService(
	store TransactionStore,
	sessions cache.SessionCache,
	engine *reconcile.Engine,
	recorder CallbackRecorder,
	logger *slog.Logger,
) *CallbackService {
	return &CallbackService{
		store:    store,
		cache:    sessions,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one webhook delivery. Duplicates and late deliveries are
// harmless: the engine ignores anything arriving after the session is
// terminal. The returned error is for logging only; the provider is always
// acknowledged.
func (s *CallbackService) Handle(ctx context.Context, body []byte) error {
	event := &models.CallbackEvent{ReceivedAt: s.now().UTC()}
	if json.Valid(body) {
		event.Payload = datatypes.JSON(body)
	}
	defer s.record(ctx, event)

	cb, err := provider.ParseCallback(body)
	if err != nil {
		s.logger.Warn("discarding malformed callback", "error", err)
		return err
	}
	event.CheckoutRef = cb.CheckoutRef
	event.ResultCode = cb.ResultCode

	log := s.logger.With("checkout_ref", cb.CheckoutRef, "result_code", cb.ResultCode)

	tx, err := s.resolve(ctx, cb.CheckoutRef)
	if err != nil {
		if errors.Is(err, reconcile.ErrSessionNotFound) {
			log.Warn("callback for unknown checkout ref")
			return nil
		}
		log.Error("callback lookup failed", "error", err)
		return err
	}
	sessionID := tx.SessionID
	event.SessionID = &sessionID

	_, applied, err := s.engine.Apply(ctx, tx.SessionID, cb.Signal(), reconcile.SourceCallback)
	if err != nil {
		log.Error("apply callback failed", "session_id", tx.SessionID, "error", err)
		return err
	}
	event.Applied = applied
	return nil
}

// resolve finds the session for a checkout ref. The store is authoritative;
// the cache covers the window where the push was accepted but the ref has
// not been persisted yet.
func (s *CallbackService) resolve(ctx context.Context, checkoutRef string) (*models.Transaction, error) {
	tx, err := s.store.GetByCheckoutRef(ctx, checkoutRef)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, reconcile.ErrSessionNotFound) {
		return nil, err
	}

	sessionID, ok := s.cache.SessionIDForCheckoutRef(ctx, checkoutRef)
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", checkoutRef, reconcile.ErrSessionNotFound)
	}
	tx, err = s.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tx.CheckoutRef == nil {
		if _, err := s.store.SetCheckoutRef(ctx, sessionID, checkoutRef); err != nil {
			s.logger.Warn("backfill checkout ref failed", "session_id", sessionID, "error", err)
		}
	}
	return tx, nil
}

func (s *CallbackService) record(ctx context.Context, event *models.CallbackEvent) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to record callback event", "checkout_ref", event.CheckoutRef, "error", err)
	}
}

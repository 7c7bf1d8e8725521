package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/provider"
	"github.com/vouh/Course-corner-sub000/internal/reconcile"
	"github.com/vouh/Course-corner-sub000/internal/repo"
)

type SweepConfig struct {
	MinAge          time.Duration
	ExpireAfter     time.Duration
	QueryInterval   time.Duration
	BatchSize       int
	ProviderTimeout time.Duration
}

type SweepReport struct {
	Scanned    int       `json:"scanned"`
	Queried    int       `json:"queried"`
	Applied    int       `json:"applied"`
	Expired    int       `json:"expired"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Sweeper confirms sessions whose callback never arrived, and expires the
// ones that have waited past the confirmation window.
type Sweeper struct {
	store    TransactionStore
	provider provider.Client
	engine   *reconcile.Engine
	logger   *slog.Logger
	cfg      SweepConfig
	now      func() time.Time
}

func NewSweeper(store TransactionStore, client provider.Client, engine *reconcile.Engine, logger *slog.Logger, cfg SweepConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	return &Sweeper{
		store:    store,
		provider: client,
		engine:   engine,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run makes one pass over every awaiting session older than MinAge, oldest
// first. Provider queries are spaced by QueryInterval. Cancelling ctx stops
// the pass between items; the partial report is returned with ctx's error.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{StartedAt: s.now().UTC()}
	defer func() { report.FinishedAt = s.now().UTC() }()

	cutoff := s.now().Add(-s.cfg.MinAge)
	var after repo.AwaitingCursor

	for {
		page, err := s.store.ListAwaiting(ctx, after, cutoff, s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("sweep: %w", err)
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := s.sweepOne(ctx, page[i], report); err != nil {
				return report, err
			}
		}

		if len(page) < s.cfg.BatchSize {
			break
		}
		after = repo.CursorOf(page[len(page)-1])
	}

	s.logger.Info("sweep finished",
		"scanned", report.Scanned,
		"queried", report.Queried,
		"applied", report.Applied,
		"expired", report.Expired,
		"errors", report.Errors,
	)
	return report, nil
}

// sweepOne only returns an error when the pass must stop.
func (s *Sweeper) sweepOne(ctx context.Context, tx models.Transaction, report *SweepReport) error {
	report.Scanned++
	log := s.logger.With("session_id", tx.SessionID)

	if s.now().Sub(tx.CreatedAt) >= s.cfg.ExpireAfter {
		_, applied, err := s.engine.Apply(ctx, tx.SessionID, reconcile.Expired(reconcile.ReasonConfirmationTimeout), reconcile.SourceSweep)
		if err != nil {
			log.Error("expire session failed", "error", err)
			report.Errors++
			return nil
		}
		if applied {
			report.Expired++
		}
		return nil
	}

	ref := tx.CheckoutRefValue()
	if ref == "" {
		log.Debug("awaiting session without checkout ref, left for expiry")
		return nil
	}

	if report.Queried > 0 {
		if err := wait(ctx, s.cfg.QueryInterval); err != nil {
			return err
		}
	}
	report.Queried++

	queryCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	result, err := s.provider.Query(queryCtx, ref)
	cancel()
	if err != nil {
		log.Warn("sweep query failed", "checkout_ref", ref, "error", err)
		report.Errors++
		return nil
	}

	_, applied, err := s.engine.Apply(ctx, tx.SessionID, result.Signal(), reconcile.SourceSweep)
	if err != nil {
		log.Error("apply sweep result failed", "error", err)
		report.Errors++
		return nil
	}
	if applied {
		report.Applied++
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
)

// Reconciler re-dispatches submissions stranded between persistence and a
// confirmed judge handoff, for example after a crash mid-dispatch.
type Reconciler struct {
	repo        repository.SubmissionRepository
	coordinator *DispatchCoordinator
	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
	logger      zerolog.Logger
	now         func() time.Time
}

const defaultReconcileInterval = 30 * time.Second

// NewReconciler constructs a reconciler. staleAfter must exceed the judge
// timeout so first dispatches still in flight are left alone. A non-positive
// interval falls back to 30s.
func NewReconciler(repo repository.SubmissionRepository, coordinator *DispatchCoordinator, interval, staleAfter time.Duration, batchSize int, logger zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &Reconciler{
		repo:        repo,
		coordinator: coordinator,
		interval:    interval,
		staleAfter:  staleAfter,
		batchSize:   batchSize,
		logger:      logger.With().Str("component", "dispatch_reconciler").Logger(),
		now:         time.Now,
	}
}

// Sweep handles one batch of stale submissions and returns how many were
// dispatched.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.repo.ListStale(ctx, r.now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return 0, err
	}
	observability.StaleUndispatched().Set(float64(len(stale)))

	dispatched := 0
	for i := range stale {
		submission := stale[i]

		won, err := r.repo.Reclaim(ctx, submission)
		if err != nil {
			return dispatched, err
		}
		if !won {
			observability.Reconciled().WithLabelValues("skipped").Inc()
			continue
		}

		if err := r.coordinator.deliver(ctx, &submission); err != nil {
			observability.Reconciled().WithLabelValues("failed").Inc()
			r.logger.Warn().
				Err(err).
				Str("submission_id", submission.ID).
				Int("attempts", submission.DispatchAttempts+1).
				Msg("re-dispatch failed")
			continue
		}

		dispatched++
		observability.Reconciled().WithLabelValues("dispatched").Inc()
	}

	if len(stale) > 0 {
		r.logger.Info().Int("stale", len(stale)).Int("dispatched", dispatched).Msg("reconcile sweep finished")
	}
	return dispatched, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("reconcile sweep failed")
			}
		}
	}
}

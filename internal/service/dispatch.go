package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-judge/internal/judge"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
)

var errClaimLost = errors.New("submission claimed by another dispatcher")

// SubmissionDraft carries the fields of a submission about to be created.
type SubmissionDraft struct {
	ProblemID uint
	ContestID *uint
	LectureID *uint
	UserID    uint
	Username  string
	Language  string
	Code      string
	IP        string
}

// DispatchCoordinator persists submissions and hands them to the judge
// exactly once per submission id.
type DispatchCoordinator struct {
	repo    repository.SubmissionRepository
	engine  judge.Engine
	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// DispatchOption customises the coordinator.
type DispatchOption func(*DispatchCoordinator)

// WithDispatchClock overrides the clock used for DispatchedAt.
func WithDispatchClock(now func() time.Time) DispatchOption {
	return func(d *DispatchCoordinator) {
		d.now = now
	}
}

// WithIDGenerator overrides submission id generation.
func WithIDGenerator(newID func() string) DispatchOption {
	return func(d *DispatchCoordinator) {
		d.newID = newID
	}
}

// NewDispatchCoordinator constructs a coordinator for engine.
func NewDispatchCoordinator(repo repository.SubmissionRepository, engine judge.Engine, timeout time.Duration, logger zerolog.Logger, opts ...DispatchOption) *DispatchCoordinator {
	d := &DispatchCoordinator{
		repo:    repo,
		engine:  engine,
		timeout: timeout,
		logger:  logger.With().Str("component", "dispatch_coordinator").Str("transport", engine.Name()).Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/gema-judge/internal/service/dispatch"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch stores a pending submission and hands it to the judge. When the
// judge does not accept it the record is deleted again and a dispatch error
// returned; if that delete fails the reconciler owns the record.
func (d *DispatchCoordinator) Dispatch(ctx context.Context, draft SubmissionDraft) (models.Submission, error) {
	ctx, span := d.tracer.Start(ctx, "submission.dispatch")
	defer span.End()

	submission := models.Submission{
		ID:            d.newID(),
		ProblemID:     draft.ProblemID,
		ContestID:     draft.ContestID,
		LectureID:     draft.LectureID,
		UserID:        draft.UserID,
		Username:      draft.Username,
		Language:      draft.Language,
		Code:          draft.Code,
		IP:            draft.IP,
		Result:        models.JudgeStatusPending,
		DispatchState: models.DispatchStatePending,
	}
	span.SetAttributes(attribute.String("submission.id", submission.ID), attribute.Int64("problem.id", int64(draft.ProblemID)))

	if err := d.repo.Create(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return models.Submission{}, fmt.Errorf("persist submission: %w", err)
	}

	claimed, err := d.repo.TransitionDispatch(ctx, submission.ID, models.DispatchStatePending, models.DispatchStateDispatching)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		d.compensate(ctx, submission.ID)
		return models.Submission{}, ErrDispatchFailed.Wrap(err)
	}
	if !claimed {
		span.SetStatus(codes.Error, "claim lost")
		d.logger.Warn().Str("submission_id", submission.ID).Msg("submission claimed elsewhere before dispatch")
		return models.Submission{}, ErrDispatchFailed.Wrap(errClaimLost)
	}
	submission.DispatchState = models.DispatchStateDispatching

	if err := d.deliver(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "judge rejected")
		logger := loggerFor(ctx, d.logger)
		logger.Error().Err(err).Str("submission_id", submission.ID).Msg("judge dispatch failed")
		d.compensate(ctx, submission.ID)
		return models.Submission{}, ErrDispatchFailed.Wrap(err)
	}

	span.SetStatus(codes.Ok, "dispatched")
	return submission, nil
}

// deliver invokes the engine for a submission this caller has claimed and
// records the handoff.
func (d *DispatchCoordinator) deliver(ctx context.Context, submission *models.Submission) error {
	judgeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	err := d.engine.Judge(judgeCtx, judge.Task{SubmissionID: submission.ID, ProblemID: submission.ProblemID})
	observability.DispatchLatency().WithLabelValues(d.engine.Name()).Observe(time.Since(started).Seconds())
	if err != nil {
		observability.Dispatches().WithLabelValues(d.engine.Name(), "failed").Inc()
		return err
	}
	observability.Dispatches().WithLabelValues(d.engine.Name(), "accepted").Inc()

	at := d.now()
	marked, err := d.repo.MarkDispatched(context.WithoutCancel(ctx), submission.ID, at)
	if err != nil || !marked {
		// The judge has the task; a later redelivery carries the same id.
		d.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to record dispatch")
	}

	submission.DispatchState = models.DispatchStateDispatched
	submission.DispatchedAt = &at
	return nil
}

// compensate removes a record whose dispatch was reported as failed. When the
// delete fails the record is abandoned instead, so the reconciler does not judge
// a submission the user was told had failed.
func (d *DispatchCoordinator) compensate(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	logger := loggerFor(ctx, d.logger).With().Str("submission_id", id).Logger()

	deleteErr := d.repo.Delete(ctx, id)
	if deleteErr == nil {
		observability.Dispatches().WithLabelValues(d.engine.Name(), "compensated").Inc()
		return
	}

	abandoned, err := d.repo.Abandon(ctx, id)
	if err == nil && abandoned {
		logger.Warn().Err(deleteErr).Msg("failed to remove undispatched submission; abandoned it")
		observability.Dispatches().WithLabelValues(d.engine.Name(), "abandoned").Inc()
		return
	}

	logger.Error().Err(deleteErr).AnErr("abandon_error", err).
		Msg("failed to remove undispatched submission; it will be redelivered by the reconciler")
}

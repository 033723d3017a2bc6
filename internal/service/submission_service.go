package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
)

// SubmissionService exposes the submission workflow.
type SubmissionService interface {
	Create(ctx context.Context, actor Actor, req dto.CreateSubmissionRequest) (dto.CreateSubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id string) (dto.SubmissionView, error)
	SetShared(ctx context.Context, actor Actor, req dto.ShareSubmissionRequest) error
	List(ctx context.Context, actor Actor, query dto.SubmissionListQuery) (dto.SubmissionPage, error)
	ListContest(ctx context.Context, actor Actor, contestID uint, query dto.SubmissionListQuery) (dto.SubmissionPage, error)
	Exists(ctx context.Context, actor Actor, problemID uint) (bool, error)
	Latest(ctx context.Context, actor Actor, problemID uint, contestID *uint) (*dto.SubmissionView, error)
	ApplyJudgeResult(ctx context.Context, result dto.JudgeResult) error
}

// SubmissionServiceConfig holds listing knobs.
type SubmissionServiceConfig struct {
	ShowAll     bool
	MaxPageSize int
}

type submissionService struct {
	repo       repository.SubmissionRepository
	problems   repository.ProblemRepository
	contests   repository.ContestRepository
	admission  *AdmissionController
	dispatcher *DispatchCoordinator
	validator  *validator.Validate
	cfg        SubmissionServiceConfig
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewSubmissionService constructs the submission service.
func NewSubmissionService(repo repository.SubmissionRepository, problems repository.ProblemRepository, contests repository.ContestRepository, admission *AdmissionController, dispatcher *DispatchCoordinator, validate *validator.Validate, cfg SubmissionServiceConfig, logger zerolog.Logger) SubmissionService {
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 250
	}
	return &submissionService{
		repo:       repo,
		problems:   problems,
		contests:   contests,
		admission:  admission,
		dispatcher: dispatcher,
		validator:  validate,
		cfg:        cfg,
		logger:     logger.With().Str("component", "submission_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-judge/internal/service/submission"),
		now:        time.Now,
	}
}

func (s *submissionService) Create(ctx context.Context, actor Actor, req dto.CreateSubmissionRequest) (dto.CreateSubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.create")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.CreateSubmissionResponse{}, ErrInvalidParameter.Wrap(err)
	}
	if len(req.Code) > dto.MaxCodeBytes {
		span.SetStatus(codes.Error, "code too large")
		return dto.CreateSubmissionResponse{}, ErrInvalidParameter.WithMessage("Code must not exceed %d bytes", dto.MaxCodeBytes)
	}
	if !actor.IsAuthenticated() {
		span.SetStatus(codes.Error, "anonymous")
		return dto.CreateSubmissionResponse{}, ErrNoPermission.WithMessage("Please login first")
	}
	span.SetAttributes(attribute.Int64("problem.id", int64(req.ProblemID)), attribute.String("submission.language", req.Language))

	admission, err := s.admission.Admit(ctx, AdmissionRequest{
		Actor:     actor,
		ProblemID: req.ProblemID,
		ContestID: req.ContestID,
		Language:  req.Language,
		Captcha:   req.Captcha,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "admission rejected")
		return dto.CreateSubmissionResponse{}, err
	}

	draft := SubmissionDraft{
		ProblemID: admission.Problem.ID,
		UserID:    actor.ID,
		Username:  actor.Username,
		Language:  req.Language,
		Code:      req.Code,
		IP:        actor.IP,
	}
	if admission.Contest != nil {
		contestID := admission.Contest.ID
		draft.ContestID = &contestID
		draft.LectureID = admission.Contest.LectureID
	}

	submission, err := s.dispatcher.Dispatch(ctx, draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return dto.CreateSubmissionResponse{}, err
	}

	logger := loggerFor(ctx, s.logger)
	logger.Info().
		Str("submission_id", submission.ID).
		Uint("user_id", actor.ID).
		Uint("problem_id", submission.ProblemID).
		Bool("hidden", admission.HideID).
		Msg("submission dispatched")
	span.SetStatus(codes.Ok, "dispatched")

	if admission.HideID {
		return dto.CreateSubmissionResponse{Hidden: true}, nil
	}
	return dto.CreateSubmissionResponse{SubmissionID: submission.ID}, nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id string) (dto.SubmissionView, error) {
	if id == "" {
		return dto.SubmissionView{}, ErrInvalidParameter.WithMessage("Parameter id doesn't exist")
	}
	if !actor.IsAuthenticated() {
		return dto.SubmissionView{}, ErrNoPermission.WithMessage("Please login first")
	}

	submission, err := s.load(ctx, id)
	if err != nil {
		return dto.SubmissionView{}, err
	}

	now := s.now()
	if !canView(actor, submission, submission.Contest, true, now) {
		return dto.SubmissionView{}, ErrNoPermission
	}

	full := submission.Problem.RuleType == models.RuleTypeOI || actor.IsAdminRole()
	view := dto.NewSubmissionView(submission, full)
	view.CanUnshare = canView(actor, submission, submission.Contest, false, now)
	return view, nil
}

func (s *submissionService) SetShared(ctx context.Context, actor Actor, req dto.ShareSubmissionRequest) error {
	ctx, span := s.tracer.Start(ctx, "submission.set_shared")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return ErrInvalidParameter.Wrap(err)
	}
	if !actor.IsAuthenticated() {
		return ErrNoPermission.WithMessage("Please login first")
	}
	span.SetAttributes(attribute.String("submission.id", req.ID), attribute.Bool("submission.shared", req.Shared))

	submission, err := s.load(ctx, req.ID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := s.now()
	if !canView(actor, submission, submission.Contest, false, now) {
		span.SetStatus(codes.Error, "no permission")
		return ErrNoPermission.WithMessage("No permission to share the submission")
	}
	if submission.Contest != nil && submission.Contest.Status(now) == models.ContestStatusUnderway {
		span.SetStatus(codes.Error, "contest in progress")
		return ErrContestInProgress
	}

	if err := s.repo.UpdateShared(ctx, submission.ID, req.Shared); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return fmt.Errorf("update shared flag: %w", err)
	}

	span.SetStatus(codes.Ok, "updated")
	return nil
}

func (s *submissionService) List(ctx context.Context, actor Actor, query dto.SubmissionListQuery) (dto.SubmissionPage, error) {
	if err := s.validateListQuery(query); err != nil {
		return dto.SubmissionPage{}, err
	}
	if query.ContestID != nil {
		return dto.SubmissionPage{}, ErrInvalidParameter
	}

	filter := repository.SubmissionFilter{
		NonContest: true,
		Result:     query.Result,
		Limit:      s.pageSize(query.Limit),
		Offset:     query.Offset,
	}

	if query.ProblemID != "" {
		problem, err := s.problems.GetVisibleByDisplayID(ctx, query.ProblemID, nil)
		if err != nil {
			return dto.SubmissionPage{}, translateNotFound(err, ErrProblemNotFound)
		}
		filter.ProblemID = &problem.ID
	}

	if query.Myself || !s.cfg.ShowAll {
		userID := actor.ID
		filter.UserID = &userID
	} else if query.Username != "" {
		filter.Username = query.Username
	}

	return s.page(ctx, actor, nil, filter)
}

func (s *submissionService) ListContest(ctx context.Context, actor Actor, contestID uint, query dto.SubmissionListQuery) (dto.SubmissionPage, error) {
	if err := s.validateListQuery(query); err != nil {
		return dto.SubmissionPage{}, err
	}

	contest, err := s.contests.GetByID(ctx, contestID)
	if err != nil {
		return dto.SubmissionPage{}, translateNotFound(err, ErrContestNotFound)
	}

	now := s.now()
	if err := checkContestAccess(actor, &contest, scopeSubmissions, now); err != nil {
		return dto.SubmissionPage{}, err
	}

	filter := repository.SubmissionFilter{
		ContestID: &contest.ID,
		Result:    query.Result,
		Limit:     s.pageSize(query.Limit),
		Offset:    query.Offset,
	}

	if query.ProblemID != "" {
		problem, err := s.problems.GetVisibleByDisplayID(ctx, query.ProblemID, &contest.ID)
		if err != nil {
			return dto.SubmissionPage{}, translateNotFound(err, ErrProblemNotFound)
		}
		filter.ProblemID = &problem.ID
	}

	userID := actor.ID
	if query.Myself {
		filter.UserID = &userID
	} else if query.Username != "" {
		filter.Username = query.Username
	}

	// Test submissions made before the contest opened are not part of it.
	if contest.Status(now) != models.ContestStatusNotStarted {
		start := contest.StartTime
		filter.CreatedFrom = &start
	}

	// Frozen scoreboard: only own submissions are visible.
	if contest.RuleType == models.RuleTypeACM && !contest.RealTimeRank && !actor.IsContestAdmin(&contest) {
		filter.UserID = &userID
	}

	return s.page(ctx, actor, &contest, filter)
}

func (s *submissionService) Exists(ctx context.Context, actor Actor, problemID uint) (bool, error) {
	if problemID == 0 {
		return false, ErrInvalidParameter.WithMessage("Parameter error, problem_id is required")
	}
	if !actor.IsAuthenticated() {
		return false, nil
	}
	return s.repo.Exists(ctx, problemID, actor.ID)
}

func (s *submissionService) Latest(ctx context.Context, actor Actor, problemID uint, contestID *uint) (*dto.SubmissionView, error) {
	if !actor.IsAuthenticated() || problemID == 0 {
		return nil, nil
	}

	submission, err := s.repo.Latest(ctx, actor.ID, problemID, contestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest submission: %w", err)
	}

	view := dto.NewSubmissionView(submission, true)
	view.CanUnshare = true
	return &view, nil
}

func (s *submissionService) ApplyJudgeResult(ctx context.Context, result dto.JudgeResult) error {
	if err := s.validator.Struct(result); err != nil {
		return ErrInvalidParameter.Wrap(err)
	}
	if !models.ValidJudgeStatus(result.Result) {
		return ErrInvalidParameter.WithMessage("unknown judge status %d", result.Result)
	}

	updated, err := s.repo.UpdateResult(ctx, result.SubmissionID, result.Result, result.Info, result.StatisticInfo)
	if err != nil {
		return fmt.Errorf("store judge result: %w", err)
	}
	if !updated {
		logger := loggerFor(ctx, s.logger)
		logger.Warn().Str("submission_id", result.SubmissionID).Msg("judge result for unknown submission ignored")
		return nil
	}

	s.logger.Debug().Str("submission_id", result.SubmissionID).Int("result", result.Result).Msg("judge result applied")
	return nil
}

func (s *submissionService) load(ctx context.Context, id string) (models.Submission, error) {
	submission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, translateNotFound(err, ErrSubmissionNotFound)
	}
	return submission, nil
}

func (s *submissionService) validateListQuery(query dto.SubmissionListQuery) error {
	if query.Limit <= 0 {
		return ErrInvalidParameter.WithMessage("Limit is needed")
	}
	if err := s.validator.Struct(query); err != nil {
		return ErrInvalidParameter.Wrap(err)
	}
	return nil
}

func (s *submissionService) pageSize(limit int) int {
	if limit > s.cfg.MaxPageSize {
		return s.cfg.MaxPageSize
	}
	return limit
}

func (s *submissionService) page(ctx context.Context, actor Actor, contest *models.Contest, filter repository.SubmissionFilter) (dto.SubmissionPage, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.SubmissionPage{}, fmt.Errorf("list submissions: %w", err)
	}

	now := s.now()
	results := make([]dto.SubmissionListItem, 0, len(items))
	for _, item := range items {
		results = append(results, dto.NewSubmissionListItem(item, canView(actor, item, contest, true, now)))
	}
	return dto.SubmissionPage{Results: results, Total: total}, nil
}

func translateNotFound(err error, notFound *Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// canView decides whether actor may read submission. Owners, super admins,
// admins managing every problem and the problem author always may. With
// share rules, others may read once the contest (if any) has ended and the
// problem or the submission is shared.
func canView(actor Actor, submission models.Submission, contest *models.Contest, shareRules bool, now time.Time) bool {
	if !actor.IsAuthenticated() {
		return false
	}
	if submission.UserID == actor.ID ||
		actor.IsSuperAdmin() ||
		actor.CanManageAllProblems() ||
		submission.Problem.CreatedByID == actor.ID {
		return true
	}
	if !shareRules {
		return false
	}
	if contest != nil && contest.Status(now) != models.ContestStatusEnded {
		return false
	}
	return submission.Problem.ShareSubmission || submission.Shared
}

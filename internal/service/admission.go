package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/captcha"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/ratelimit"
	"github.com/noah-isme/gema-judge/internal/repository"
)

// AdmissionRequest is the input of an admission decision. Checks record the
// entities they resolve on it for later checks and for the final Admission.
type AdmissionRequest struct {
	Actor     Actor
	ProblemID uint
	ContestID *uint
	Language  string
	Captcha   string

	contest *models.Contest
	problem *models.Problem
	hideID  bool
}

// Admission is the outcome of a successful admission.
type Admission struct {
	Problem models.Problem
	Contest *models.Contest
	HideID  bool
}

// AdmissionCheck is one named gate of the admission pipeline.
type AdmissionCheck struct {
	Name string
	Run  func(ctx context.Context, req *AdmissionRequest) error
}

// AdmissionController runs the submission gates in a fixed order and stops at
// the first failure. Tokens consumed by the throttle gate are not refunded
// when a later gate fails.
type AdmissionController struct {
	problems repository.ProblemRepository
	contests repository.ContestRepository
	captcha  captcha.Validator
	bucket   *ratelimit.Bucket
	logger   zerolog.Logger
	now      func() time.Time
	checks   []AdmissionCheck
}

// AdmissionOption customises the controller.
type AdmissionOption func(*AdmissionController)

// WithAdmissionClock overrides the clock used for contest status.
func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(c *AdmissionController) {
		c.now = now
	}
}

// NewAdmissionController wires the gates in their mandatory order: contest,
// captcha, throttle, problem, language.
func NewAdmissionController(problems repository.ProblemRepository, contests repository.ContestRepository, captchaValidator captcha.Validator, bucket *ratelimit.Bucket, logger zerolog.Logger, opts ...AdmissionOption) *AdmissionController {
	c := &AdmissionController{
		problems: problems,
		contests: contests,
		captcha:  captchaValidator,
		bucket:   bucket,
		logger:   logger.With().Str("component", "admission_controller").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.checks = []AdmissionCheck{
		{Name: "contest", Run: c.checkContest},
		{Name: "captcha", Run: c.checkCaptcha},
		{Name: "throttle", Run: c.checkThrottle},
		{Name: "problem", Run: c.checkProblem},
		{Name: "language", Run: c.checkLanguage},
	}
	return c
}

// Checks returns the gate names in evaluation order.
func (c *AdmissionController) Checks() []string {
	names := make([]string, 0, len(c.checks))
	for _, check := range c.checks {
		names = append(names, check.Name)
	}
	return names
}

// Admit evaluates every gate in order.
func (c *AdmissionController) Admit(ctx context.Context, req AdmissionRequest) (Admission, error) {
	for _, check := range c.checks {
		if err := check.Run(ctx, &req); err != nil {
			observability.Admissions().WithLabelValues(CodeOf(err)).Inc()
			logger := loggerFor(ctx, c.logger)
			logger.Debug().
				Err(err).
				Str("check", check.Name).
				Uint("user_id", req.Actor.ID).
				Uint("problem_id", req.ProblemID).
				Msg("submission rejected")
			return Admission{}, err
		}
	}

	observability.Admissions().WithLabelValues("admitted").Inc()
	return Admission{Problem: *req.problem, Contest: req.contest, HideID: req.hideID}, nil
}

func (c *AdmissionController) checkContest(ctx context.Context, req *AdmissionRequest) error {
	if req.ContestID == nil {
		return nil
	}

	contest, err := c.contests.GetByID(ctx, *req.ContestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrContestNotFound
		}
		return fmt.Errorf("load contest %d: %w", *req.ContestID, err)
	}

	now := c.now()
	if err := checkContestAccess(req.Actor, &contest, scopeProblems, now); err != nil {
		return err
	}
	if contest.Status(now) == models.ContestStatusEnded {
		return ErrContestClosed
	}
	if !req.Actor.IsContestAdmin(&contest) && len(contest.AllowedIPRanges) > 0 {
		if !ipAllowed(req.Actor.IP, contest.AllowedIPRanges, c.logger) {
			return ErrIPNotAllowed
		}
	}

	req.contest = &contest
	req.hideID = !req.Actor.problemDetailsVisible(&contest, now)
	return nil
}

func (c *AdmissionController) checkCaptcha(ctx context.Context, req *AdmissionRequest) error {
	if req.Captcha == "" {
		return nil
	}
	if c.captcha == nil {
		return ErrInvalidCaptcha
	}

	ok, err := c.captcha.Check(ctx, req.Actor.SessionID, req.Captcha)
	if err != nil {
		return fmt.Errorf("check captcha: %w", err)
	}
	if !ok {
		return ErrInvalidCaptcha
	}
	return nil
}

func (c *AdmissionController) checkThrottle(ctx context.Context, req *AdmissionRequest) error {
	if req.Actor.Trusted() || c.bucket == nil {
		observability.Throttles().WithLabelValues("bypass").Inc()
		return nil
	}

	decision, err := c.bucket.Consume(ctx, strconv.FormatUint(uint64(req.Actor.ID), 10))
	if err != nil {
		return fmt.Errorf("consume submission token: %w", err)
	}
	if !decision.Allowed {
		observability.Throttles().WithLabelValues("denied").Inc()
		return rateLimited(decision.Wait)
	}

	observability.Throttles().WithLabelValues("allowed").Inc()
	return nil
}

func (c *AdmissionController) checkProblem(ctx context.Context, req *AdmissionRequest) error {
	problem, err := c.problems.GetVisible(ctx, req.ProblemID, req.ContestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProblemNotFound
		}
		return fmt.Errorf("load problem %d: %w", req.ProblemID, err)
	}

	req.problem = &problem
	return nil
}

func (c *AdmissionController) checkLanguage(_ context.Context, req *AdmissionRequest) error {
	if !req.problem.AllowsLanguage(req.Language) {
		return ErrLanguageNotAllowed.WithMessage("Language %q is not allowed for this problem", req.Language)
	}
	return nil
}

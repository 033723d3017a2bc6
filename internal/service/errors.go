package service

import (
	"errors"
	"fmt"
	"time"
)

// Kind groups error codes into the categories callers branch on.
type Kind string

// Error kinds surfaced by the submission workflow.
const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindPermission   Kind = "permission"
	KindRateLimited  Kind = "rate_limited"
	KindCaptcha      Kind = "captcha"
	KindContestState Kind = "contest_state"
	KindDispatch     Kind = "dispatch"
)

// Stable error codes.
const (
	CodeInvalidParameter        = "invalid_parameter"
	CodeSubmissionNotFound      = "submission_not_found"
	CodeProblemNotFound         = "problem_not_found"
	CodeContestNotFound         = "contest_not_found"
	CodeNoPermission            = "no_permission"
	CodeIPNotAllowed            = "ip_not_allowed"
	CodeLanguageNotAllowed      = "language_not_allowed"
	CodeRateLimited             = "rate_limited"
	CodeInvalidCaptcha          = "invalid_captcha"
	CodeContestClosed           = "contest_closed"
	CodeContestNotStarted       = "contest_not_started"
	CodeContestPasswordRequired = "contest_password_required"
	CodeContestInProgress       = "contest_in_progress"
	CodeDispatchFailed          = "dispatch_failed"
)

// Error is the typed failure returned by every submission operation.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so detailed errors still match their sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// WithMessage returns a copy of the sentinel with a more specific user-facing message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

// Wrap returns a copy of the sentinel carrying cause for logs.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

var (
	// ErrInvalidParameter indicates a malformed request.
	ErrInvalidParameter = &Error{Kind: KindValidation, Code: CodeInvalidParameter, Message: "Parameter error"}
	// ErrLanguageNotAllowed indicates the problem does not accept the submitted language.
	ErrLanguageNotAllowed = &Error{Kind: KindValidation, Code: CodeLanguageNotAllowed, Message: "Language is not allowed for this problem"}
	// ErrSubmissionNotFound indicates the submission id is unknown.
	ErrSubmissionNotFound = &Error{Kind: KindNotFound, Code: CodeSubmissionNotFound, Message: "Submission doesn't exist"}
	// ErrProblemNotFound indicates the problem is missing, hidden or outside the contest.
	ErrProblemNotFound = &Error{Kind: KindNotFound, Code: CodeProblemNotFound, Message: "Problem doesn't exist"}
	// ErrContestNotFound indicates the contest id is unknown or hidden.
	ErrContestNotFound = &Error{Kind: KindNotFound, Code: CodeContestNotFound, Message: "Contest doesn't exist"}
	// ErrNoPermission indicates the actor may not view or change the submission.
	ErrNoPermission = &Error{Kind: KindPermission, Code: CodeNoPermission, Message: "No permission for this submission"}
	// ErrIPNotAllowed indicates the actor's address is outside the contest ranges.
	ErrIPNotAllowed = &Error{Kind: KindPermission, Code: CodeIPNotAllowed, Message: "Your IP is not allowed in this contest"}
	// ErrRateLimited indicates the actor's token bucket is empty.
	ErrRateLimited = &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: "Please wait before submitting again"}
	// ErrInvalidCaptcha indicates a wrong or expired captcha answer.
	ErrInvalidCaptcha = &Error{Kind: KindCaptcha, Code: CodeInvalidCaptcha, Message: "Invalid captcha"}
	// ErrContestClosed indicates the contest has ended.
	ErrContestClosed = &Error{Kind: KindContestState, Code: CodeContestClosed, Message: "The contest has ended"}
	// ErrContestNotStarted indicates the contest has not started yet.
	ErrContestNotStarted = &Error{Kind: KindContestState, Code: CodeContestNotStarted, Message: "Contest has not started yet"}
	// ErrContestPasswordRequired indicates the actor has not unlocked a password-protected contest.
	ErrContestPasswordRequired = &Error{Kind: KindContestState, Code: CodeContestPasswordRequired, Message: "Wrong password or password expired"}
	// ErrContestInProgress indicates sharing is blocked while the contest runs.
	ErrContestInProgress = &Error{Kind: KindContestState, Code: CodeContestInProgress, Message: "Can not share submission now"}
	// ErrDispatchFailed indicates the judge did not accept the submission.
	ErrDispatchFailed = &Error{Kind: KindDispatch, Code: CodeDispatchFailed, Message: "Failed to dispatch submission to the judge"}
)

// rateLimited builds the throttle failure with the wait rounded to whole seconds.
func rateLimited(wait time.Duration) *Error {
	seconds := int(wait / time.Second)
	err := ErrRateLimited.WithMessage("Please wait %d seconds", seconds)
	err.RetryAfter = wait
	return err
}

// KindOf returns the kind of err, or an empty kind for infrastructure failures.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// CodeOf returns the discriminant code of err, or "internal" for untyped failures.
func CodeOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return "internal"
}

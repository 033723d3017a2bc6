package utils

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/service"
)

// APIResponse is the JSON envelope returned by every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// SendSuccess writes a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}

	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError writes a failure envelope with the given status.
func SendError(c *fiber.Ctx, status int, message string) error {
	return SendErrorWithData(c, status, message, nil)
}

// SendErrorWithData writes a failure envelope that still carries a payload.
func SendErrorWithData(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(APIResponse{
		Success: false,
		Data:    data,
		Message: message,
	})
}

// SendServiceError maps a submission workflow error onto an HTTP status and envelope.
// It is the contract for the HTTP front end that calls SubmissionService; the ops
// app exposes no submission routes.
// Throttled requests also get a Retry-After header in whole seconds.
func SendServiceError(c *fiber.Ctx, err error) error {
	var typed *service.Error
	if !errors.As(err, &typed) {
		return c.Status(fiber.StatusInternalServerError).JSON(APIResponse{
			Message: "internal error",
			Code:    service.CodeOf(err),
		})
	}

	if typed.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(typed.RetryAfter.Seconds()))))
	}

	return c.Status(StatusForKind(typed.Kind)).JSON(APIResponse{
		Message: typed.Message,
		Code:    typed.Code,
	})
}

// StatusForKind returns the HTTP status used for an error kind.
func StatusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation, service.KindCaptcha:
		return fiber.StatusBadRequest
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindPermission:
		return fiber.StatusForbidden
	case service.KindRateLimited:
		return fiber.StatusTooManyRequests
	case service.KindContestState:
		return fiber.StatusConflict
	case service.KindDispatch:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string     `json:"code"`
	Message string     `json:"message"`
	RetryAt *time.Time `json:"retryAt,omitempty"`
}

// Envelope wraps every API response.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// OK writes data in a success envelope.
func OK(c fiber.Ctx, data any) error {
	return c.JSON(Envelope{Success: true, Data: data})
}

func Created(c fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{Success: true, Data: data})
}

// ErrorResponse writes an error envelope with the given status.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// WriteError maps err to a status and error envelope. Internal errors are
// logged and replaced by a generic message.
func WriteError(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return ErrorResponse(c, fe.Code, fiberErrorCode(fe.Code), fe.Message)
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		RequestLog(c).Error().Err(err).Str("path", sanitizePath(c.Path())).Msg("request failed")
		return ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
	if ae.Kind == apperr.KindUpstream {
		RequestLog(c).Warn().Err(err).Str("path", sanitizePath(c.Path())).Msg("upstream failure")
	}

	body := &ErrorBody{Code: ae.Code, Message: ae.Message}
	if ae.Kind == apperr.KindQuotaExceeded && !ae.RetryAt.IsZero() {
		retryAt := ae.RetryAt.UTC()
		body.RetryAt = &retryAt
		body.Message = fmt.Sprintf("%s. Try again after %s.", ae.Message, retryAt.Format(time.RFC1123))
		c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", max(int(time.Until(retryAt).Seconds()), 1)))
	}
	return c.Status(ae.Kind.HTTPStatus()).JSON(Envelope{Error: body})
}

// ErrorHandler is the fiber app error handler.
func ErrorHandler(c fiber.Ctx, err error) error {
	return WriteError(c, err)
}

func fiberErrorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "BAD_REQUEST"
}

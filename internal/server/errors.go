package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/marketplace/internal/audit/domain"
	"github.com/smallbiznis/marketplace/internal/authorization"
	"github.com/smallbiznis/marketplace/pkg/db"
	"github.com/smallbiznis/marketplace/pkg/domainerr"
)

type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate_limited")
	ErrIdempotencyConflict = errors.New("idempotency_conflict")
	ErrInvalidRequest      = domainerr.Validation("invalid_request", "invalid request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidField(field string) error {
	return &fieldError{field: field}
}

// fieldError is a malformed request parameter.
type fieldError struct {
	field string
}

func (e *fieldError) Error() string { return "invalid " + e.field }

func mapError(err error) (int, errorPayload) {
	var fErr *fieldError
	if errors.As(err, &fErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    string(domainerr.KindValidation),
			Code:    "invalid_request",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   fErr.field,
				Code:    "invalid_" + fErr.field,
				Message: fErr.Error(),
			}},
		}
	}

	if de, ok := domainerr.As(err); ok {
		status := http.StatusBadRequest
		switch de.Kind {
		case domainerr.KindNotFound:
			status = http.StatusNotFound
		case domainerr.KindConflict:
			status = http.StatusConflict
		}
		return status, errorPayload{
			Type:    string(de.Kind),
			Code:    de.Code,
			Message: de.Error(),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict, errorPayload{
			Type:    string(domainerr.KindConflict),
			Code:    "idempotency_conflict",
			Message: "request with this idempotency key was already processed",
		}
	case errors.Is(err, auditdomain.ErrInvalidProvider),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, authorization.ErrInvalidOrganization):
		return http.StatusBadRequest, errorPayload{
			Type:    string(domainerr.KindValidation),
			Code:    err.Error(),
			Message: "validation error",
		}
	case db.IsRecordNotFound(err):
		return http.StatusNotFound, errorPayload{
			Type:    string(domainerr.KindNotFound),
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type and code the
// caller receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

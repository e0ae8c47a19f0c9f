package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Error codes returned in the response body
const (
	CodeNotFound              = "NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeInvalidState          = "INVALID_STATE"
	CodeStaleAssessment       = "STALE_ASSESSMENT"
	CodeValidation            = "VALIDATION_FAILED"
	CodeAssessmentUnavailable = "ASSESSMENT_UNAVAILABLE"
	CodeUnauthenticated       = "UNAUTHENTICATED"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
	CodeInternal              = "INTERNAL_ERROR"
)

// statusFor maps an engine error to an HTTP status and error code.
// Stale assessments are a kind of invalid state and share its status.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, entity.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, entity.ErrStaleAssessment):
		return http.StatusConflict, CodeStaleAssessment
	case errors.Is(err, entity.ErrInvalidState), errors.Is(err, entity.ErrVersionConflict):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, entity.ErrAssessmentUnavailable):
		return http.StatusServiceUnavailable, CodeAssessmentUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// respondError writes the error envelope. Internal errors are logged and
// their details withheld from the client.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err)
		msg = "internal error"
	}

	c.JSON(status, Response{
		Success: false,
		Error:   msg,
		Code:    code,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    CodeValidation,
	})
}

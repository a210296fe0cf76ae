package httpapi

import (
	"errors"
	"net/http"

	"triage-platform/internal/dispatch"
	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"
	"triage-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// apiError maps a domain error to a status and a message fit for the UI.
func apiError(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrPersistence):
		return http.StatusBadGateway, "The report could not be saved. The call is still assigned to you; please try again."
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound, "This call is no longer in the queue."
	case errors.Is(err, queue.ErrDuplicateID):
		return http.StatusConflict, "A call with this id is already queued."
	case errors.Is(err, dispatch.ErrAlreadyClaimed):
		return http.StatusConflict, "Another counselor has already taken this call."
	case errors.Is(err, dispatch.ErrAlreadyReported):
		return http.StatusConflict, "Another counselor already filed the report for this call. Your report was not saved."
	case errors.Is(err, dispatch.ErrNotOwner):
		return http.StatusForbidden, "This call is assigned to another counselor."
	case errors.Is(err, dispatch.ErrInvalidState):
		return http.StatusConflict, "This call is not in a state that allows this action."
	case errors.Is(err, dispatch.ErrNotAvailable):
		return http.StatusConflict, "Start your session before taking calls."
	case errors.Is(err, presence.ErrUnknownCounselor):
		return http.StatusNotFound, "Start your session first."
	case errors.Is(err, reports.ErrNotFound):
		return http.StatusNotFound, "Report not found."
	case errors.Is(err, dispatch.ErrInvalidInput), errors.Is(err, reports.ErrInvalidPayload), errors.Is(err, reports.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := apiError(err)
	code := dispatch.Code(err)
	if errors.Is(err, reports.ErrNotFound) {
		code = "not_found"
	} else if errors.Is(err, reports.ErrInvalidRequest) {
		code = "invalid_input"
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "code", code, "err", err)
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_input"})
}

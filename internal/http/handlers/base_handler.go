// README: Base handler utilities (JSON helpers, ID checks, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plow/internal/modules/job"
	"plow/internal/modules/payment"
	"plow/internal/modules/profile"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

// isValidID accepts UUIDs and Firebase UIDs.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, kind, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Kind: kind})
}

// writeJobError maps facade errors to HTTP statuses. Internal errors are
// attached to the gin context for the request log and never echoed.
func writeJobError(c *gin.Context, err error) {
	status, kind, retryable := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	writeJSON(c, status, errorResponse{Error: msg, Kind: kind, Retryable: retryable})
}

func classify(err error) (status int, kind string, retryable bool) {
	switch {
	case errors.Is(err, job.ErrEvidenceRejected):
		return http.StatusUnprocessableEntity, "evidence_rejected", false
	case errors.Is(err, job.ErrValidation), errors.Is(err, profile.ErrInvalidLocation):
		return http.StatusBadRequest, "validation", false
	case errors.Is(err, job.ErrNotFound):
		return http.StatusNotFound, "not_found", false
	case errors.Is(err, job.ErrForbidden):
		return http.StatusForbidden, "forbidden", false
	case errors.Is(err, job.ErrOperatorBusy):
		return http.StatusConflict, "operator_busy", true
	case errors.Is(err, job.ErrConflict):
		return http.StatusConflict, "conflict", true
	case errors.Is(err, job.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", false
	case errors.Is(err, payment.ErrPayment):
		return http.StatusPaymentRequired, "payment", false
	}
	return http.StatusInternalServerError, "internal", false
}

// pathID reads and checks the :id route parameter.
func pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "validation", "invalid job id")
		return "", false
	}
	return id, true
}

// bindJSON decodes an optional JSON body. An empty body leaves req unchanged.
func bindJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "validation", "invalid json")
		return false
	}
	return true
}

// README: Admin handlers for reopening cancelled jobs and refunding completed ones.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"plow/internal/http/middleware"
	"plow/internal/modules/dispatch"
	"plow/internal/types"
)

// AdminHandler relies on the service's administrator list, not on role claims.
type AdminHandler struct {
	jobs *dispatch.Service
}

func NewAdminHandler(svc *dispatch.Service) *AdminHandler {
	return &AdminHandler{jobs: svc}
}

type reopenReq struct {
	PaymentMethodRef string `json:"payment_method_ref"`
}

func (h *AdminHandler) Reopen(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req reopenReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.Reopen(c.Request.Context(), dispatch.ReopenCommand{
		JobID:            types.ID(id),
		AdminID:          types.ID(middleware.CallerUID(c)),
		PaymentMethodRef: req.PaymentMethodRef,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type refundReq struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Refund(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req refundReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.Refund(c.Request.Context(), dispatch.RefundCommand{
		JobID:   types.ID(id),
		AdminID: types.ID(middleware.CallerUID(c)),
		Reason:  req.Reason,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

// README: Operator handlers for accepting jobs, the job queue and the open job board.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"plow/internal/http/middleware"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/queue"
	"plow/internal/types"
)

type OperatorHandler struct {
	jobs          *dispatch.Service
	defaultPolicy queue.Policy
}

func NewOperatorHandler(svc *dispatch.Service, defaultPolicy queue.Policy) *OperatorHandler {
	return &OperatorHandler{jobs: svc, defaultPolicy: defaultPolicy}
}

// requireOperator answers 403 unless the caller carries the operator role.
func requireOperator(c *gin.Context) bool {
	if middleware.CallerRole(c) != middleware.RoleOperator {
		writeError(c, http.StatusForbidden, "forbidden", "forbidden: operator role required")
		return false
	}
	return true
}

// Accept handles POST /api/jobs/:id/accept. Operators accept for themselves only.
func (h *OperatorHandler) Accept(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	j, err := h.jobs.Accept(c.Request.Context(), dispatch.AcceptCommand{
		JobID:      types.ID(id),
		OperatorID: types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type queueEntryResponse struct {
	Job        *jobResponse `json:"job"`
	Position   int          `json:"position"`
	DistanceKm *float64     `json:"distance_km,omitempty"`
}

type queueResponse struct {
	OperatorID types.ID             `json:"operator_id"`
	Policy     queue.Policy         `json:"policy"`
	Active     *jobResponse         `json:"active,omitempty"`
	Queued     []queueEntryResponse `json:"queued"`
	InReview   []*jobResponse       `json:"in_review"`
}

// Queue handles GET /api/operators/me/queue?policy=fcfs|nearest.
func (h *OperatorHandler) Queue(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	policy := h.defaultPolicy
	if p := c.Query("policy"); p != "" {
		parsed, err := queue.ParsePolicy(p)
		if err != nil {
			writeJobError(c, err)
			return
		}
		policy = parsed
	}
	v, err := h.jobs.OperatorQueue(c.Request.Context(), types.ID(middleware.CallerUID(c)), policy)
	if err != nil {
		writeJobError(c, err)
		return
	}
	resp := queueResponse{
		OperatorID: v.OperatorID,
		Policy:     v.Policy,
		Active:     toJobResponse(v.Active),
		Queued:     make([]queueEntryResponse, 0, len(v.Queued)),
		InReview:   toJobResponses(v.InReview),
	}
	for _, e := range v.Queued {
		resp.Queued = append(resp.Queued, queueEntryResponse{Job: toJobResponse(e.Job), Position: e.Position, DistanceKm: e.DistanceKm})
	}
	writeJSON(c, http.StatusOK, resp)
}

type openJobResponse struct {
	Job        *jobResponse `json:"job"`
	DistanceKm float64      `json:"distance_km"`
}

// OpenJobs handles GET /api/operators/me/open-jobs?radius_km=&limit=.
func (h *OperatorHandler) OpenJobs(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation", "invalid radius_km")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation", "invalid limit")
		return
	}
	open, err := h.jobs.OpenJobs(c.Request.Context(), types.ID(middleware.CallerUID(c)), radius, limit)
	if err != nil {
		writeJobError(c, err)
		return
	}
	out := make([]openJobResponse, 0, len(open))
	for _, o := range open {
		out = append(out, openJobResponse{Job: toJobResponse(o.Job), DistanceKm: o.DistanceKm})
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": out})
}

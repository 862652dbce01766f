// README: Job handlers for booking, lifecycle events, cancel, complete and history.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"plow/internal/http/middleware"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/job"
	"plow/internal/types"
)

type JobHandler struct {
	jobs     *dispatch.Service
	currency string
}

// NewJobHandler uses currency for bookings that do not name one.
func NewJobHandler(svc *dispatch.Service, currency string) *JobHandler {
	return &JobHandler{jobs: svc, currency: currency}
}

type createJobReq struct {
	OperatorID       string     `json:"operator_id"`
	RequestID        string     `json:"request_id"`
	Services         []string   `json:"services"`
	Address          string     `json:"address"`
	Lat              *float64   `json:"lat"`
	Lng              *float64   `json:"lng"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	Price            string     `json:"price"`
	Currency         string     `json:"currency"`
	Notes            string     `json:"notes"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentMethodRef string     `json:"payment_method_ref"`
}

// Create handles POST /api/jobs. The caller is always the client.
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "validation", "invalid json")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	price, err := types.ParseMoney(req.Price, currency)
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(c, http.StatusBadRequest, "validation", "lat and lng must be given together")
		return
	}

	cmd := dispatch.CreateCommand{
		ClientID:  types.ID(middleware.CallerUID(c)),
		RequestID: req.RequestID,
		Details: job.Details{
			Address:     strings.TrimSpace(req.Address),
			ScheduledAt: req.ScheduledAt,
			Price:       price,
			Notes:       req.Notes,
		},
		PaymentMethod:    job.PaymentMethod(req.PaymentMethod),
		PaymentMethodRef: req.PaymentMethodRef,
	}
	if cmd.RequestID == "" {
		cmd.RequestID = c.GetHeader("Idempotency-Key")
	}
	for _, s := range req.Services {
		cmd.Details.Services = append(cmd.Details.Services, job.ServiceType(s))
	}
	if req.Lat != nil {
		cmd.Details.Site = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	if req.OperatorID != "" {
		if !isValidID(req.OperatorID) {
			writeError(c, http.StatusBadRequest, "validation", "invalid operator id")
			return
		}
		op := types.ID(req.OperatorID)
		cmd.OperatorID = &op
	}

	j, err := h.jobs.Create(c.Request.Context(), cmd)
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toJobResponse(j))
}

// List handles GET /api/jobs: the caller's bookings.
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.jobs.ListByClient(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"jobs": toJobResponses(jobs)})
}

func (h *JobHandler) Get(c *gin.Context) {
	j, ok := h.visibleJob(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type advanceReq struct {
	Event       string `json:"event"`
	EvidenceRef string `json:"evidence_ref"`
	Reason      string `json:"reason"`
}

// Advance handles POST /api/jobs/:id/events.
func (h *JobHandler) Advance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "validation", "invalid json")
		return
	}
	j, err := h.jobs.Advance(c.Request.Context(), dispatch.AdvanceCommand{
		JobID:       types.ID(id),
		ActorID:     types.ID(middleware.CallerUID(c)),
		Event:       job.EventKind(req.Event),
		EvidenceRef: req.EvidenceRef,
		Reason:      req.Reason,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.jobs.Cancel(c.Request.Context(), dispatch.CancelCommand{
		JobID:   types.ID(id),
		ActorID: types.ID(middleware.CallerUID(c)),
		Reason:  req.Reason,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toJobResponse(j))
}

type completeReq struct {
	EvidenceRef  string `json:"evidence_ref"`
	CashReceived string `json:"cash_received"`
	Tip          string `json:"tip"`
	SkipReview   bool   `json:"skip_review"`
}

// Complete handles POST /api/jobs/:id/complete. Cash amounts are decimal
// strings in the job's currency.
func (h *JobHandler) Complete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req completeReq
	if !bindJSON(c, &req) {
		return
	}
	cash, ok := parseMinor(c, req.CashReceived, "cash_received")
	if !ok {
		return
	}
	tip, ok := parseMinor(c, req.Tip, "tip")
	if !ok {
		return
	}
	res, err := h.jobs.Complete(c.Request.Context(), dispatch.CompleteCommand{
		JobID:        types.ID(id),
		ActorID:      types.ID(middleware.CallerUID(c)),
		EvidenceRef:  req.EvidenceRef,
		CashReceived: cash,
		TipAmount:    tip,
		SkipReview:   req.SkipReview,
	})
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"job": toJobResponse(res.Job), "transaction": res.Transaction})
}

func (h *JobHandler) Transactions(c *gin.Context) {
	j, ok := h.visibleJob(c)
	if !ok {
		return
	}
	txns, err := h.jobs.Transactions(c.Request.Context(), j.ID)
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, txns)
}

func (h *JobHandler) Events(c *gin.Context) {
	j, ok := h.visibleJob(c)
	if !ok {
		return
	}
	events, err := h.jobs.Events(c.Request.Context(), j.ID)
	if err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": toEventResponses(events)})
}

// visibleJob loads the :id job and checks the caller may read it.
func (h *JobHandler) visibleJob(c *gin.Context) (*job.Job, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	j, err := h.jobs.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeJobError(c, err)
		return nil, false
	}
	if !h.jobs.CanView(j, types.ID(middleware.CallerUID(c))) {
		writeJobError(c, job.ErrForbidden)
		return nil, false
	}
	return j, true
}

// parseMinor converts an optional decimal string into minor units.
func parseMinor(c *gin.Context, v, field string) (*int64, bool) {
	if v == "" {
		return nil, true
	}
	m, err := types.ParseMoney(v, "")
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation", field+": "+err.Error())
		return nil, false
	}
	return &m.Amount, true
}

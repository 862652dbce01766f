// README: Profile handlers: callers update their own location, device token and payout account.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"plow/internal/http/middleware"
	"plow/internal/modules/profile"
	"plow/internal/types"
)

type ProfileHandler struct {
	profiles profile.Writer
}

func NewProfileHandler(w profile.Writer) *ProfileHandler {
	return &ProfileHandler{profiles: w}
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// UpdateLocation handles PUT /api/profile/location.
func (h *ProfileHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "validation", "lat and lng are required")
		return
	}
	p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.profiles.SetLocation(c.Request.Context(), types.ID(middleware.CallerUID(c)), p); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type deviceTokenReq struct {
	Token string `json:"token"`
}

// UpdateDeviceToken handles PUT /api/profile/device-token.
func (h *ProfileHandler) UpdateDeviceToken(c *gin.Context) {
	var req deviceTokenReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(c, http.StatusBadRequest, "validation", "token is required")
		return
	}
	if err := h.profiles.SetDeviceToken(c.Request.Context(), types.ID(middleware.CallerUID(c)), strings.TrimSpace(req.Token)); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type payoutReq struct {
	Destination string `json:"destination"`
}

// UpdatePayout handles PUT /api/profile/payout. Operators only.
func (h *ProfileHandler) UpdatePayout(c *gin.Context) {
	if !requireOperator(c) {
		return
	}
	var req payoutReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Destination) == "" {
		writeError(c, http.StatusBadRequest, "validation", "destination is required")
		return
	}
	if err := h.profiles.SetPayoutDestination(c.Request.Context(), types.ID(middleware.CallerUID(c)), strings.TrimSpace(req.Destination)); err != nil {
		writeJobError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

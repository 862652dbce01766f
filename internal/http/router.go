// README: HTTP router registration (gin).
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"plow/internal/http/handlers"
	"plow/internal/http/middleware"
	"plow/internal/infra"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/profile"
	"plow/internal/modules/queue"
)

type RouterDeps struct {
	Jobs     *dispatch.Service
	Profiles profile.Writer
	// Verifier nil switches to header-based development auth.
	Verifier    infra.TokenVerifier
	Log         logrus.FieldLogger
	Currency    string
	QueuePolicy queue.Policy
	// Ready reports backing store health for /ready. Optional.
	Ready func(ctx context.Context) error
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/ready", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	api := r.Group("/api")
	if d.Verifier != nil {
		api.Use(middleware.Auth(d.Verifier))
	} else {
		d.Log.Warn("no token verifier configured; trusting X-Plow-User headers")
		api.Use(middleware.DevAuth())
	}

	jobHandler := handlers.NewJobHandler(d.Jobs, d.Currency)
	api.POST("/jobs", jobHandler.Create)
	api.GET("/jobs", jobHandler.List)
	api.GET("/jobs/:id", jobHandler.Get)
	api.POST("/jobs/:id/events", jobHandler.Advance)
	api.POST("/jobs/:id/cancel", jobHandler.Cancel)
	api.POST("/jobs/:id/complete", jobHandler.Complete)
	api.GET("/jobs/:id/transactions", jobHandler.Transactions)
	api.GET("/jobs/:id/events", jobHandler.Events)

	operatorHandler := handlers.NewOperatorHandler(d.Jobs, d.QueuePolicy)
	api.POST("/jobs/:id/accept", operatorHandler.Accept)
	api.GET("/operators/me/queue", operatorHandler.Queue)
	api.GET("/operators/me/open-jobs", operatorHandler.OpenJobs)

	if d.Profiles != nil {
		profileHandler := handlers.NewProfileHandler(d.Profiles)
		api.PUT("/profile/location", profileHandler.UpdateLocation)
		api.PUT("/profile/device-token", profileHandler.UpdateDeviceToken)
		api.PUT("/profile/payout", profileHandler.UpdatePayout)
	}

	adminHandler := handlers.NewAdminHandler(d.Jobs)
	api.POST("/admin/jobs/:id/reopen", adminHandler.Reopen)
	api.POST("/admin/jobs/:id/refund", adminHandler.Refund)

	return r
}

package main

import (
	"net/http"

	"triage-platform/internal/httpapi"
	"triage-platform/internal/metrics"
	"triage-platform/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// Intake service pushes finished intakes.
		intake := v1.Group("/intake")
		intake.Use(rbac.RequireAnyRole(rbac.RoleIntake))
		{
			intake.POST("/calls", h.Enqueue)
		}

		queue := v1.Group("/queue")
		queue.Use(rbac.RequireCounselor())
		queue.Use(rbac.RequireAnyRole(rbac.RoleCounselor))
		{
			queue.GET("", h.ListQueue)
			queue.GET("/:call_id", h.GetCall)
			queue.POST("/:call_id/claim", h.Claim)
			queue.POST("/:call_id/release", h.Release)
			queue.POST("/:call_id/complete", h.Complete)
		}

		me := v1.Group("/counselors/me")
		me.Use(rbac.RequireCounselor())
		{
			me.PUT("/status", h.SetStatus)
			me.POST("/heartbeat", h.Heartbeat)
		}

		reports := v1.Group("/reports")
		reports.Use(rbac.RequireCounselor())
		{
			reports.GET("", h.ListReports)
			reports.GET("/summary", h.ReportSummary)
			reports.GET("/:report_id", h.GetReport)
		}

		v1.POST("/auth/logout", h.Logout)

		// ADMIN routes
		// Supervisors bypass RequireAnyRole; nobody else is listed.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole())
		{
			admin.GET("/counselors", h.Counselors)
			admin.GET("/queue/stats", h.QueueStats)
			admin.DELETE("/queue", h.ResetQueue)
		}
	}
}

// newRouter builds the engine with the shared middleware chain.
func newRouter(h httpapi.Handlers, authMW gin.HandlerFunc, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw...)
	r.Use(metrics.Middleware())
	registerRoutes(r, h, authMW)
	return r
}

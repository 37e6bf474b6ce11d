package main

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

func (app *application) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// simple logger middleware that uses zap
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.Logger.Sugar().Infow("http", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	})

	origins := app.Config.GetCORSOrigins()
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && slices.Contains(origins, origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH")
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := r.Group("/api/v1")
	protected.Use(app.AuthMiddleware())
	{
		// application results
		protected.GET("/applications/:id/summary", app.Handler.GetSummary)
		protected.GET("/applications/:id/detail", app.Handler.GetDetail)
		protected.GET("/applications/:id/can-generate", app.Handler.CanGenerateResults)
		protected.GET("/applications/:id/stats", app.Handler.QuickStats)

		// session lifecycle
		protected.POST("/applications/:id/session", app.Handler.StartSession)
		protected.PATCH("/sessions/:id/progress", app.Handler.UpdateProgress)
		protected.POST("/sessions/:id/answers", app.Handler.SubmitAnswer)
		protected.POST("/sessions/:id/evaluations", app.Handler.RecordEvaluation)
		protected.POST("/sessions/:id/finalize", app.Handler.FinalizeSession)
		protected.POST("/sessions/:id/pause", app.Handler.PauseSession)
		protected.POST("/sessions/:id/resume", app.Handler.ResumeSession)
		protected.POST("/sessions/:id/abandon", app.Handler.AbandonSession)
		protected.POST("/sessions/:id/expire", app.Handler.ExpireSession)
	}

	admin := protected.Group("/diagnostics")
	admin.Use(app.AdminAuthMiddleware())
	{
		admin.GET("/health", app.Handler.Health)
		admin.GET("/applications/:id", app.Handler.InspectApplication)
	}

	return r
}

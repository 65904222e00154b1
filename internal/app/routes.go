package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeverdict/core/internal/database"
	"github.com/codeverdict/core/internal/middleware"
	"github.com/codeverdict/core/internal/pkg/response"
)

const (
	anonymousRateLimit  = 60
	anonymousRateWindow = time.Minute
	healthTimeout       = 3 * time.Second
)

func (a *App) registerRoutes() {
	signer := a.sessions.Signer()
	authMW := middleware.Auth(signer, a.sessions)

	api := a.router.Group("/api/v1")
	api.Use(middleware.OptionalAuth(signer, a.sessions))
	api.Use(middleware.RateLimit(a.cache, anonymousRateLimit, anonymousRateWindow))

	api.GET("/health", a.health)
	a.auth.RegisterRoutes(api, authMW)
	a.analysis.RegisterRoutes(api, authMW, middleware.IdempotenceByHeader(a.cache, a.logger))

	a.router.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "route not found")
	})
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func checkDependency(ctx context.Context, ping func(context.Context) error) dependencyStatus {
	if err := ping(ctx); err != nil {
		return dependencyStatus{Status: response.StatusFailed, Error: err.Error()}
	}
	return dependencyStatus{Status: "ok"}
}

// GET /health
func (a *App) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	db := checkDependency(ctx, func(ctx context.Context) error { return database.Ping(ctx, a.db) })
	ch := checkDependency(ctx, a.cache.Ping)

	status := http.StatusOK
	overall := "ok"
	if db.Status != "ok" || ch.Status != "ok" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   overall,
		"uptime":   humanizeDuration(time.Since(a.started)),
		"database": db,
		"cache":    ch,
		"jobs":     a.sched.List(),
	})
}

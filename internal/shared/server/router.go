package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ats-matcher/internal/analyses"
	"ats-matcher/internal/services/health"
	"ats-matcher/internal/shared/config"
	"ats-matcher/internal/shared/metrics"
	"ats-matcher/internal/shared/server/middleware"
	"ats-matcher/internal/shared/server/respond"
)

// RouterDeps are the handlers the router serves.
type RouterDeps struct {
	Config   config.Config
	Analyses *analyses.Handler
	Health   *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" || deps.Config.Env == "staging" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = deps.Config.MaxUploadBytes

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.BodyLimit(deps.Config.MaxUploadBytes),
	)

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		respond.OK(c, deps.Health.Status())
	})
	api.GET("/metrics", metrics.Handler())
	if deps.Analyses != nil {
		deps.Analyses.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"insights-backend/internal/jobs"
	"insights-backend/internal/sessions"
	"insights-backend/internal/shared/config"
	"insights-backend/internal/shared/metrics"
	"insights-backend/internal/shared/server/middleware"
	"insights-backend/internal/shared/server/respond"
	"insights-backend/internal/stream"
	"insights-backend/internal/subjects"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config          config.Config
	JobsHandler     *jobs.Handler
	StreamHandler   *stream.Handler
	SubjectHandler  *subjects.Handler
	SessionsHandler *sessions.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(rateLimits()),
	)

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	api.GET("/metrics", metrics.Handler())
	if deps.SubjectHandler != nil {
		deps.SubjectHandler.RegisterRoutes(api)
	}
	if deps.SessionsHandler != nil {
		deps.SessionsHandler.RegisterRoutes(api)
	}
	if deps.JobsHandler != nil {
		deps.JobsHandler.RegisterRoutes(api)
	}
	if deps.StreamHandler != nil {
		deps.StreamHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimits keeps status polls and stream opens from a single observer
// under control; everything else passes through.
func rateLimits() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			middleware.RateLimitGroupStatusPoll: {Rate: 2, Burst: 5},
			middleware.RateLimitGroupStreamOpen: {Rate: 1, Burst: 3},
		},
		GroupFor: func(c *gin.Context) string {
			switch {
			case c.Request.Method == http.MethodGet && strings.HasPrefix(c.FullPath(), "/api/v1/analyses/"):
				return middleware.RateLimitGroupStatusPoll
			case strings.HasSuffix(c.FullPath(), "/events"):
				return middleware.RateLimitGroupStreamOpen
			default:
				return ""
			}
		},
	}
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

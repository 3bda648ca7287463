package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-backend/internal/recovery"
	"interview-backend/internal/services/health"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/server/middleware"
	"interview-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config   config.Config
	Health   *health.Service
	Recovery *recovery.Handler
	Limiter  *middleware.RateLimiter
}

// Operator rate limits, per principal.
var operatorRules = map[string]middleware.RateLimitRule{
	middleware.GroupRead:    {Rate: 5, Burst: 20},
	middleware.GroupTrigger: {Rate: 0.2, Burst: 3},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil)
	}
	r.GET("/health", func(c *gin.Context) {
		report := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.AdminToken(deps.Config.AdminToken),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    operatorRules,
			GroupFor: middleware.RecoveryGroup,
			Limiter:  deps.Limiter,
		}),
	)
	if deps.Recovery != nil {
		deps.Recovery.RegisterRoutes(api)
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

// Package httpapi wires the attendance engine to its HTTP surface.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
)

// HealthFunc reports component health for the /healthz endpoint.
type HealthFunc func(ctx context.Context) (healthy bool, detail gin.H)

// Server holds the handler dependencies.
type Server struct {
	cfg      config.App
	svc      *attendance.Service
	reporter *attendance.Reporter
	q        queue.Queue
	health   HealthFunc
}

// NewServer creates a server.
func NewServer(cfg config.App, svc *attendance.Service, reporter *attendance.Reporter, q queue.Queue, health HealthFunc) *Server {
	return &Server{cfg: cfg, svc: svc, reporter: reporter, q: q, health: health}
}

// Router builds the gin engine with all routes and middleware mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)
	r.POST("/v1/auth/token", s.handleIssueToken)

	bearer := auth.Bearer(s.cfg.JWTSigningKey, s.cfg.JWTIssuer)
	manage := r.Group("/v1", bearer, auth.RequireRole(attendance.RoleInstructor, attendance.RoleAdmin))
	{
		manage.POST("/sessions/:id/codes", s.handleCreateCode)
		manage.DELETE("/sessions/:id/codes/current", s.handleDeactivateCode)
		manage.GET("/sessions/:id/codes/current", s.handleCurrentCode)
		manage.GET("/sessions/:id/codes", s.handleListCodes)
		manage.POST("/sessions/:id/codes/extend", s.handleExtendExpiration)
		manage.GET("/sessions/:id/stats", s.handleStats)
		manage.GET("/sessions/:id/report", s.handleReport)
	}

	student := r.Group("/v1", bearer, auth.RequireRole(attendance.RoleStudent))
	{
		student.POST("/sessions/:id/checkins", s.handleCheckIn)
		student.GET("/sessions/:id/checkins/me", s.handleMyStatus)
	}

	return r
}

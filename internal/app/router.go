package app

import (
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdsno.io/controller/internal/api/handlers"
	"pdsno.io/controller/internal/api/middleware"
	"pdsno.io/controller/internal/config"
)

// newRouter wires the controller's full HTTP surface: the envelope-
// authenticated /message/:type endpoint (auth handled inside the handler
// itself, not this middleware chain, since its pipeline differs per
// message type), the JWT-gated operator dashboard REST API, the operator
// websocket feed, and health checks.
func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Envelope authentication happens inside HandleMessage itself; the
	// JWT middleware never runs on this path.
	router.POST("/message/:type", server.HandleMessage)

	router.GET("/ws/operator", server.OperatorWebsocket)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", server.Login)

	authed := v1.Group("")
	authed.Use(middleware.JWTAuthWithConfig(jwtCfg))
	{
		authed.GET("/devices", server.ListDevices)
		authed.GET("/devices/:id", server.GetDevice)
		authed.GET("/controllers", server.ListControllers)

		authed.GET("/config-requests", middleware.RequireAnyRole("viewer", "approver"), server.ListConfigRequests)
		authed.GET("/config-requests/:id", middleware.RequireAnyRole("viewer", "approver"), server.GetConfigRequest)
		authed.POST("/config-requests", middleware.RequireAnyRole("approver"), server.ProposeConfigChange)
		authed.POST("/config-requests/:id/approve", middleware.RequireAnyRole("approver"), server.ApproveConfigChange)
		authed.POST("/config-requests/:id/reject", middleware.RequireAnyRole("approver"), server.RejectConfigChange)

		authed.POST("/discovery/run", middleware.RequireAnyRole("approver"), server.TriggerDiscovery)
	}

	return router
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	allowAllOrigins := cfg.Server.UnsafeAllowAllOrigins
	allowedOrigins := sanitizeAllowedOrigins(cfg.Server.AllowedOrigins)

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if allowAllOrigins {
		corsCfg.AllowAllOrigins = true
		// gin-contrib/cors docs: AllowAllOrigins cannot be used with credentials.
		corsCfg.AllowCredentials = false
		return corsCfg
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	corsCfg.AllowOrigins = allowedOrigins
	return corsCfg
}

func sanitizeAllowedOrigins(origins []string) []string {
	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		cleaned = append(cleaned, origin)
	}
	return slices.Compact(cleaned)
}

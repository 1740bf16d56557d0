package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready, checking the NIB backend when it
// is Postgres-backed; a Badger-backed local controller has no external
// dependency to ping and is always ready once constructed.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := make(map[string]string)
	healthy := true

	if s.pool != nil {
		if err := s.pool.Ping(c.Request.Context()); err != nil {
			checks["nib_postgres"] = "error"
			healthy = false
		} else {
			checks["nib_postgres"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": boolToStatus(healthy), "checks": checks})
}

func boolToStatus(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}

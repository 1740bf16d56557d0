package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListDevices handles GET /api/v1/devices?region=us-west.
func (s *Server) ListDevices(c *gin.Context) {
	devices, err := s.store.ListDevices(c.Request.Context(), c.Query("region"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// GetDevice handles GET /api/v1/devices/:id.
func (s *Server) GetDevice(c *gin.Context) {
	d, err := s.store.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// ListControllers handles GET /api/v1/controllers?region=us-west.
func (s *Server) ListControllers(c *gin.Context) {
	controllers, err := s.store.ListControllers(c.Request.Context(), c.Query("region"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, controllers)
}

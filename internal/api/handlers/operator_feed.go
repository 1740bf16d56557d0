package handlers

import "github.com/gin-gonic/gin"

// OperatorWebsocket handles GET /ws/operator, upgrading to the broadcast
// feed of approval-engine and discovery state transitions.
func (s *Server) OperatorWebsocket(c *gin.Context) {
	s.operatorFeed.ServeHTTP(c.Writer, c.Request)
}

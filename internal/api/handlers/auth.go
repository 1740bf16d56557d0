package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"pdsno.io/controller/internal/api/middleware"
)

// LoginRequest is POST /api/v1/auth/login's body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued dashboard session token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login, authenticating against the static
// operator credential list and issuing an OperatorClaims JWT on success.
func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST_FIELD", "message": "username and password are required"})
		return
	}

	for _, op := range s.operators {
		if op.Username != req.Username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)) != nil {
			break
		}

		token, expiresAt, err := middleware.GenerateToken(s.jwtCfg, op.OperatorID, op.Username, op.Roles)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "message": "failed to issue session token"})
			return
		}
		c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z07:00")})
		return
	}

	c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "invalid username or password"})
}

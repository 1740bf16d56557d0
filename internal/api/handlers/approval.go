package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pdsno.io/controller/internal/domain"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// ProposeConfigRequest is POST /api/v1/config-requests' body.
type ProposeConfigRequest struct {
	ConfigHash          string          `json:"config_hash" binding:"required"`
	Payload             []byte          `json:"payload"`
	TargetDevices       []string        `json:"target_devices" binding:"required"`
	DeclaredSensitivity domain.Sensitivity `json:"declared_sensitivity" binding:"required"`
	PolicyVersion       string          `json:"policy_version"`
	RollbackPolicy      string          `json:"rollback_policy,omitempty"`
}

// ProposeConfigChange handles POST /api/v1/config-requests, gated to
// operators holding at least the "approver" role.
func (s *Server) ProposeConfigChange(c *gin.Context) {
	var req ProposeConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeInvalidRequestField, "message": err.Error()})
		return
	}

	r := &domain.ConfigRequest{
		RequestID:           uuid.NewString(),
		ConfigHash:          req.ConfigHash,
		Payload:             req.Payload,
		TargetDevices:       req.TargetDevices,
		DeclaredSensitivity: req.DeclaredSensitivity,
		PolicyVersion:       req.PolicyVersion,
		State:               domain.StateProposed,
		CreatedBy:           operatorFromCtx(c),
		RollbackPolicy:      req.RollbackPolicy,
		CreatedAt:           time.Now(),
	}

	if err := s.engine.Propose(c.Request.Context(), r); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, r)
}

// ApprovalDecisionRequest is the body of the approve/reject endpoints.
type ApprovalDecisionRequest struct {
	ApproverRole domain.ControllerRole `json:"approver_role" binding:"required"`
	Reason       string                `json:"reason,omitempty"`
}

// ApproveConfigChange handles POST /api/v1/config-requests/:id/approve,
// gated to operators holding "approver" or "admin".
func (s *Server) ApproveConfigChange(c *gin.Context) {
	requestID := c.Param("id")
	var req ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeInvalidRequestField, "message": err.Error()})
		return
	}

	if err := s.engine.Approve(c.Request.Context(), requestID, operatorFromCtx(c), req.ApproverRole); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RejectConfigChange handles POST /api/v1/config-requests/:id/reject.
func (s *Server) RejectConfigChange(c *gin.Context) {
	requestID := c.Param("id")
	var req ApprovalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeInvalidRequestField, "message": err.Error()})
		return
	}

	if err := s.engine.Reject(c.Request.Context(), requestID, operatorFromCtx(c), req.Reason); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetConfigRequest handles GET /api/v1/config-requests/:id.
func (s *Server) GetConfigRequest(c *gin.Context) {
	r, err := s.store.GetConfigRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// ListConfigRequests handles GET /api/v1/config-requests?state=pending_regional.
func (s *Server) ListConfigRequests(c *gin.Context) {
	state := domain.ConfigRequestState(c.Query("state"))
	if state == "" {
		state = domain.StatePendingRegional
	}
	reqs, err := s.store.ListConfigRequestsByState(c.Request.Context(), state)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

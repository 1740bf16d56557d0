package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/approval"
	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/envelope"
	apperrors "pdsno.io/controller/internal/pkg/errors"
	"pdsno.io/controller/internal/pkg/logger"
)

// admissionBypassTypes are the message types exchanged before a candidate
// has an admitted identity: their own payload-level authentication
// (bootstrap-token HMAC, ed25519 challenge signature) substitutes for the
// envelope pipeline's sender-active check, which would otherwise always
// reject them: admission and the sender-active check operate on disjoint
// trust states.
var admissionBypassTypes = map[string]bool{
	"VALIDATION_REQUEST":  true,
	"CHALLENGE":           true,
	"CHALLENGE_RESPONSE":  true,
	"VALIDATION_RESULT":   true,
}

// knownMessageTypes is the minimum message-type vocabulary the wire
// contract recognizes.
var knownMessageTypes = map[string]bool{
	"VALIDATION_REQUEST":   true,
	"CHALLENGE":            true,
	"CHALLENGE_RESPONSE":   true,
	"VALIDATION_RESULT":    true,
	"DISCOVERY_REPORT":     true,
	"DISCOVERY_REPORT_ACK": true,
	"CONFIG_PROPOSAL":      true,
	"CONFIG_APPROVAL":      true,
	"CONFIG_REJECTION":     true,
	"EXECUTION_REPORT":     true,
	"POLICY_UPDATE":        true,
	"HEARTBEAT":            true,
}

// DiscoveryReportPayload summarizes one controller's discovery cycle for
// an upstream tier.
type DiscoveryReportPayload struct {
	Region  string          `json:"region"`
	Devices []*domain.Device `json:"devices"`
}

// DiscoveryReportAckPayload acknowledges a DiscoveryReportPayload.
type DiscoveryReportAckPayload struct {
	Accepted int `json:"accepted"`
}

// ConfigApprovalPayload is CONFIG_APPROVAL's body.
type ConfigApprovalPayload struct {
	RequestID    string               `json:"request_id"`
	ApproverID   string               `json:"approver_id"`
	ApproverRole domain.ControllerRole `json:"approver_role"`
}

// ConfigRejectionPayload is CONFIG_REJECTION's body.
type ConfigRejectionPayload struct {
	RequestID  string `json:"request_id"`
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason"`
}

// ExecutionReportPayload is EXECUTION_REPORT's body: the outcome of
// applying an approved change, reported back to the approving tier.
type ExecutionReportPayload struct {
	RequestID     string                `json:"request_id"`
	DeviceResults []domain.DeviceResult `json:"device_results"`
}

// PolicyUpdatePayload is POLICY_UPDATE's body.
type PolicyUpdatePayload struct {
	PolicyVersion string `json:"policy_version"`
}

// HeartbeatPayload is HEARTBEAT's body.
type HeartbeatPayload struct {
	ControllerID string    `json:"controller_id"`
	SentAt       time.Time `json:"sent_at"`
}

// HandleMessage implements the controller-to-controller wire contract: the
// envelope is the JSON body of a POST to /message/<message_type_lowercase>;
// a successful response is a signed
// envelope with status 200; an invalid signature yields 401 with no body;
// a malformed envelope yields 400; an unknown message type yields 404.
func (s *Server) HandleMessage(c *gin.Context) {
	msgType := strings.ToUpper(c.Param("type"))
	if !knownMessageTypes[msgType] {
		c.Status(http.StatusNotFound)
		return
	}

	var in envelope.Envelope
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if in.MessageType != "" && in.MessageType != msgType {
		c.Status(http.StatusBadRequest)
		return
	}
	in.MessageType = msgType

	if admissionBypassTypes[msgType] {
		if err := s.verifyBypassEnvelope(c, &in); err != nil {
			s.writeVerifyError(c, err)
			return
		}
	} else if err := s.authenticator.Verify(c.Request.Context(), &in, s.selfID); err != nil {
		s.writeVerifyError(c, err)
		return
	}

	replyPayload, replyType, err := s.dispatchPayload(c, msgType, in)
	if err != nil {
		s.writeVerifyError(c, err)
		return
	}

	reply, err := s.sealReply(replyType, in.SenderID, replyPayload)
	if err != nil {
		logger.Error("seal reply envelope failed", zap.String("message_type", msgType), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, reply)
}

// verifyBypassEnvelope runs the structural/freshness/replay checks the
// full Authenticator.Verify pipeline would, but skips the signature and
// sender-active stages: a candidate controller has no envelope key yet,
// and its own payload-level authentication substitutes for both.
func (s *Server) verifyBypassEnvelope(c *gin.Context, e *envelope.Envelope) error {
	if e.MessageID == "" || e.MessageType == "" || e.SenderID == "" || e.RecipientID == "" || e.Nonce == "" || e.Timestamp.IsZero() {
		return apperrors.New(apperrors.CodeEnvelopeMalformed, "envelope missing required field", http.StatusBadRequest)
	}
	if e.RecipientID != s.selfID {
		return apperrors.New(apperrors.CodeEnvelopeMalformed, "envelope addressed to a different recipient", http.StatusBadRequest)
	}
	delta := time.Since(e.Timestamp)
	if delta > envelope.MaxClockSkew || delta < -envelope.MaxClockSkew {
		return apperrors.New(apperrors.CodeEnvelopeStale, "envelope timestamp out of range", http.StatusBadRequest)
	}
	fresh, err := s.authenticator.Nonces.Consume(c.Request.Context(), e.SenderID, e.Nonce, s.authenticator.NonceTTL)
	if err != nil {
		return err
	}
	if !fresh {
		return apperrors.New(apperrors.CodeEnvelopeReplayed, "envelope nonce already seen", http.StatusConflict)
	}
	return nil
}

func (s *Server) writeVerifyError(c *gin.Context, err error) {
	if appErr, ok := apperrors.IsAppError(err); ok {
		if appErr.HTTPStatus == http.StatusUnauthorized || appErr.Code == apperrors.CodeEnvelopeBadHMAC {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.JSON(appErr.HTTPStatus, gin.H{"code": appErr.Code, "message": appErr.Message})
		return
	}
	logger.Error("message handling failed", zap.Error(err))
	c.Status(http.StatusInternalServerError)
}

func (s *Server) dispatchPayload(c *gin.Context, msgType string, in envelope.Envelope) (interface{}, string, error) {
	ctx := c.Request.Context()

	switch msgType {
	case "VALIDATION_REQUEST":
		var req admission.ValidationRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed validation request", http.StatusBadRequest)
		}
		challenge, err := s.admissionSrv.HandleValidationRequest(ctx, req)
		if err != nil {
			return nil, "", err
		}
		return challenge, "CHALLENGE", nil

	case "CHALLENGE_RESPONSE":
		var resp admission.ChallengeResponse
		if err := json.Unmarshal(in.Payload, &resp); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed challenge response", http.StatusBadRequest)
		}
		result, err := s.admissionSrv.HandleChallengeResponse(ctx, resp)
		if err != nil {
			return nil, "", err
		}
		return result, "VALIDATION_RESULT", nil

	case "CHALLENGE", "VALIDATION_RESULT":
		// These are normally delivered as the synchronous HTTP response to
		// VALIDATION_REQUEST/CHALLENGE_RESPONSE, not POSTed on their own;
		// accepting them as a no-op keeps the fire-and-forget carriers
		// (bus, pub/sub) uniform across all twelve message types.
		logger.Debug("received unsolicited admission message, acknowledging", zap.String("message_type", msgType))
		return struct{}{}, "ACK", nil

	case "DISCOVERY_REPORT":
		var report DiscoveryReportPayload
		if err := json.Unmarshal(in.Payload, &report); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed discovery report", http.StatusBadRequest)
		}
		accepted := 0
		for _, d := range report.Devices {
			existing, err := s.store.GetDevice(ctx, d.DeviceID)
			version := int64(0)
			if err == nil {
				version = existing.Version
			}
			if err := s.store.PutDevice(ctx, d, version); err != nil {
				logger.Warn("discovery report device upsert failed",
					zap.String("device_id", d.DeviceID), zap.Error(err))
				continue
			}
			accepted++
		}
		if err := s.store.AppendEvent(ctx, &domain.Event{
			EventID: uuid.NewString(), EventType: domain.EventConfigStateChanged, ActorID: in.SenderID, Timestamp: time.Now(),
		}); err != nil {
			logger.Warn("append discovery report event failed", zap.Error(err))
		}
		return DiscoveryReportAckPayload{Accepted: accepted}, "DISCOVERY_REPORT_ACK", nil

	case "DISCOVERY_REPORT_ACK":
		var ack DiscoveryReportAckPayload
		_ = json.Unmarshal(in.Payload, &ack)
		logger.Debug("discovery report acked", zap.Int("accepted", ack.Accepted))
		return struct{}{}, "ACK", nil

	case "CONFIG_PROPOSAL":
		var r domain.ConfigRequest
		if err := json.Unmarshal(in.Payload, &r); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed config proposal", http.StatusBadRequest)
		}
		if err := s.engine.Propose(ctx, &r); err != nil {
			return nil, "", err
		}
		return r, "CONFIG_PROPOSAL_ACK", nil

	case "CONFIG_APPROVAL":
		var ap ConfigApprovalPayload
		if err := json.Unmarshal(in.Payload, &ap); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed config approval", http.StatusBadRequest)
		}
		if err := s.engine.Approve(ctx, ap.RequestID, ap.ApproverID, ap.ApproverRole); err != nil {
			return nil, "", err
		}
		return ap, "CONFIG_APPROVAL_ACK", nil

	case "CONFIG_REJECTION":
		var rj ConfigRejectionPayload
		if err := json.Unmarshal(in.Payload, &rj); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed config rejection", http.StatusBadRequest)
		}
		if err := s.engine.Reject(ctx, rj.RequestID, rj.ApproverID, rj.Reason); err != nil {
			return nil, "", err
		}
		return rj, "CONFIG_REJECTION_ACK", nil

	case "EXECUTION_REPORT":
		var rep ExecutionReportPayload
		if err := json.Unmarshal(in.Payload, &rep); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed execution report", http.StatusBadRequest)
		}
		r, err := s.store.GetConfigRequest(ctx, rep.RequestID)
		if err != nil {
			return nil, "", err
		}
		r.DeviceResults = rep.DeviceResults
		allOK := true
		for _, res := range rep.DeviceResults {
			if !res.Success {
				allOK = false
				break
			}
		}
		eventType := domain.EventExecutionSucceeded
		if allOK {
			r.State = domain.StateSucceeded
		} else {
			r.State = domain.StateFailed
			eventType = domain.EventExecutionFailed
		}
		if err := s.store.PutConfigRequest(ctx, r, r.Version); err != nil {
			return nil, "", err
		}
		if err := s.store.AppendEvent(ctx, &domain.Event{
			EventID: uuid.NewString(), EventType: eventType, ActorID: in.SenderID, Timestamp: time.Now(),
		}); err != nil {
			logger.Warn("append execution report event failed", zap.Error(err))
		}
		return struct{}{}, "ACK", nil

	case "POLICY_UPDATE":
		var pu PolicyUpdatePayload
		if err := json.Unmarshal(in.Payload, &pu); err != nil {
			return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "malformed policy update", http.StatusBadRequest)
		}
		s.engine.PolicyVersion = pu.PolicyVersion
		return struct{}{}, "ACK", nil

	case "HEARTBEAT":
		var hb HeartbeatPayload
		_ = json.Unmarshal(in.Payload, &hb)
		return HeartbeatPayload{ControllerID: s.selfID, SentAt: time.Now()}, "HEARTBEAT", nil

	default:
		return nil, "", apperrors.New(apperrors.CodeEnvelopeMalformed, "unhandled message type", http.StatusNotFound)
	}
}

func (s *Server) sealReply(msgType, recipientID string, payload interface{}) (*envelope.Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	reply := &envelope.Envelope{
		MessageID:   uuid.NewString(),
		MessageType: msgType,
		SenderID:    s.selfID,
		RecipientID: recipientID,
		Timestamp:   time.Now(),
		Nonce:       uuid.NewString(),
		Payload:     body,
	}
	if err := s.authenticator.Seal(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// approvalCanApprove reports whether a controller in role may approve a
// request in state, for handlers that need that tier decision outside the
// Engine's own state-machine methods (e.g. the dashboard surface reporting
// whether a request is self-approvable at its current state).
func approvalCanApprove(role domain.ControllerRole, state domain.ConfigRequestState) bool {
	return approval.CanApprove(role, state)
}

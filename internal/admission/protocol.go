package admission

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
	apperrors "pdsno.io/controller/internal/pkg/errors"
)

// Six-step admission handshake:
//   1. Candidate sends VALIDATION_REQUEST (bootstrap token, public key, role, region)
//   2. Parent issues CHALLENGE (random nonce)
//   3. Candidate returns CHALLENGE_RESPONSE (nonce signed with its private key)
//   4. Parent verifies bootstrap token + signature
//   5. Parent allocates an identity atomically in the NIB
//   6. Parent returns VALIDATION_RESULT (certificate, or a named failure)

// ValidationRequest is step 1's payload.
type ValidationRequest struct {
	TempID         string                `json:"temp_id"`
	BootstrapToken string                `json:"bootstrap_token"`
	PublicKey      ed25519.PublicKey     `json:"public_key"`
	Role           domain.ControllerRole `json:"role"`
	Region         string                `json:"region,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
	Capabilities   []string              `json:"capabilities,omitempty"`
}

// Challenge is step 2's payload.
type Challenge struct {
	ChallengeID string    `json:"challenge_id"`
	Nonce       []byte    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChallengeResponse is step 3's payload.
type ChallengeResponse struct {
	ChallengeID string `json:"challenge_id"`
	Signature   []byte `json:"signature"`
}

// ValidationResult is step 6's payload. Exactly one of Certificate or
// FailureReason is set.
type ValidationResult struct {
	Accepted      bool   `json:"accepted"`
	ControllerID  string `json:"controller_id,omitempty"`
	Certificate   string `json:"certificate,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Named failure reasons.
const (
	FailureStaleTimestamp  = "stale_timestamp"
	FailureBlockedTempID   = "blocked_temp_id"
	FailureBadToken        = "invalid_bootstrap_token"
	FailureChallengeExpired = "CHALLENGE_EXPIRED"
	FailureBadSignature    = "challenge_signature_invalid"
	FailureIdentityConflict = "nib_write_failed"
)

// Server runs the parent side of the admission protocol.
type Server struct {
	Store           nib.Store
	IssuerID        string
	IssuerKey       ed25519.PrivateKey
	BootstrapSecret []byte
	ChallengeTTL    time.Duration
	CertificateTTL  time.Duration
	FreshnessWindow time.Duration

	pending map[string]*pendingChallenge
	blocked map[string]bool
}

type pendingChallenge struct {
	candidatePublicKey ed25519.PublicKey
	nonce              []byte
	role               domain.ControllerRole
	region             string
	capabilities       []string
	expiresAt          time.Time
}

// NewServer creates an admission server for a parent controller.
func NewServer(store nib.Store, issuerID string, issuerKey ed25519.PrivateKey, bootstrapSecret []byte, challengeTTL, certTTL, freshnessWindow time.Duration) *Server {
	return &Server{
		Store: store, IssuerID: issuerID, IssuerKey: issuerKey, BootstrapSecret: bootstrapSecret,
		ChallengeTTL: challengeTTL, CertificateTTL: certTTL, FreshnessWindow: freshnessWindow,
		pending: make(map[string]*pendingChallenge),
		blocked: make(map[string]bool),
	}
}

// Block adds a temp_id to the blocklist; subsequent VALIDATION_REQUESTs
// bearing it are rejected before signature verification.
func (s *Server) Block(tempID string) {
	s.blocked[tempID] = true
}

// HandleValidationRequest processes step 1 and returns step 2's challenge.
func (s *Server) HandleValidationRequest(ctx context.Context, req ValidationRequest) (*Challenge, error) {
	window := s.FreshnessWindow
	if window <= 0 {
		window = 30 * time.Second
	}
	if age := time.Since(req.Timestamp); age > window || age < -window {
		return nil, apperrors.Unauthorized(apperrors.CodeBootstrapTokenInvalid, FailureStaleTimestamp)
	}
	if s.blocked[req.TempID] {
		return nil, apperrors.Unauthorized(apperrors.CodeBootstrapTokenInvalid, FailureBlockedTempID)
	}
	if !s.verifyBootstrapToken(req.TempID, req.Region, req.Role, req.BootstrapToken) {
		return nil, apperrors.Unauthorized(apperrors.CodeBootstrapTokenInvalid, FailureBadToken)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	challengeID := uuid.NewString()
	s.pending[challengeID] = &pendingChallenge{
		candidatePublicKey: req.PublicKey,
		nonce:              nonce,
		role:               req.Role,
		region:             req.Region,
		capabilities:       req.Capabilities,
		expiresAt:          time.Now().Add(s.ChallengeTTL),
	}

	return &Challenge{ChallengeID: challengeID, Nonce: nonce, ExpiresAt: s.pending[challengeID].expiresAt}, nil
}

// HandleChallengeResponse processes steps 3-6 and returns the final result.
func (s *Server) HandleChallengeResponse(ctx context.Context, resp ChallengeResponse) (*ValidationResult, error) {
	pending, ok := s.pending[resp.ChallengeID]
	if !ok {
		return &ValidationResult{Accepted: false, FailureReason: FailureChallengeExpired}, nil
	}
	delete(s.pending, resp.ChallengeID)

	if time.Now().After(pending.expiresAt) {
		return &ValidationResult{Accepted: false, FailureReason: FailureChallengeExpired}, nil
	}

	if !ed25519.Verify(pending.candidatePublicKey, pending.nonce, resp.Signature) {
		return &ValidationResult{Accepted: false, FailureReason: FailureBadSignature}, nil
	}

	controllerID, err := s.allocateIdentity(ctx, pending)
	if err != nil {
		return &ValidationResult{Accepted: false, FailureReason: FailureIdentityConflict}, nil
	}

	controller := &domain.Controller{
		ControllerID: controllerID,
		Role:         pending.role,
		Region:       pending.region,
		Status:       domain.ControllerStatusActive,
		ValidatedBy:  s.IssuerID,
		ValidatedAt:  time.Now(),
		PublicKey:    pending.candidatePublicKey,
		Capabilities: pending.capabilities,
	}

	cert, err := IssueCertificate(s.IssuerKey, s.IssuerID, controller, s.CertificateTTL)
	if err != nil {
		return nil, err
	}
	controller.Certificate = cert

	err = s.Store.Transact(ctx, func(ctx context.Context) error {
		if err := s.Store.PutController(ctx, controller, 0); err != nil {
			return err
		}
		return s.Store.AppendEvent(ctx, &domain.Event{
			EventID:   uuid.NewString(),
			EventType: domain.EventControllerValidated,
			ActorID:   s.IssuerID,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		return &ValidationResult{Accepted: false, FailureReason: FailureIdentityConflict}, nil
	}

	return &ValidationResult{Accepted: true, ControllerID: controllerID, Certificate: cert}, nil
}

// allocateIdentity assigns a monotonic controller ID using the NIB lock's
// fencing-token increment as the counter for (role, region) — an adaptation
// of the lock mechanism rather than a separate sequence concept.
func (s *Server) allocateIdentity(ctx context.Context, pending *pendingChallenge) (string, error) {
	resourceKey := "identity-seq:" + string(pending.role) + ":" + pending.region
	lock, err := s.Store.AcquireLock(ctx, resourceKey, s.IssuerID, time.Second)
	if err != nil {
		return "", err
	}
	defer s.Store.ReleaseLock(ctx, resourceKey, s.IssuerID, lock.FencingToken)

	if pending.region == "" {
		return fmt.Sprintf("%s_cntl_%d", pending.role, lock.FencingToken), nil
	}
	return fmt.Sprintf("%s_cntl_%s_%d", pending.role, pending.region, lock.FencingToken), nil
}

func (s *Server) verifyBootstrapToken(tempID, region string, role domain.ControllerRole, token string) bool {
	expected := BootstrapToken(s.BootstrapSecret, tempID, region, role)
	return hmac.Equal([]byte(expected), []byte(token))
}

// BootstrapToken computes the HMAC-SHA256 over (temp_id, region, role)
// under the shared bootstrap secret. Candidates and parents derive the
// same token independently; it is never transmitted as a secret itself,
// only compared.
func BootstrapToken(secret []byte, tempID, region string, role domain.ControllerRole) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(tempID))
	mac.Write([]byte("|"))
	mac.Write([]byte(region))
	mac.Write([]byte("|"))
	mac.Write([]byte(role))
	return hex.EncodeToString(mac.Sum(nil))
}

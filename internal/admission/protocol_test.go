package admission

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/nib"
)

var testSecret = []byte("shared-secret")

func newTestServer(t *testing.T) (*Server, ed25519.PublicKey) {
	t.Helper()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	issuerPub, issuerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := NewServer(store, "regional-1", issuerPriv, testSecret, time.Minute, time.Hour, time.Minute)
	return s, issuerPub
}

func TestAdmission_FullHandshake_Succeeds(t *testing.T) {
	ctx := context.Background()
	server, issuerPub := newTestServer(t)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)

	req := candidate.BuildValidationRequest(testSecret, []string{"report_discovery"})
	challenge, err := server.HandleValidationRequest(ctx, req)
	require.NoError(t, err)

	resp := candidate.RespondToChallenge(challenge)
	result, err := server.HandleChallengeResponse(ctx, resp)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.NotEmpty(t, result.ControllerID)
	require.NotEmpty(t, result.Certificate)

	claims, err := VerifyCertificate(issuerPub, result.Certificate)
	require.NoError(t, err)
	require.Equal(t, result.ControllerID, claims.AssignedID)
	require.Equal(t, string(domain.RoleLocal), claims.Role)
	require.Contains(t, claims.PermittedActions, "propose_config")
}

func TestAdmission_RejectsBadBootstrapToken(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)

	req := candidate.BuildValidationRequest([]byte("wrong-secret"), nil)
	_, err = server.HandleValidationRequest(ctx, req)
	require.Error(t, err)
}

func TestAdmission_RejectsForgedChallengeResponse(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)
	impostor, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)

	req := candidate.BuildValidationRequest(testSecret, nil)
	challenge, err := server.HandleValidationRequest(ctx, req)
	require.NoError(t, err)

	forged := impostor.RespondToChallenge(challenge)
	result, err := server.HandleChallengeResponse(ctx, forged)
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.Equal(t, FailureBadSignature, result.FailureReason)
}

func TestAdmission_RejectsStaleTimestamp(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)

	req := candidate.BuildValidationRequest(testSecret, nil)
	req.Timestamp = time.Now().Add(-time.Hour)

	_, err = server.HandleValidationRequest(ctx, req)
	require.Error(t, err)
}

func TestAdmission_RejectsBlockedTempID(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)
	server.Block(candidate.TempID)

	req := candidate.BuildValidationRequest(testSecret, nil)
	_, err = server.HandleValidationRequest(ctx, req)
	require.Error(t, err)
}

func TestAdmission_RejectsExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	store, err := nib.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, issuerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	server := NewServer(store, "regional-1", issuerPriv, testSecret, -time.Second, time.Hour, time.Minute)

	candidate, err := NewCandidate(domain.RoleLocal, "us-west")
	require.NoError(t, err)

	req := candidate.BuildValidationRequest(testSecret, nil)
	challenge, err := server.HandleValidationRequest(ctx, req)
	require.NoError(t, err)

	resp := candidate.RespondToChallenge(challenge)
	result, err := server.HandleChallengeResponse(ctx, resp)
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.Equal(t, FailureChallengeExpired, result.FailureReason)
}

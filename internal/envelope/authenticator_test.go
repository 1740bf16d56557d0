package envelope

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type alwaysActive struct{}

func (alwaysActive) IsActiveController(ctx context.Context, controllerID string) (bool, error) {
	return true, nil
}

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	nonces, err := NewLRUNonceStore(100)
	require.NoError(t, err)
	return NewAuthenticator([]byte("root-secret-key-for-tests"), nonces, alwaysActive{})
}

func sealedEnvelope(t *testing.T, a *Authenticator, sender, recipient string) *Envelope {
	t.Helper()
	e := &Envelope{
		MessageID:   uuid.NewString(),
		MessageType: "DISCOVERY_REPORT",
		SenderID:    sender,
		RecipientID: recipient,
		Timestamp:   time.Now(),
		Nonce:       uuid.NewString(),
		Payload:     json.RawMessage(`{"ok":true}`),
	}
	require.NoError(t, a.Seal(e))
	return e
}

func TestAuthenticator_Verify_Accepts(t *testing.T) {
	a := newTestAuthenticator(t)
	e := sealedEnvelope(t, a, "local-1", "regional-1")
	require.NoError(t, a.Verify(context.Background(), e, "regional-1"))
}

func TestAuthenticator_Verify_RejectsReplay(t *testing.T) {
	a := newTestAuthenticator(t)
	e := sealedEnvelope(t, a, "local-1", "regional-1")

	require.NoError(t, a.Verify(context.Background(), e, "regional-1"))
	err := a.Verify(context.Background(), e, "regional-1")
	require.Error(t, err)
}

func TestAuthenticator_Verify_RejectsBadSignature(t *testing.T) {
	a := newTestAuthenticator(t)
	e := sealedEnvelope(t, a, "local-1", "regional-1")
	e.HMAC = "0000"

	err := a.Verify(context.Background(), e, "regional-1")
	require.Error(t, err)
}

func TestAuthenticator_Verify_RejectsStaleTimestamp(t *testing.T) {
	a := newTestAuthenticator(t)
	e := sealedEnvelope(t, a, "local-1", "regional-1")
	e.Timestamp = time.Now().Add(-time.Hour)
	require.NoError(t, e.Sign(mustKey(t, a, "local-1", "regional-1")))

	err := a.Verify(context.Background(), e, "regional-1")
	require.Error(t, err)
}

func mustKey(t *testing.T, a *Authenticator, sender, recipient string) []byte {
	t.Helper()
	key, err := DeriveKey(a.RootKey, sender, recipient)
	require.NoError(t, err)
	return key
}

func TestDeriveKey_SymmetricAcrossPeerOrder(t *testing.T) {
	k1, err := DeriveKey([]byte("root"), "a", "b")
	require.NoError(t, err)
	k2, err := DeriveKey([]byte("root"), "b", "a")
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

package exectoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdsno.io/controller/internal/domain"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	rootKey := []byte("shared-root-key-for-tests-only-000000")
	r := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "hash-1", TargetDevices: []string{"dev-1"}}

	token, err := IssueExecutionToken(rootKey, "regional-1", "local-1", r, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, token.MaxUses)

	claims, err := VerifyExecutionToken(rootKey, "regional-1", "local-1", token.Signed)
	require.NoError(t, err)
	require.Equal(t, "req-1", claims.RequestID)
	require.Equal(t, []string{"dev-1"}, claims.Scope)
}

func TestVerifyRejectsWrongExecutor(t *testing.T) {
	rootKey := []byte("shared-root-key-for-tests-only-000000")
	r := &domain.ConfigRequest{RequestID: "req-1", ConfigHash: "hash-1", TargetDevices: []string{"dev-1"}}

	token, err := IssueExecutionToken(rootKey, "regional-1", "local-1", r, time.Minute)
	require.NoError(t, err)

	_, err = VerifyExecutionToken(rootKey, "regional-1", "local-2", token.Signed)
	require.Error(t, err)
}

package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevocationChecker struct {
	revoked map[string]bool
	err     error
}

func (f fakeRevocationChecker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[tokenID], nil
}

func TestJWTConfigValidateToken_Success(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: []byte("test-signing-key-1234567890123456"),
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}

	token, _, err := GenerateToken(cfg, "op-1", "alice", []string{"approver"})
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.NotBefore)
}

func TestJWTConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	issuerCfg := JWTConfig{
		SigningKey: []byte("issuer-key-123456789012345678901234"),
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(issuerCfg, "op-1", "alice", nil)
	require.NoError(t, err)

	validatorCfg := JWTConfig{
		SigningKey: issuerCfg.SigningKey,
		Issuer:     "other-issuer",
	}
	_, err = validatorCfg.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTConfigValidateToken_SupportsVerificationKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-123456789012345678901234567890")
	newKey := []byte("new-key-123456789012345678901234567890")

	token, _, err := GenerateToken(JWTConfig{
		SigningKey: oldKey,
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}, "op-1", "alice", nil)
	require.NoError(t, err)

	claims, err := JWTConfig{
		SigningKey:       newKey,
		VerificationKeys: [][]byte{oldKey},
		Issuer:           "pdsno",
	}.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.OperatorID)
}

func TestJWTConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, OperatorClaims{
		OperatorID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "pdsno",
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = JWTConfig{
		SigningKey: []byte("signing-key-123456789012345678901234"),
		Issuer:     "pdsno",
	}.ValidateToken(context.Background(), tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_RevocationCheck(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: []byte("revocation-key-1234567890123456789012"),
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(cfg, "op-1", "alice", nil)
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)

	_, err = JWTConfig{
		SigningKey: cfg.SigningKey,
		Issuer:     "pdsno",
		RevocationChecker: fakeRevocationChecker{
			revoked: map[string]bool{claims.ID: true},
		},
	}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestJWTConfigValidateToken_RequiresSigningKey(t *testing.T) {
	token, _, err := GenerateToken(JWTConfig{
		SigningKey: []byte("key-to-sign-valid-token-1234567890123456"),
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}, "op-1", "alice", nil)
	require.NoError(t, err)

	_, err = JWTConfig{Issuer: "pdsno"}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenUnverifiable)
	assert.ErrorIs(t, err, ErrJWTSigningKeyMissing)
}

func TestJWTConfigValidateToken_RevocationCheckerError(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: []byte("revocation-error-key-1234567890123456"),
		Issuer:     "pdsno",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(cfg, "op-1", "alice", nil)
	require.NoError(t, err)

	_, err = JWTConfig{
		SigningKey: cfg.SigningKey,
		Issuer:     cfg.Issuer,
		RevocationChecker: fakeRevocationChecker{
			err: errors.New("db down"),
		},
	}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check token revocation")
}

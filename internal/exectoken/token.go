// Package exectoken issues and verifies single-use ExecutionTokens. It is
// deliberately a leaf package with no dependency on the approval engine or
// the job workers, so both can call into it without creating an import
// cycle between the tier that approves a change and the tier that executes
// it.
package exectoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pdsno.io/controller/internal/domain"
	"pdsno.io/controller/internal/envelope"
)

// TokenClaims is the JWT claim set carried by a signed ExecutionToken: a
// machine-to-machine, single-use credential rather than a user session
// token.
type TokenClaims struct {
	RequestID  string   `json:"request_id"`
	ConfigHash string   `json:"config_hash"`
	Scope      []string `json:"scope"`
	MaxUses    int      `json:"max_uses"`
	jwt.RegisteredClaims
}

// IssueExecutionToken creates a single-use, scope-bound token authorizing
// the executor (typically the local controller that proposed the change)
// to apply request. It is signed with a key derived from rootKey via
// HKDF over the (issuer, executor) pair, the same derivation the envelope
// authenticator uses for message signing, so the two concerns share one
// key-management story instead of a second root secret.
func IssueExecutionToken(rootKey []byte, issuerID, executorID string, r *domain.ConfigRequest, ttl time.Duration) (*domain.ExecutionToken, error) {
	key, err := envelope.DeriveKey(rootKey, issuerID, executorID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tokenID := uuid.NewString()
	claims := TokenClaims{
		RequestID:  r.RequestID,
		ConfigHash: r.ConfigHash,
		Scope:      r.TargetDevices,
		MaxUses:    1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerID,
			Subject:   executorID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("sign execution token: %w", err)
	}

	return &domain.ExecutionToken{
		TokenID:    tokenID,
		RequestID:  r.RequestID,
		ConfigHash: r.ConfigHash,
		Scope:      r.TargetDevices,
		IssuerID:   issuerID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		MaxUses:    1,
		Signed:     signed,
	}, nil
}

// VerifyExecutionToken validates the signed wire form of a token against
// the same HKDF-derived key an executor would use, returning its claims.
func VerifyExecutionToken(rootKey []byte, issuerID, executorID, signed string) (*TokenClaims, error) {
	key, err := envelope.DeriveKey(rootKey, issuerID, executorID)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(signed, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid execution token claims")
	}
	return claims, nil
}

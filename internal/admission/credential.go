// Package admission implements the controller admission protocol: a
// bootstrap-token-gated challenge/response handshake that ends in a
// signed certificate and an atomic identity allocation in the NIB.
package admission

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pdsno.io/controller/internal/domain"
)

// DecodeRootKey turns the hex-encoded encryption key into the raw root key
// shared by the envelope HMAC layer and the admission issuer identity below.
func DecodeRootKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key must be hex-encoded: %w", err)
	}
	if len(key) < ed25519.SeedSize {
		return nil, fmt.Errorf("encryption_key must decode to at least %d bytes", ed25519.SeedSize)
	}
	return key, nil
}

// IssuerKeyFromRoot derives a controller's admission-signing keypair from
// the shared root key's leading bytes, so every process instance of the
// same controller identity issues consistent certificates without a
// separate key-management step.
func IssuerKeyFromRoot(rootKey []byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(rootKey[:ed25519.SeedSize])
}

// CertificateClaims is the signed credential a parent issues a newly
// validated child controller.
type CertificateClaims struct {
	AssignedID       string   `json:"assigned_id"`
	Role             string   `json:"role"`
	Region           string   `json:"region,omitempty"`
	Scope            []string `json:"scope"`
	PermittedActions []string `json:"permitted_actions"`
	jwt.RegisteredClaims
}

// IssueCertificate signs a certificate for a newly validated controller
// using the issuer's ed25519 private key (EdDSA).
func IssueCertificate(issuerKey ed25519.PrivateKey, issuerID string, c *domain.Controller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CertificateClaims{
		AssignedID:       c.ControllerID,
		Role:             string(c.Role),
		Region:           c.Region,
		Scope:            c.Capabilities,
		PermittedActions: permittedActionsFor(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerID,
			Subject:   c.ControllerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(issuerKey)
}

// VerifyCertificate validates a certificate's signature against the
// issuer's public key and returns its claims.
func VerifyCertificate(issuerPublicKey ed25519.PublicKey, certificate string) (*CertificateClaims, error) {
	token, err := jwt.ParseWithClaims(certificate, &CertificateClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return issuerPublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CertificateClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid certificate claims")
	}
	return claims, nil
}

func permittedActionsFor(role domain.ControllerRole) []string {
	switch role {
	case domain.RoleGlobal:
		return []string{"validate_regional", "approve_high", "approve_emergency"}
	case domain.RoleRegional:
		return []string{"validate_local", "approve_low", "approve_medium", "forward_high"}
	case domain.RoleLocal:
		return []string{"propose_config", "execute_config", "report_discovery"}
	default:
		return nil
	}
}

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorClaims identifies the human operator behind a dashboard session.
// This is distinct from the controller-to-controller envelope authentication
// in internal/envelope: operators authenticate to propose, approve, and
// inspect configuration requests through the HTTP surface, never to
// exchange protocol messages between controllers.
type OperatorClaims struct {
	OperatorID string   `json:"operator_id"`
	Username   string   `json:"username"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

const defaultJWTLeeway = 30 * time.Second

var (
	ErrJWTSigningKeyMissing = errors.New("jwt signing key is not configured")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrTokenIDRequired      = errors.New("token id is required for revocation checks")
)

// TokenRevocationChecker checks whether a token JTI is revoked.
type TokenRevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// JWTConfig holds operator session JWT signing configuration.
type JWTConfig struct {
	SigningKey        []byte
	VerificationKeys  [][]byte
	Issuer            string
	ExpiresIn         time.Duration
	Leeway            time.Duration
	RevocationChecker TokenRevocationChecker
}

// GenerateToken creates a signed operator session token.
func GenerateToken(cfg JWTConfig, operatorID, username string, roles []string) (string, time.Time, error) {
	if len(cfg.SigningKey) == 0 {
		return "", time.Time{}, ErrJWTSigningKeyMissing
	}

	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)
	tokenID, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token id: %w", err)
	}

	claims := OperatorClaims{
		OperatorID: operatorID,
		Username:   username,
		Roles:      roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   operatorID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

func (cfg JWTConfig) parserOptions() []jwt.ParserOption {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultJWTLeeway
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return opts
}

func (cfg JWTConfig) verificationKeySet() jwt.VerificationKeySet {
	keys := make([]jwt.VerificationKey, 0, 1+len(cfg.VerificationKeys))
	seen := make(map[string]struct{}, 1+len(cfg.VerificationKeys))

	if len(cfg.SigningKey) > 0 {
		keys = append(keys, cfg.SigningKey)
		seen[string(cfg.SigningKey)] = struct{}{}
	}

	for _, key := range cfg.VerificationKeys {
		if len(key) == 0 {
			continue
		}
		if _, ok := seen[string(key)]; ok {
			continue
		}
		keys = append(keys, key)
		seen[string(key)] = struct{}{}
	}

	return jwt.VerificationKeySet{Keys: keys}
}

func (cfg JWTConfig) keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		keySet := cfg.verificationKeySet()
		switch len(keySet.Keys) {
		case 0:
			return nil, ErrJWTSigningKeyMissing
		case 1:
			return keySet.Keys[0], nil
		default:
			return keySet, nil
		}
	}
}

// ValidateToken validates token signature + standard claims and checks optional revocation.
func (cfg JWTConfig) ValidateToken(ctx context.Context, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, cfg.keyfunc(), cfg.parserOptions()...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if cfg.RevocationChecker != nil {
		if claims.ID == "" {
			return nil, ErrTokenIDRequired
		}
		revoked, err := cfg.RevocationChecker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// JWTAuthWithConfig returns a Gin middleware that validates Bearer tokens on
// operator-facing dashboard routes and populates context. Routes under
// /message/<type> are authenticated by the envelope layer instead and never
// pass through this middleware.
func JWTAuthWithConfig(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "invalid authorization header format",
			})
			return
		}

		tokenString := parts[1]
		claims, err := cfg.ValidateToken(c.Request.Context(), tokenString)

		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			} else if errors.Is(err, jwt.ErrTokenNotValidYet) || errors.Is(err, jwt.ErrTokenUsedBeforeIssued) {
				msg = "token not active"
			} else if errors.Is(err, ErrTokenRevoked) {
				msg = "token revoked"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": msg,
			})
			return
		}

		c.Set("operator_id", claims.OperatorID)
		c.Set("username", claims.Username)
		c.Set("roles", claims.Roles)
		c.Request = c.Request.WithContext(
			SetOperatorContext(c.Request.Context(), claims.OperatorID, claims.Username, claims.Roles),
		)

		c.Next()
	}
}

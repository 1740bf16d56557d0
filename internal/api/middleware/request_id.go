package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDHeader is the HTTP header for request tracing.
	RequestIDHeader = "X-Request-ID"

	ctxKeyRequestID  contextKey = "request_id"
	ctxKeyOperatorID contextKey = "operator_id"
	ctxKeyUsername   contextKey = "username"
	ctxKeyRoles      contextKey = "roles"
)

// RequestID injects a unique request ID into the context and response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(string(ctxKeyRequestID), rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), ctxKeyRequestID, rid),
		)
		c.Next()
	}
}

// GetRequestID extracts request ID from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// SetOperatorContext stores the authenticated operator's identity on ctx, set
// by JWTAuthWithConfig after validating a dashboard session token.
func SetOperatorContext(ctx context.Context, operatorID, username string, roles []string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyOperatorID, operatorID)
	ctx = context.WithValue(ctx, ctxKeyUsername, username)
	return context.WithValue(ctx, ctxKeyRoles, roles)
}

// GetOperatorID extracts the authenticated operator ID from context.
func GetOperatorID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOperatorID).(string); ok {
		return v
	}
	return ""
}

// GetUsername extracts the authenticated operator's username from context.
func GetUsername(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyUsername).(string); ok {
		return v
	}
	return ""
}

// GetRoles extracts the authenticated operator's roles from context.
func GetRoles(ctx context.Context) []string {
	if v, ok := ctx.Value(ctxKeyRoles).([]string); ok {
		return v
	}
	return nil
}

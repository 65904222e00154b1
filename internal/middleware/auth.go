package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/codeverdict/core/internal/pkg/jwt"
	"github.com/codeverdict/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeySID    = "session_id"
	// TokenCookie carries the session token for browser clients.
	TokenCookie = "cv_token"
)

var ErrSessionInactive = errors.New("session expired or revoked")

// SessionChecker is satisfied by *session.Manager.
type SessionChecker interface {
	IsActive(ctx context.Context, userID, sessionID string) (bool, error)
	Touch(ctx context.Context, userID, sessionID string)
}

// Auth returns a middleware that enforces a valid session token.
func Auth(signer *jwt.Signer, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ValidateTokenClaims(c.Request.Context(), signer, sessions, extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeySID, claims.SessionID)
		sessions.Touch(c.Request.Context(), claims.UserID, claims.SessionID)
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not block the request.
func OptionalAuth(signer *jwt.Signer, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := ValidateTokenClaims(c.Request.Context(), signer, sessions, extractToken(c)); err == nil {
			c.Set(ContextKeyUserID, claims.UserID)
			c.Set(ContextKeySID, claims.SessionID)
		}
		c.Next()
	}
}

// ValidateTokenClaims verifies the JWT and that its session row is still live.
func ValidateTokenClaims(ctx context.Context, signer *jwt.Signer, sessions SessionChecker, rawToken string) (*jwt.Claims, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return nil, errors.New("token is required")
	}

	claims, err := signer.Parse(token)
	if err != nil {
		return nil, err
	}
	active, err := sessions.IsActive(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrSessionInactive
	}
	return claims, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	if raw, err := c.Cookie(TokenCookie); err == nil {
		return NormalizeToken(raw)
	}
	return ""
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

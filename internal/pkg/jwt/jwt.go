package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	defaultSecret = "codeverdict-secret-change-me"
	issuer        = "codeverdict"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload.
type Claims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	jwtlib.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner falls back to a development secret when s is empty.
func NewSigner(s string) *Signer {
	if s == "" {
		s = defaultSecret
	}
	return &Signer{secret: []byte(s), now: time.Now}
}

// UsesDefaultSecret reports whether no secret was configured.
func (s *Signer) UsesDefaultSecret() bool { return string(s.secret) == defaultSecret }

// Sign creates a signed JWT for the given user, bound to sessionID.
func (s *Signer) Sign(userID, sessionID string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a token string and returns the claims.
func (s *Signer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtlib.WithIssuer(issuer), jwtlib.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

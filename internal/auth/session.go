// Package auth resolves inbound requests to caller sessions. Sessions are
// HS256 JWTs; the pipeline treats a resolved session as opaque input.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/tally-server/internal/models"
)

// Session is the resolved caller identity
type Session struct {
	UserID   string
	Email    string
	Name     string
	ImageURL string
	Expires  time.Time
}

// Expired reports whether the session is no longer valid at now
func (s *Session) Expired(now time.Time) bool {
	return !s.Expires.IsZero() && !now.Before(s.Expires)
}

// Tokens issues and verifies session tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens creates a token issuer signing with secret
func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns how long issued tokens stay valid
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a session token for user
func (t *Tokens) Issue(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(t.ttl)

	claims := jwt.MapClaims{
		"sub":     user.ID, // subject
		"email":   user.Email,
		"name":    user.Name,
		"picture": user.ImageURL,
		"exp":     expires.Unix(),
		"iat":     now.Unix(), // issued at
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, time.Unix(expires.Unix(), 0), nil
}

// Verify parses a token and returns its session
func (t *Tokens) Verify(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid user ID in token")
	}

	session := &Session{UserID: userID}
	session.Email, _ = claims["email"].(string)
	session.Name, _ = claims["name"].(string)
	session.ImageURL, _ = claims["picture"].(string)

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp != nil {
		session.Expires = exp.Time
	}

	return session, nil
}

type sessionKey struct{}

// WithSession returns a context carrying s
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached to ctx, or nil
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

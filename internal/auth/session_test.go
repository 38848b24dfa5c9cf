package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rongwang/tally-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens("test-secret-key", time.Hour)
	user := &models.User{ID: "user-1", Email: "a@example.com", Name: "A", ImageURL: "https://img/a.png"}

	token, expires, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 2*time.Second)

	session, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "a@example.com", session.Email)
	assert.Equal(t, "A", session.Name)
	assert.Equal(t, "https://img/a.png", session.ImageURL)
	assert.Equal(t, expires.Unix(), session.Expires.Unix())
	assert.False(t, session.Expired(time.Now()))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokens("one", time.Hour).Issue(&models.User{ID: "u"})
	require.NoError(t, err)

	_, err = NewTokens("two", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRequiresSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Verify(signed)
	assert.Error(t, err)
}

func TestSessionContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, FromContext(ctx))

	s := &Session{UserID: "u"}
	assert.Same(t, s, FromContext(WithSession(ctx, s)))
}

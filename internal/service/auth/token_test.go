package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/safechat/backend/internal/config"
)

func newTestTokens() *TokenManager {
	return NewTokenManager(config.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour, Issuer: "safechat-test"})
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := newTestTokens()

	raw, err := tokens.Issue(Identity{UserID: 7, Email: "ann@example.com"})
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id.UserID)
	assert.Equal(t, "ann@example.com", id.Email)
}

func TestTokenVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := newTestTokens().Issue(Identity{UserID: 1, Email: "a@example.com"})
	require.NoError(t, err)

	other := NewTokenManager(config.AuthConfig{Secret: "other", TokenTTL: time.Hour})
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenVerifyExpired(t *testing.T) {
	tokens := newTestTokens()
	issuedAt := time.Now().Add(-2 * time.Hour)
	tokens.now = func() time.Time { return issuedAt }

	raw, err := tokens.Issue(Identity{UserID: 1, Email: "a@example.com"})
	require.NoError(t, err)

	tokens.now = time.Now
	if _, err := tokens.Verify(raw); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTokenVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{Subject: "a@example.com"}}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	if _, err := newTestTokens().Verify(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenVerifyEmpty(t *testing.T) {
	if _, err := newTestTokens().Verify(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

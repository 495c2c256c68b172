package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessTokenClaims(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	at, err := NewAccessToken("secret", 42, "admin", 15*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), at.Exp)

	tok, err := jwt.Parse(at.Token, func(t *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	claims := tok.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(42), claims["sub"])
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, float64(now.Add(15*time.Minute).Unix()), claims["exp"])
	assert.Equal(t, float64(now.Unix()), claims["iat"])
}

func TestNewRefreshTokenUnique(t *testing.T) {
	now := time.Now().UTC()
	a, err := NewRefreshToken(24*time.Hour, now)
	require.NoError(t, err)
	b, err := NewRefreshToken(24*time.Hour, now)
	require.NoError(t, err)

	assert.Len(t, a.Raw, 96)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Equal(t, now.Add(24*time.Hour), a.Exp)
}

func TestHashRefreshRawDeterministic(t *testing.T) {
	h1 := HashRefreshRaw("some-raw-token")
	h2 := HashRefreshRaw("some-raw-token")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, HashRefreshRaw("other-raw-token"))
}

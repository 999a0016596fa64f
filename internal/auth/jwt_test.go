package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifyToken(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

	token, err := CreateToken("tablet-1", "tenant-9", "user-3", cfg)
	require.NoError(t, err)

	claims, err := VerifyToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tablet-1", claims.DeviceID)
	assert.Equal(t, "tenant-9", claims.TenantID)
	assert.Equal(t, "user-3", claims.UserID)
	assert.Equal(t, "test", claims.Issuer)
}

func TestCreateToken_Validation(t *testing.T) {
	_, err := CreateToken("tablet-1", "", "", TokenConfig{Expiry: time.Hour})
	assert.Error(t, err)

	_, err = CreateToken("", "", "", TokenConfig{Secret: "secret", Expiry: time.Hour})
	assert.Error(t, err)

	_, err = CreateToken("tablet-1", "", "", TokenConfig{Secret: "secret"})
	assert.Error(t, err)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	token, err := CreateToken("tablet-1", "", "", cfg)
	require.NoError(t, err)

	_, err = VerifyToken(token, TokenConfig{Secret: "other", Expiry: time.Hour})
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	cfg := TokenConfig{Secret: "secret", Expiry: time.Millisecond, Issuer: "test"}
	token, err := CreateToken("tablet-1", "", "", cfg)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = VerifyToken(token, cfg)
	assert.Error(t, err)
}

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	token, err := manager.GenerateAccessToken("u1", "咪咪", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "咪咪", claims.Name)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, "cat-game", claims.Issuer)
}

func TestJWTManager_WrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-a", time.Hour, 24*time.Hour)
	other := NewJWTManager("secret-b", time.Hour, 24*time.Hour)

	token, err := manager.GenerateAccessToken("u1", "咪咪", "session-1")
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, 24*time.Hour)

	token, err := manager.GenerateAccessToken("u1", "咪咪", "session-1")
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTManager_RefreshAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	refresh, err := manager.GenerateRefreshToken("u1", "session-1")
	require.NoError(t, err)

	access, err := manager.RefreshAccessToken(refresh, "咪咪")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "access", claims.TokenType)
}

func TestJWTManager_RefreshRejectsAccessToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, 24*time.Hour)

	access, err := manager.GenerateAccessToken("u1", "咪咪", "session-1")
	require.NoError(t, err)

	// 访问令牌不能当作刷新令牌使用
	_, err = manager.RefreshAccessToken(access, "咪咪")
	assert.Error(t, err)
}

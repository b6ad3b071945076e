package jwt

import (
	"testing"
	"time"

	"caisse/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken(7, 3, "amina", "cashier")
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, uint(3), claims.EntityID)
	assert.Equal(t, "cashier", claims.Role)
	assert.False(t, claims.IsSuperAdmin())
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret", time.Hour).GenerateToken(1, 1, "a", "admin")
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	m := NewJWTManager("secret", -time.Minute)
	token, err := m.GenerateToken(1, 1, "a", "admin")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	t.Run("expired token inside refresh window", func(t *testing.T) {
		m := NewJWTManager("secret", -time.Minute).WithRefreshDuration(time.Hour)
		token, err := m.GenerateToken(9, 2, "karim", "manager")
		require.NoError(t, err)

		fresh, claims, err := m.RefreshToken(token)
		require.NoError(t, err)
		assert.NotEmpty(t, fresh)
		assert.Equal(t, uint(9), claims.UserID)
	})

	t.Run("garbage token", func(t *testing.T) {
		m := NewJWTManager("secret", time.Hour)
		_, _, err := m.RefreshToken("not-a-token")
		assert.Error(t, err)
	})
}

func TestNewFromConfig(t *testing.T) {
	m := NewFromConfig(config.JWTConfig{SecretKey: "s", TokenDuration: "2h", RefreshDuration: "bogus"})
	assert.Equal(t, 2*time.Hour, m.GetTokenDuration())
	assert.Equal(t, 7*24*time.Hour, m.refreshDuration)

	m = NewFromConfig(config.JWTConfig{SecretKey: "s"})
	assert.Equal(t, 24*time.Hour, m.GetTokenDuration())
}

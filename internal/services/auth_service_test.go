package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/repo"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	users := repo.NewMemoryUserRepo(models.User{
		ID:           "u-1",
		Username:     "ops",
		Role:         "admin",
		PasswordHash: string(hash),
	})
	return NewAuthService(users, AuthConfig{Secret: "test-secret", Expiry: time.Hour})
}

func TestAuthService_Login(t *testing.T) {
	svc := newAuth(t)

	resp, err := svc.Login(context.Background(), "ops", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(resp.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestAuthService_LoginRejects(t *testing.T) {
	svc := newAuth(t)

	for _, tc := range []struct{ user, pass string }{
		{"ops", "wrong"},
		{"nobody", "s3cret-pass"},
	} {
		_, err := svc.Login(context.Background(), tc.user, tc.pass)
		var appErr *utils.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 401, appErr.Status)
	}
}

package services

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

// UserStore looks up operator accounts.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type AuthConfig struct {
	Secret string
	Expiry time.Duration
}

type AuthService struct {
	users UserStore
	cfg   AuthConfig
}

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	User        interface{} `json:"user"`
}

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(users UserStore, cfg AuthConfig) *AuthService {
	return &AuthService{users: users, cfg: cfg}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, utils.NewAppError(401, "UNAUTHORIZED", "invalid credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, utils.NewAppError(401, "UNAUTHORIZED", "invalid credentials", nil)
	}

	token, expiresIn, err := s.generateToken(user)
	if err != nil {
		return nil, utils.NewAppError(500, "INTERNAL_ERROR", "could not generate token", nil)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		User: map[string]string{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
	}, nil
}

func (s *AuthService) generateToken(user *models.User) (string, int64, error) {
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(s.cfg.Expiry)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   user.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", 0, err
	}

	return signed, int64(s.cfg.Expiry.Seconds()), nil
}

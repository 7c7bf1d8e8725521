package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vouh/Course-corner-sub000/internal/services"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

type AuthConfig struct {
	Secret string
}

func JWTAuth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			utils.RespondError(c, utils.NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", "missing token", nil))
			c.Abort()
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &services.Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(cfg.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			utils.RespondError(c, utils.NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil))
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole must run after JWTAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		utils.RespondError(c, utils.NewAppError(http.StatusForbidden, "FORBIDDEN", "insufficient role", nil))
		c.Abort()
	}
}

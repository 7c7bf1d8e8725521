package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured browser origins. An empty list, or "*",
// allows any origin without credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if AllowsAnyOrigin(allowedOrigins) {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func AllowsAnyOrigin(allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// OriginChecker returns a websocket origin check matching the CORS policy.
// Requests without an Origin header are not from a browser and pass.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	if AllowsAnyOrigin(allowedOrigins) {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"insights-backend/internal/shared/auth"
	"insights-backend/internal/shared/server/respond"
)

const (
	observerIDKey   = "observerId"
	observerNameKey = "observerName"
)

// Auth validates observer JWTs or dev guest headers and stores identity in context.
// Token issuance happens elsewhere; this layer only verifies and scopes.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))

		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(observerIDKey, claims.Sub)
			if claims.Name != "" {
				c.Set(observerNameKey, claims.Name)
			}
			c.Next()
			return
		}

		// Dev-only header identity; production requires a verified token.
		if env == "production" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}
		observerID := strings.TrimSpace(c.GetHeader("X-Observer-Id"))
		if observerID == "" {
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
			return
		}

		c.Set(observerIDKey, "dev:"+observerID)
		c.Next()
	}
}

// ObserverIDFromContext fetches the observer ID set by the auth middleware.
func ObserverIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(observerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"zerosum_client/internal/service"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// JWT requires a valid bearer token and stores its claims on the context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := service.ParseJWT(strings.TrimSpace(token))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrTokenExpired) {
				msg = "token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// Operator rejects callers whose token does not carry the operator role.
// It must run after JWT.
func Operator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !claims.IsOperator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator role required"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by JWT.
func ClaimsFrom(c *gin.Context) (service.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := v.(service.Claims)
	return claims, ok
}

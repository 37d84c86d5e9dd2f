package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"arena-agent/internal/config"
)

// Middleware validates the arena token on protected routes. With no JWT
// secret configured the deployment runs open and every request passes. A nil
// redis client skips the revocation check and trusts the JWT alone.
func Middleware(cfg *config.Config, rdb *redis.Client, requireOperator bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Server.JWTSecret == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Missing or invalid Authorization header"}})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ParseToken(cfg.Server.JWTSecret, tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Invalid or expired token"}})
			return
		}
		if rdb != nil {
			recorded, err := GetToken(rdb, claims.ArenaID)
			if err != nil || recorded != tokenStr {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Token revoked or expired"}})
				return
			}
			// Sliding expiry: activity keeps the token alive.
			_ = SetToken(rdb, claims.ArenaID, tokenStr, 30*time.Minute)
		}

		c.Set("arenaId", claims.ArenaID)
		c.Set("role", claims.Role)

		if requireOperator && claims.Role != RoleOperator {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": gin.H{"message": "Operator only"}})
			return
		}
		c.Next()
	}
}

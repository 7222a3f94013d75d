package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	ctxPermissions = "permissions"
	ctxUserID      = "user_id"
	ctxUsername    = "username"
	ctxRole        = "role"
)

// AuthMiddleware validates tokens and enforces authentication
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid authorization header format", nil))
			return
		}

		token := parts[1]

		// Try JWT first to get user info
		if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
			c.Set(ctxPermissions, RoleToPermissions(claims.Role))
			c.Set(ctxUserID, claims.UserID)
			c.Set(ctxUsername, claims.Username)
			c.Set(ctxRole, claims.Role)
			c.Next()
			return
		}

		// Fall back to machine token (no user_id for machine tokens)
		permissions, err := a.ValidateMachineToken(token, c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("AUTH_401", "invalid or expired token", nil))
			return
		}

		c.Set(ctxPermissions, permissions)
		c.Next()
	}
}

// RequirePermission checks if user has required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasPermission(c, required) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("AUTH_403", "insufficient permissions", gin.H{"required": string(required)}))
			return
		}
		c.Next()
	}
}

// HasPermission reports whether the authenticated caller holds p.
func HasPermission(c *gin.Context, p Permission) bool {
	for _, have := range GetPermissions(c) {
		if have == p {
			return true
		}
	}
	return false
}

// GetPermissions extracts permissions from the request context
func GetPermissions(c *gin.Context) []Permission {
	if perms, ok := c.Get(ctxPermissions); ok {
		if list, ok := perms.([]Permission); ok {
			return list
		}
	}
	return nil
}

// GetUsername returns the user name for JWT authenticated requests.
func GetUsername(c *gin.Context) (string, bool) {
	name := c.GetString(ctxUsername)
	return name, name != ""
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	permissionsKey = "permissions"
	subjectKey     = "subject"
	roleKey        = "role"
)

// Authenticator guards gin routes with bearer tokens. A disabled
// authenticator lets every request through with all permissions.
type Authenticator struct {
	jwtHandler *JWTHandler
	enabled    bool
}

func NewAuthenticator(jwtHandler *JWTHandler, enabled bool) *Authenticator {
	return &Authenticator{jwtHandler: jwtHandler, enabled: enabled}
}

func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// AuthMiddleware validates tokens and enforces authentication
func (a *Authenticator) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enabled {
			c.Set(permissionsKey, RoleToPermissions(string(PermAdmin)))
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid authorization header",
			})
			c.Abort()
			return
		}

		claims, err := a.jwtHandler.ValidateAccessToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(permissionsKey, RoleToPermissions(claims.Role))
		c.Set(subjectKey, claims.Subject)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>". Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		token := c.Query("token")
		return token, token != ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RequirePermission checks if user has required permission
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, exists := c.Get(permissionsKey)
		if !exists {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "no permissions found",
			})
			c.Abort()
			return
		}

		permissions, _ := perms.([]Permission)
		hasPermission := false
		for _, p := range permissions {
			if p == required {
				hasPermission = true
				break
			}
		}

		if !hasPermission {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": string(required),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Subject returns the token subject of an authenticated request.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

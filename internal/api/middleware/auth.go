package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/auth"
)

// AccessTokenCookieName is the cookie the web console stores its token in
const AccessTokenCookieName = "csm_access"

// Context keys set by Auth
const (
	ClaimsKey   = "user"
	UsernameKey = "username"
	RoleKey     = "role"
)

var errMalformedHeader = errors.New("Invalid authorization header format")

// accessToken looks in the Authorization header, then the cookie, then the
// token query parameter used by browser websocket clients
func accessToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return "", errMalformedHeader
		}
		return token, nil
	}
	if cookie, err := c.Cookie(AccessTokenCookieName); err == nil && cookie != "" {
		return cookie, nil
	}
	return c.Query("token"), nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// Auth validates the access token and loads the account's current role.
// Accounts live in the config file, so a token can outlive its user.
func Auth(jwtManager *auth.JWTManager, authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := accessToken(c)
		switch {
		case err != nil:
			unauthorized(c, err.Error())
			return
		case token == "":
			unauthorized(c, "Authentication required")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}
		role, ok := authenticator.Role(claims.Username)
		if !ok {
			unauthorized(c, "Account no longer exists")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UsernameKey, claims.Username)
		c.Set(RoleKey, role)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the caller's role grants
// permission
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		if role == "" {
			unauthorized(c, "User not authenticated")
			return
		}
		if !auth.HasPermission(role, permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "Insufficient permissions",
				"permission": permission,
			})
			return
		}
		c.Next()
	}
}

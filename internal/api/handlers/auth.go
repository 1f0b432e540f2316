package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/api/middleware"
	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/logging"
)

const cookiePath = "/api/v1"

// Credentials is the body of POST /auth/login
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthHandler issues and revokes access tokens for configured accounts
type AuthHandler struct {
	tokens   *auth.JWTManager
	accounts *auth.Authenticator
	activity *logging.ActivityLogger
}

func NewAuthHandler(tokens *auth.JWTManager, accounts *auth.Authenticator, activity *logging.ActivityLogger) *AuthHandler {
	return &AuthHandler{tokens: tokens, accounts: accounts, activity: activity}
}

// writeTokenCookie stores token for browser clients. maxAge < 0 deletes it.
func writeTokenCookie(c *gin.Context, token string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessTokenCookieName, token, maxAge, cookiePath, "", secure, true)
}

func userView(username, role string) gin.H {
	return gin.H{
		"username":    username,
		"role":        role,
		"permissions": auth.Permissions(role),
	}
}

// Login checks credentials and returns an access token, also set as an
// HttpOnly cookie
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	role, err := h.accounts.Authenticate(creds.Username, creds.Password)
	if h.activity != nil {
		h.activity.LogLogin(creds.Username, c.ClientIP(), err)
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expiresAt, err := h.tokens.GenerateAccessToken(creds.Username, role)
	if err != nil {
		respondError(c, err)
		return
	}
	writeTokenCookie(c, token, max(int(time.Until(expiresAt).Seconds()), 0))

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_at":   expiresAt,
		"user":         userView(creds.Username, role),
	})
}

// Logout revokes the presented token and clears the cookie
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if claims, ok := c.MustGet(middleware.ClaimsKey).(*auth.Claims); ok {
		h.tokens.Revoke(claims)
	}
	writeTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GetCurrentUser describes the caller with their current permissions
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, userView(c.GetString(middleware.UsernameKey), c.GetString(middleware.RoleKey)))
}

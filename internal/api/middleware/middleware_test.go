package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/config"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.JWTManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := auth.HashPassword("unused", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewAuthenticator(config.AuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		Users: []config.UserConfig{
			{Username: "watcher", PasswordHash: hash, Role: auth.RoleViewer},
		},
	})

	router := gin.New()
	protected := router.Group("/api/v1")
	protected.Use(Auth(jwtManager, authenticator))
	protected.GET("/status", RequirePermission(auth.PermServerView), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("username")})
	})
	protected.POST("/start", RequirePermission(auth.PermServerControl), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return router, jwtManager
}

func issue(t *testing.T, jwtManager *auth.JWTManager, username, role string) string {
	t.Helper()
	token, _, err := jwtManager.GenerateAccessToken(username, role)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

func TestAuthRejectsMissingAndMalformedTokens(t *testing.T) {
	router, _ := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed header, got %d", rec.Code)
	}
}

func TestAuthAcceptsHeaderCookieAndQuery(t *testing.T) {
	router, jwtManager := newAuthRouter(t)
	token := issue(t, jwtManager, "watcher", auth.RoleViewer)

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/status", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/status", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/status?token="+token, nil),
	}
	requests[0].Header.Set("Authorization", "Bearer "+token)
	requests[1].AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: token})

	for i, req := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestAuthRejectsRemovedAccount(t *testing.T) {
	router, jwtManager := newAuthRouter(t)
	token := issue(t, jwtManager, "ghost", auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for removed account, got %d", rec.Code)
	}
}

func TestRequirePermissionUsesCurrentRole(t *testing.T) {
	router, jwtManager := newAuthRouter(t)

	// the token claims admin but the account is configured as a viewer
	token := issue(t, jwtManager, "watcher", auth.RoleAdmin)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer, got %d", rec.Code)
	}

	token = issue(t, jwtManager, "admin", auth.RoleAdmin)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for admin, got %d", rec.Code)
	}
}

func TestContentSecurityPolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ContentSecurityPolicy(false))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	want := "default-src 'none'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'; font-src 'self'; object-src 'none'; frame-ancestors 'none';"
	if got := rec.Header().Get("Content-Security-Policy"); got != want {
		t.Fatalf("unexpected policy %q", got)
	}
}

func TestOriginMatcher(t *testing.T) {
	matcher := newOriginMatcher([]string{"https://panel.example.com/", "https://*.craft.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://panel.example.com", true},
		{"HTTPS://PANEL.EXAMPLE.COM", true},
		{"http://panel.example.com", false},
		{"https://eu.craft.example", true},
		{"https://craft.example", false},
		{"http://eu.craft.example", false},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		if got := matcher.allows(tt.origin); got != tt.want {
			t.Fatalf("allows(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !IsOriginAllowed("https://anything.local", []string{"0.0.0.0/0"}) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://panel.example.com"}}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://panel.example.com" {
		t.Fatalf("origin not echoed: %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed preflight, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(2)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	key := "127.0.0.1"

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.allow(key); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := limiter.allow(key)
	if ok {
		t.Fatalf("expected third request to be rate limited")
	}
	if wait <= 0 || wait > 31*time.Second {
		t.Fatalf("unexpected wait %v", wait)
	}
	if ok, _ := limiter.allow("10.0.0.9"); !ok {
		t.Fatalf("other clients have their own bucket")
	}

	now = now.Add(31 * time.Second)
	if ok, _ := limiter.allow(key); !ok {
		t.Fatalf("expected a token after 31s")
	}
	if ok, _ := limiter.allow(key); ok {
		t.Fatalf("only one token should have refilled")
	}
}

func TestLoggerSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Logger())
	router.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	id := rec.Header().Get(RequestIDHeader)
	if id == "" || rec.Body.String() != id {
		t.Fatalf("expected generated request id, header=%q body=%q", id, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("incoming request id should be kept")
	}
}

func TestSecurityHeadersHSTSOnlyOverTLS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing X-Frame-Options")
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") != hstsValue {
		t.Fatalf("expected HSTS behind a TLS proxy, got %v", rec.Header())
	}
}

func TestResourceOf(t *testing.T) {
	tests := map[string]string{
		"/api/v1/backups/:id/restore": "backups",
		"/api/v1/server/start":        "server",
		"/health":                     "health",
	}
	for route, want := range tests {
		if got := resourceOf(route); got != want {
			t.Fatalf("resourceOf(%q) = %q, want %q", route, got, want)
		}
	}
}

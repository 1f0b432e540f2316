package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

var responseHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "strict-origin-when-cross-origin",
	"Cache-Control":          "no-store",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets hardening headers on every response. HSTS is only
// sent over TLS, directly or behind a proxy that says so.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		for name, value := range responseHeaders {
			c.Header(name, value)
		}
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			c.Header("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}

type cspDirective struct {
	name    string
	sources []string
}

// ContentSecurityPolicy sets a locked down CSP. dev relaxes script and
// connect sources for a hot reloading frontend.
func ContentSecurityPolicy(dev bool) gin.HandlerFunc {
	script := []string{"'self'"}
	connect := []string{"'self'"}
	if dev {
		script = append(script, "'unsafe-eval'")
		connect = append(connect, "ws:", "wss:")
	}

	directives := []cspDirective{
		{"default-src", []string{"'none'"}},
		{"script-src", script},
		{"style-src", []string{"'self'", "'unsafe-inline'"}},
		{"img-src", []string{"'self'", "data:"}},
		{"connect-src", connect},
		{"font-src", []string{"'self'"}},
		{"object-src", []string{"'none'"}},
		{"frame-ancestors", []string{"'none'"}},
	}

	var b strings.Builder
	for i, d := range directives {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(d.name + " " + strings.Join(d.sources, " ") + ";")
	}
	policy := b.String()

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", policy)
		c.Next()
	}
}

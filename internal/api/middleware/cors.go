package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/config"
)

const corsAllowHeaders = "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID"

// originMatcher checks request origins against the CORS allowlist. Entries
// are exact origins, "*" (or "0.0.0.0/0") for any origin, or a wildcard
// subdomain such as "https://*.example.com".
type originMatcher struct {
	any      bool
	exact    map[string]bool
	suffixes []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	suffix string
}

func newOriginMatcher(allowed []string) originMatcher {
	m := originMatcher{exact: make(map[string]bool)}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimRight(strings.TrimSpace(entry), "/"))
		switch {
		case entry == "":
		case entry == "*" || entry == "0.0.0.0/0":
			m.any = true
		case strings.Contains(entry, "://*."):
			scheme, host, _ := strings.Cut(entry, "://")
			m.suffixes = append(m.suffixes, wildcardOrigin{scheme: scheme, suffix: host[1:]})
		default:
			m.exact[entry] = true
		}
	}
	return m
}

// allows reports whether origin may call the API. An empty origin comes
// from a non-browser client and is always allowed.
func (m originMatcher) allows(origin string) bool {
	if origin == "" || m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if m.exact[origin] {
		return true
	}
	scheme, host, ok := strings.Cut(origin, "://")
	if !ok {
		return false
	}
	for _, w := range m.suffixes {
		if scheme == w.scheme && strings.HasSuffix(host, w.suffix) && len(host) > len(w.suffix) {
			return true
		}
	}
	return false
}

// IsOriginAllowed reports whether origin passes the CORS allowlist
func IsOriginAllowed(origin string, allowedOrigins []string) bool {
	return newOriginMatcher(allowedOrigins).allows(origin)
}

// CORS answers preflight requests and echoes allowed origins
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	matcher := newOriginMatcher(cfg.AllowedOrigins)
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := matcher.allows(origin)

		h := c.Writer.Header()
		h.Add("Vary", "Origin")
		if origin != "" && allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", "600")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

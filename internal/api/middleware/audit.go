package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/logging"
)

// Audit writes an api.request activity for every request that may change
// state. Reads are not audited.
func Audit(activity *logging.ActivityLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if activity == nil || isReadOnly(c.Request.Method) {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		metadata := map[string]interface{}{
			"status":     status,
			"ip_address": c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
			"resource":   resourceOf(route),
		}
		if id := c.GetString("request_id"); id != "" {
			metadata["request_id"] = id
		}
		for _, p := range c.Params {
			metadata[p.Key] = p.Value
		}

		entry := &logging.Activity{
			Actor:        c.GetString(UsernameKey),
			ActivityType: logging.ActivityAPIRequest,
			Description:  c.Request.Method + " " + route,
			Metadata:     metadata,
			Success:      status < http.StatusBadRequest,
		}
		if !entry.Success {
			entry.ErrorMessage = http.StatusText(status)
		}
		activity.LogActivity(entry)
	}
}

func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// resourceOf maps /api/v1/<resource>/... to <resource>
func resourceOf(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) >= 3 && segments[0] == "api" {
		return segments[2]
	}
	return segments[0]
}

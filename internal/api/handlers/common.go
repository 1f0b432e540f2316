package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/api/middleware"
	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/server"
)

// Supervisor is the process control surface the API drives
type Supervisor interface {
	console.Controller
	Stop(timeout time.Duration) error
	Restart(timeout time.Duration) error
}

// respondError maps supervisor and console errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, console.ErrInvalidCommand):
		status = http.StatusBadRequest
	case errors.Is(err, server.ErrAlreadyRunning), errors.Is(err, server.ErrNotRunning),
		errors.Is(err, backup.ErrBusy), errors.Is(err, backup.ErrServerRunning):
		status = http.StatusConflict
	case errors.Is(err, backup.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, backup.ErrNothingToBackup):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, server.ErrExecutableNotFound):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, server.ErrPipeBroken):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context, fallback, max int) int {
	limit := fallback
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// querySince parses ?since= as RFC3339 or as a duration back from now
func querySince(c *gin.Context, fallback time.Duration) (time.Time, error) {
	raw := c.Query("since")
	if raw == "" {
		return time.Now().Add(-fallback), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func actor(c *gin.Context) string {
	if username := c.GetString(middleware.UsernameKey); username != "" {
		return username
	}
	return "api"
}

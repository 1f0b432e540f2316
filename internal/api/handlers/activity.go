package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/logging"
)

// ActivityHandler serves the activity log
type ActivityHandler struct {
	activity *logging.ActivityLogger
}

// NewActivityHandler creates an activity handler
func NewActivityHandler(activity *logging.ActivityLogger) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

// ListActivities returns activities, newest first
// GET /api/v1/activity?type=server.crash&actor=admin&since=24h&limit=100
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	var since time.Time
	if c.Query("since") != "" {
		parsed, err := querySince(c, 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC3339 time"})
			return
		}
		since = parsed
	}

	activities, err := h.activity.Query(logging.ActivityFilter{
		Type:  c.Query("type"),
		Actor: c.Query("actor"),
		Since: since,
		Limit: queryLimit(c, 100, 1000),
	})
	if err != nil {
		log.Printf("[API] Failed to get activities: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activities"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"activities": activities,
		"count":      len(activities),
	})
}

// GetStats counts activities per type
// GET /api/v1/activity/stats?since=168h
func (h *ActivityHandler) GetStats(c *gin.Context) {
	since, err := querySince(c, 7*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC3339 time"})
		return
	}

	stats, err := h.activity.Stats(since)
	if err != nil {
		log.Printf("[API] Failed to get activity stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get activity stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": stats,
		"since": since,
	})
}

package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/metrics"
)

// MetricsHandler serves recorded resource samples and host statistics
type MetricsHandler struct {
	recorder *metrics.Recorder
	diskPath string
}

// NewMetricsHandler creates a metrics handler. diskPath selects the
// filesystem reported by the host endpoint.
func NewMetricsHandler(recorder *metrics.Recorder, diskPath string) *MetricsHandler {
	return &MetricsHandler{recorder: recorder, diskPath: diskPath}
}

// GetMetrics returns samples in chronological order
// GET /api/v1/metrics?since=1h&limit=500
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	since, err := querySince(c, time.Hour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC3339 time"})
		return
	}

	points, err := h.recorder.Range(since, queryLimit(c, 1000, 10000))
	if err != nil {
		log.Printf("[Metrics] Failed to query metrics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": points,
		"count":   len(points),
		"since":   since,
	})
}

// GetLatestMetrics returns the newest sample
// GET /api/v1/metrics/latest
func (h *MetricsHandler) GetLatestMetrics(c *gin.Context) {
	point, err := h.recorder.Latest()
	if err != nil {
		log.Printf("[Metrics] Failed to query latest metrics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get metrics"})
		return
	}
	if point == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No metrics recorded"})
		return
	}

	c.JSON(http.StatusOK, point)
}

// GetSummary aggregates samples over a window
// GET /api/v1/metrics/summary?since=24h
func (h *MetricsHandler) GetSummary(c *gin.Context) {
	since, err := querySince(c, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a duration or RFC3339 time"})
		return
	}

	summary, err := h.recorder.Summarize(since)
	if err != nil {
		log.Printf("[Metrics] Failed to summarize metrics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
		"since":   since,
	})
}

// GetHost returns memory, load and disk usage of the host
// GET /api/v1/metrics/host
func (h *MetricsHandler) GetHost(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	snapshot, err := metrics.Host(ctx, h.diskPath)
	if err != nil {
		log.Printf("[Metrics] Failed to read host statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read host statistics"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

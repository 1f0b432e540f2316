package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/scheduler"
)

// ScheduleHandler manages schedules.yaml and the running scheduler
type ScheduleHandler struct {
	schedules *config.ScheduleManager
	scheduler *scheduler.Scheduler
}

// NewScheduleHandler creates a schedule handler
func NewScheduleHandler(schedules *config.ScheduleManager, sched *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, scheduler: sched}
}

// ListSchedules returns all schedules with their next run times
// GET /api/v1/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schedules": h.schedules.GetAll(),
		"upcoming":  h.scheduler.Upcoming(),
	})
}

// GetSchedule returns one schedule
// GET /api/v1/schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	schedule, found := h.schedules.GetByID(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// CreateSchedule adds a schedule
// POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var schedule config.ScheduleDefinition
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.schedules.Add(schedule)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.persist(c) {
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateSchedule replaces a schedule
// PUT /api/v1/schedules/:id
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	id := c.Param("id")
	if _, found := h.schedules.GetByID(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}

	var schedule config.ScheduleDefinition
	if err := c.ShouldBindJSON(&schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule.ID = id

	if err := h.schedules.Update(schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.persist(c) {
		return
	}

	updated, _ := h.schedules.GetByID(id)
	c.JSON(http.StatusOK, updated)
}

// DeleteSchedule removes a schedule
// DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.schedules.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}
	if !h.persist(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted"})
}

// RunSchedule executes a schedule immediately
// POST /api/v1/schedules/:id/run
func (h *ScheduleHandler) RunSchedule(c *gin.Context) {
	id := c.Param("id")
	if _, found := h.schedules.GetByID(id); !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
		return
	}

	// restart warnings can take minutes
	go func() {
		if err := h.scheduler.RunNow(id); err != nil {
			log.Printf("[API] Manual run of schedule %s failed: %v", id, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Schedule run initiated"})
}

// ReloadSchedules rereads schedules.yaml from disk
// POST /api/v1/schedules/reload
func (h *ScheduleHandler) ReloadSchedules(c *gin.Context) {
	if err := h.schedules.Load(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.scheduler.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules": h.schedules.GetAll(),
		"upcoming":  h.scheduler.Upcoming(),
	})
}

func (h *ScheduleHandler) persist(c *gin.Context) bool {
	if err := h.schedules.Save(); err != nil {
		log.Printf("[API] Failed to save schedules: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save schedules"})
		return false
	}
	if err := h.scheduler.Reload(); err != nil {
		log.Printf("[API] Failed to reload scheduler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload scheduler"})
		return false
	}
	return true
}

package handlers

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/server"
)

// BackupHandler handles world backup requests
type BackupHandler struct {
	manager    *backup.Manager
	supervisor Supervisor

	pendingOps sync.WaitGroup
}

// NewBackupHandler creates a backup handler
func NewBackupHandler(manager *backup.Manager, supervisor Supervisor) *BackupHandler {
	return &BackupHandler{manager: manager, supervisor: supervisor}
}

// WaitForCompletion blocks until background backups and restores finish
func (h *BackupHandler) WaitForCompletion() {
	h.pendingOps.Wait()
}

// ListBackups returns recorded backups, newest first
// GET /api/v1/backups?limit=50
func (h *BackupHandler) ListBackups(c *gin.Context) {
	records, err := h.manager.List(queryLimit(c, 50, 500))
	if err != nil {
		log.Printf("[API] Failed to list backups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"backups": records,
		"count":   len(records),
		"running": h.manager.Busy(),
	})
}

// GetBackup returns one backup record
// GET /api/v1/backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	record, err := h.manager.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// CreateBackup starts a backup in the background
// POST /api/v1/backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	if h.manager.Busy() {
		respondError(c, backup.ErrBusy)
		return
	}

	username := actor(c)
	h.pendingOps.Add(1)
	go func() {
		defer h.pendingOps.Done()
		record, err := h.manager.Create(context.Background(), username)
		if err != nil {
			log.Printf("[API] Backup by %s failed: %v", username, err)
			return
		}
		log.Printf("[API] Backup %s by %s completed", record.ID, username)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Backup started"})
}

// RestoreBackup restores a backup in the background. The server must be
// stopped.
// POST /api/v1/backups/:id/restore
func (h *BackupHandler) RestoreBackup(c *gin.Context) {
	id := c.Param("id")

	if h.supervisor.Status().State != server.StateStopped {
		respondError(c, backup.ErrServerRunning)
		return
	}
	record, err := h.manager.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if record.Status != backup.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Only completed backups can be restored", "status": record.Status})
		return
	}
	if h.manager.Busy() {
		respondError(c, backup.ErrBusy)
		return
	}

	username := actor(c)
	h.pendingOps.Add(1)
	go func() {
		defer h.pendingOps.Done()
		if err := h.manager.Restore(context.Background(), id, username); err != nil {
			log.Printf("[API] Restore of %s by %s failed: %v", id, username, err)
			return
		}
		log.Printf("[API] Restore of %s by %s completed", id, username)
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Restore started", "backup_id": id})
}

// DeleteBackup removes a backup from its destination
// DELETE /api/v1/backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.manager.Delete(c.Param("id"), actor(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup deleted"})
}

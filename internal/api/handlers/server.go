package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/server"
)

const maxStopTimeout = 10 * time.Minute

// StopRequest optionally overrides the graceful shutdown timeout
type StopRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// CommandRequest is the body of POST /server/command
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ServerHandler handles lifecycle, command and player requests for the
// supervised game server
type ServerHandler struct {
	supervisor  Supervisor
	session     *console.Session
	activity    *logging.ActivityLogger
	launch      server.LaunchSpec
	stopTimeout time.Duration

	pendingOps sync.WaitGroup
}

// NewServerHandler creates a new server handler. launch is used by start
// requests and stopTimeout by stop and restart requests without a body.
func NewServerHandler(
	supervisor Supervisor,
	session *console.Session,
	activity *logging.ActivityLogger,
	launch server.LaunchSpec,
	stopTimeout time.Duration,
) *ServerHandler {
	return &ServerHandler{
		supervisor:  supervisor,
		session:     session,
		activity:    activity,
		launch:      launch,
		stopTimeout: stopTimeout,
	}
}

// WaitForCompletion blocks until background stop and restart requests finish
func (h *ServerHandler) WaitForCompletion() {
	h.pendingOps.Wait()
}

// GetStatus returns the live supervisor status with the persisted record
// GET /api/v1/server/status
func (h *ServerHandler) GetStatus(c *gin.Context) {
	response := gin.H{
		"status":        h.supervisor.Status(),
		"viewers":       h.session.GetActiveViewers(),
		"last_activity": h.session.LastActivity(),
		"auto_restart":  h.session.AutoRestart(),
	}

	if store := h.session.StatusStore(); store != nil {
		record, err := store.Get()
		if err != nil {
			log.Printf("[API] Failed to load persisted status: %v", err)
		} else if record != nil {
			response["persisted"] = record
		}
	}

	c.JSON(http.StatusOK, response)
}

// StartServer spawns the game server with the configured launch spec
// POST /api/v1/server/start
func (h *ServerHandler) StartServer(c *gin.Context) {
	username := actor(c)

	err := h.supervisor.Start(h.launch)
	if h.activity != nil {
		h.activity.LogServerStart(username, err)
	}
	if err != nil {
		log.Printf("[API] Failed to start server: %v", err)
		respondError(c, err)
		return
	}

	log.Printf("[API] Server started by %s", username)
	c.JSON(http.StatusAccepted, gin.H{"message": "Server start initiated", "status": h.supervisor.Status()})
}

// StopServer stops the game server in the background
// POST /api/v1/server/stop
func (h *ServerHandler) StopServer(c *gin.Context) {
	h.runStop(c, "stop", h.supervisor.Stop, func(username string, timeout time.Duration, err error) {
		if h.activity != nil {
			h.activity.LogServerStop(username, timeout, err)
		}
	})
}

// RestartServer stops the game server and starts it again in the background
// POST /api/v1/server/restart
func (h *ServerHandler) RestartServer(c *gin.Context) {
	h.runStop(c, "restart", h.supervisor.Restart, func(username string, timeout time.Duration, err error) {
		if h.activity != nil {
			h.activity.LogServerRestart(username, timeout, err)
		}
	})
}

func (h *ServerHandler) runStop(c *gin.Context, op string, fn func(time.Duration) error, record func(string, time.Duration, error)) {
	username := actor(c)

	timeout, err := h.requestTimeout(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if state := h.supervisor.Status().State; state != server.StateRunning {
		err := &server.StopError{Reason: server.ErrNotRunning, Err: fmt.Errorf("server is %s", state)}
		record(username, timeout, err)
		respondError(c, err)
		return
	}

	h.pendingOps.Add(1)
	go func() {
		defer h.pendingOps.Done()
		err := fn(timeout)
		record(username, timeout, err)
		if err != nil {
			log.Printf("[API] Server %s failed: %v", op, err)
			return
		}
		log.Printf("[API] Server %s by %s completed", op, username)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":         fmt.Sprintf("Server %s initiated", op),
		"timeout_seconds": timeout.Seconds(),
	})
}

func (h *ServerHandler) requestTimeout(c *gin.Context) (time.Duration, error) {
	timeout := h.stopTimeout

	var req StopRequest
	if c.Request != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}
	if req.TimeoutSeconds < 0 {
		return 0, fmt.Errorf("timeout_seconds must not be negative")
	}
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if timeout > maxStopTimeout {
		timeout = maxStopTimeout
	}
	return timeout, nil
}

// ExecuteCommand sends one console command
// POST /api/v1/server/command
func (h *ServerHandler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	command, err := h.session.ExecuteCommand(actor(c), req.Command)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"command": command, "success": true})
}

// GetJavaInstallations lists java binaries found on this host alongside
// the configured launch command
// GET /api/v1/server/java
func (h *ServerHandler) GetJavaInstallations(c *gin.Context) {
	found := server.DiscoverJava()
	if found == nil {
		found = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"configured":    h.launch.Executable,
		"installations": found,
	})
}

// GetPlayers returns the online roster
// GET /api/v1/server/players
func (h *ServerHandler) GetPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.PlayerSummary())
}

// PlayerAction runs a moderation command against a player
// POST /api/v1/server/players/:name/:action
func (h *ServerHandler) PlayerAction(c *gin.Context) {
	command, err := h.session.PlayerAction(actor(c), c.Param("action"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"command": command, "success": true})
}

// GetPlayerSessions returns recorded join and leave history
// GET /api/v1/server/players/sessions?player=Steve&limit=50
func (h *ServerHandler) GetPlayerSessions(c *gin.Context) {
	store := h.session.PlayerSessions()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Player history is not available"})
		return
	}

	sessions, err := store.Recent(c.Query("player"), queryLimit(c, 100, 1000))
	if err != nil {
		log.Printf("[API] Failed to get player sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get player sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/craft-server-manager/internal/api/middleware"
	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/console"
	ws "github.com/yourusername/craft-server-manager/internal/websocket"
)

// ConsoleHandler serves console output, command history and the live
// console websocket
type ConsoleHandler struct {
	session        *console.Session
	hub            *ws.Hub
	allowedOrigins []string
}

func NewConsoleHandler(session *console.Session, hub *ws.Hub, allowedOrigins []string) *ConsoleHandler {
	return &ConsoleHandler{
		session:        session,
		hub:            hub,
		allowedOrigins: allowedOrigins,
	}
}

// HandleConsoleWebSocket streams console events to a viewer and accepts
// commands from users allowed to send them
// WS /api/v1/ws/console
func (h *ConsoleHandler) HandleConsoleWebSocket(c *gin.Context) {
	username := c.GetString(middleware.UsernameKey)
	role := c.GetString(middleware.RoleKey)

	upgrader := websocket.Upgrader{CheckOrigin: originChecker(h.allowedOrigins)}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		log.Printf("[Console] Failed to upgrade WebSocket: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	onMessage := func(client *ws.Client, msg *ws.InboundMessage) {
		if msg.Type == "command" && !auth.HasPermission(role, auth.PermConsoleCommand) {
			client.SendMessage("error", map[string]string{"error": "No permission to execute commands"})
			return
		}
		h.session.HandleMessage(client, msg)
	}

	client := ws.NewClient(h.hub, conn, h.session.Room(), username, onMessage)
	if !h.hub.Join(client) {
		conn.Close()
		return
	}

	h.session.Greet(client)
	client.SendMessage("session_info", map[string]interface{}{
		"client_id":      client.ID,
		"active_viewers": h.session.GetActiveViewers(),
		"can_execute":    auth.HasPermission(role, auth.PermConsoleCommand),
	})

	go client.WritePump()
	go client.ReadPump()
}

// GetOutput returns buffered console output, optionally filtered
// GET /api/v1/console/output?lines=200&filter=search&pattern=Steve
func (h *ConsoleHandler) GetOutput(c *gin.Context) {
	lines, _ := strconv.Atoi(c.Query("lines"))
	lines = max(lines, 0)

	filter, err := console.NewOutputFilter(c.Query("filter"), c.Query("pattern"), c.Query("case_sensitive") == "true")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output := filter.FilterLines(h.session.GetHistoricalOutput(lines))
	c.JSON(http.StatusOK, gin.H{
		"lines":  output,
		"count":  len(output),
		"filter": filter.FilterType,
	})
}

// historyOr503 returns the command history store or answers 503
func (h *ConsoleHandler) historyOr503(c *gin.Context) *console.CommandHistory {
	history := h.session.History()
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Command history is not available"})
	}
	return history
}

func respondCommands(c *gin.Context, commands []console.CommandRecord, err error, extra gin.H) {
	if err != nil {
		log.Printf("[Console] Failed to read command history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read command history"})
		return
	}
	body := gin.H{"commands": commands, "count": len(commands)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// GetCommandHistory lists recent commands, optionally for one actor
// GET /api/v1/console/history?actor=admin&limit=50
func (h *ConsoleHandler) GetCommandHistory(c *gin.Context) {
	history := h.historyOr503(c)
	if history == nil {
		return
	}

	limit := queryLimit(c, 50, 500)
	if name := c.Query("actor"); name != "" {
		commands, err := history.GetActorCommands(name, limit)
		respondCommands(c, commands, err, gin.H{"actor": name})
		return
	}
	commands, err := history.GetRecentCommands(limit)
	respondCommands(c, commands, err, nil)
}

// SearchCommandHistory finds commands containing q
// GET /api/v1/console/history/search?q=whitelist
func (h *ConsoleHandler) SearchCommandHistory(c *gin.Context) {
	history := h.historyOr503(c)
	if history == nil {
		return
	}

	q := c.Query("q")
	commands, err := history.SearchCommands(q, queryLimit(c, 50, 500))
	respondCommands(c, commands, err, gin.H{"query": q})
}

// GetAutocomplete suggests previously used commands starting with prefix.
// Without history there are simply no suggestions.
// GET /api/v1/console/autocomplete?prefix=say
func (h *ConsoleHandler) GetAutocomplete(c *gin.Context) {
	suggestions := []string{}
	if history := h.session.History(); history != nil {
		found, err := history.GetAutocomplete(c.Query("prefix"), 10)
		if err != nil {
			log.Printf("[Console] Failed to load suggestions: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load suggestions"})
			return
		}
		suggestions = found
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func originChecker(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return middleware.IsOriginAllowed(r.Header.Get("Origin"), allowedOrigins)
	}
}

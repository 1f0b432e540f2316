package console

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/metrics"
	"github.com/yourusername/craft-server-manager/internal/protocol"
	"github.com/yourusername/craft-server-manager/internal/server"
	"github.com/yourusername/craft-server-manager/internal/websocket"
)

// DefaultRoom is the websocket room console viewers join
const DefaultRoom = "console"

const maxCommandBytes = 512

// ErrInvalidCommand is returned for commands rejected before they reach the server
var ErrInvalidCommand = errors.New("invalid command")

// Controller is the supervisor surface a Session drives
type Controller interface {
	Events() <-chan server.Event
	Start(spec server.LaunchSpec) error
	SendCommand(text string) error
	Status() server.Status
}

// Broadcaster delivers messages to websocket viewers
type Broadcaster interface {
	BroadcastToRoom(room string, message *websocket.Message)
	GetRoomSize(room string) int
}

// Options configures a Session. Metrics, Activity, Restart and Output are optional.
type Options struct {
	Room        string
	BufferLines int
	Restart     *RestartPolicy
	Metrics     *metrics.Recorder
	Activity    *logging.ActivityLogger
	// Output receives every forwarded console line, used by headless mode
	Output io.Writer
	// OnExit is called after every process exit. restarting reports
	// whether an automatic restart was scheduled.
	OnExit func(exit server.ProcessExited, restarting bool)
}

// PlayerSummary is the last known roster with the capacity from the
// latest list report
type PlayerSummary struct {
	Players []string `json:"players"`
	Online  int      `json:"online"`
	Max     int      `json:"max,omitempty"`
}

// Session fans supervisor events out to viewers and storage
type Session struct {
	ctrl     Controller
	hub      Broadcaster
	room     string
	Buffer   *RingBuffer
	history  *CommandHistory
	status   *StatusStore
	sessions *PlayerSessions
	metrics  *metrics.Recorder
	activity *logging.ActivityLogger
	restart  *RestartPolicy
	output   io.Writer
	onExit   func(server.ProcessExited, bool)

	mu           sync.RWMutex
	players      []string
	maxPlayers   int
	lastActivity time.Time
}

// RingBuffer implements a circular buffer for console output
type RingBuffer struct {
	lines    []string
	maxLines int
	current  int
	full     bool
	mu       sync.RWMutex
}

// NewRingBuffer creates a new ring buffer
func NewRingBuffer(maxLines int) *RingBuffer {
	if maxLines <= 0 {
		maxLines = 1000
	}
	return &RingBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
	}
}

// Add adds a line to the buffer
func (rb *RingBuffer) Add(line string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.lines[rb.current] = line
	rb.current = (rb.current + 1) % rb.maxLines

	if rb.current == 0 {
		rb.full = true
	}
}

// GetLines returns all lines in order (oldest to newest)
func (rb *RingBuffer) GetLines() []string {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if !rb.full {
		result := make([]string, rb.current)
		copy(result, rb.lines[:rb.current])
		return result
	}

	result := make([]string, rb.maxLines)
	for i := 0; i < rb.maxLines; i++ {
		result[i] = rb.lines[(rb.current+i)%rb.maxLines]
	}
	return result
}

// GetLast returns the last N lines
func (rb *RingBuffer) GetLast(n int) []string {
	lines := rb.GetLines()
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// NewSession creates a console session. db may be nil, in which case
// nothing is persisted.
func NewSession(ctrl Controller, hub Broadcaster, db *sql.DB, opts Options) *Session {
	room := opts.Room
	if room == "" {
		room = DefaultRoom
	}

	s := &Session{
		ctrl:     ctrl,
		hub:      hub,
		room:     room,
		Buffer:   NewRingBuffer(opts.BufferLines),
		metrics:  opts.Metrics,
		activity: opts.Activity,
		restart:  opts.Restart,
		output:   opts.Output,
		onExit:   opts.OnExit,
		players:  []string{},
	}
	if db != nil {
		s.history = NewCommandHistory(db)
		s.status = NewStatusStore(db)
		s.sessions = NewPlayerSessions(db)
	}
	return s
}

// Room returns the websocket room of this session
func (s *Session) Room() string {
	return s.room
}

// History returns the command history store, or nil without a database
func (s *Session) History() *CommandHistory {
	return s.history
}

// StatusStore returns the persisted status store, or nil without a database
func (s *Session) StatusStore() *StatusStore {
	return s.status
}

// PlayerSessions returns the player session store, or nil without a database
func (s *Session) PlayerSessions() *PlayerSessions {
	return s.sessions
}

// Run consumes supervisor events until ctx is done
func (s *Session) Run(ctx context.Context) {
	log.Printf("[Console] Session started (room %s)", s.room)
	events := s.ctrl.Events()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Console] Session stopped")
			return
		case ev := <-events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev server.Event) {
	switch ev.Kind {
	case server.EventOutput:
		s.handleOutput(ev)
	case server.EventSample:
		s.handleSample(ev)
	case server.EventState:
		s.handleState(ev)
	case server.EventExited:
		s.handleExit(ctx, ev)
	}
}

func (s *Session) handleOutput(ev server.Event) {
	out := ev.Output
	if out == nil {
		return
	}

	if out.Forwarded() {
		line := sanitizeConsoleLine(out.Line)
		s.Buffer.Add(line)

		s.mu.Lock()
		s.lastActivity = ev.Time
		s.mu.Unlock()

		if s.output != nil {
			fmt.Fprintln(s.output, line)
		}

		payload := map[string]interface{}{
			"line":       line,
			"kind":       out.Kind,
			"generation": ev.Generation,
		}
		if out.Player != "" {
			payload["player"] = out.Player
		}
		s.broadcast("console_output", payload, ev.Time)
	}

	if out.Kind == protocol.KindPlayerList && out.Max > 0 {
		s.mu.Lock()
		s.maxPlayers = out.Max
		s.mu.Unlock()
	}

	if ev.Players != nil {
		s.updatePlayers(ev.Generation, ev.Players, ev.Time)
	}
}

func (s *Session) updatePlayers(generation string, players []string, at time.Time) {
	s.mu.Lock()
	s.players = append([]string{}, players...)
	summary := PlayerSummary{Players: s.players, Online: len(s.players), Max: s.maxPlayers}
	s.mu.Unlock()

	s.broadcast("players", summary, at)

	if s.sessions != nil && generation != "" {
		if err := s.sessions.Reconcile(generation, players, at); err != nil {
			log.Printf("[Console] Failed to update player sessions: %v", err)
		}
	}
}

func (s *Session) handleSample(ev server.Event) {
	if ev.Sample == nil {
		return
	}

	if s.metrics != nil {
		if err := s.metrics.Record(*ev.Sample, s.PlayerSummary().Online); err != nil {
			log.Printf("[Console] Failed to record sample: %v", err)
		}
	}

	s.broadcast("resource_sample", ev.Sample, ev.Time)
}

func (s *Session) handleState(ev server.Event) {
	pid := 0
	if ev.State == server.StateRunning || ev.State == server.StateStopping {
		pid = s.ctrl.Status().PID
	}

	log.Printf("[Console] Server is %s", ev.State)
	s.broadcast("server_state", map[string]interface{}{
		"state":      ev.State,
		"generation": ev.Generation,
		"pid":        pid,
		"players":    ev.Players,
	}, ev.Time)

	if s.status != nil {
		if err := s.status.RecordState(ev.State, ev.Generation, pid, ev.Time); err != nil {
			log.Printf("[Console] Failed to persist state: %v", err)
		}
	}

	if ev.State == server.StateStopped {
		s.mu.Lock()
		s.players = []string{}
		s.mu.Unlock()
		if s.sessions != nil {
			if err := s.sessions.CloseAll(ev.Time); err != nil {
				log.Printf("[Console] Failed to close player sessions: %v", err)
			}
		}
	}
}

func (s *Session) handleExit(ctx context.Context, ev server.Event) {
	exit := ev.Exit
	if exit == nil {
		return
	}

	s.broadcast("server_exited", exit, ev.Time)

	if s.status != nil {
		if err := s.status.RecordExit(*exit); err != nil {
			log.Printf("[Console] Failed to persist exit: %v", err)
		}
	}

	restarting := false
	if !exit.Expected {
		log.Printf("[Console] Server crashed (pid %d, exit code %d)", exit.PID, exit.ExitCode)
		if s.activity != nil {
			s.activity.LogServerCrash(exit.PID, exit.ExitCode)
		}
		restarting = s.scheduleRestart(ctx)
	}

	if s.onExit != nil {
		s.onExit(*exit, restarting)
	}
}

// scheduleRestart starts the server again after the policy's back-off.
// It reports whether a restart was scheduled.
func (s *Session) scheduleRestart(ctx context.Context) bool {
	if s.restart == nil || !s.restart.Enabled {
		return false
	}

	delay, ok := s.restart.Next(time.Now())
	if !ok {
		log.Printf("[Console] Restart limit reached (%d in %v), leaving server stopped",
			s.restart.MaxRestarts, s.restart.Window)
		if s.activity != nil {
			s.activity.LogActivity(&logging.Activity{
				Actor:        "auto-restart",
				ActivityType: logging.ActivityError,
				Description:  "Crash restart limit reached",
				Success:      false,
				ErrorMessage: fmt.Sprintf("%d restarts within %v", s.restart.MaxRestarts, s.restart.Window),
			})
		}
		return false
	}

	spec := s.ctrl.Status().Launch
	log.Printf("[Console] Restarting server in %v", delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := s.ctrl.Start(spec)
		if errors.Is(err, server.ErrAlreadyRunning) {
			log.Printf("[Console] Server already started, skipping automatic restart")
			return
		}
		if err != nil {
			log.Printf("[Console] Automatic restart failed: %v", err)
		}
		if s.activity != nil {
			s.activity.LogServerStart("auto-restart", err)
		}
	}()
	return true
}

func (s *Session) broadcast(msgType string, payload interface{}, at time.Time) {
	if s.hub == nil {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	s.hub.BroadcastToRoom(s.room, &websocket.Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: at,
	})
}

// ExecuteCommand validates a console command and sends it to the server.
// It returns the command as sent.
func (s *Session) ExecuteCommand(actor, command string) (string, error) {
	clean, err := sanitizeConsoleCommand(strings.TrimSpace(command))
	if err != nil {
		return "", err
	}

	sendErr := s.ctrl.SendCommand(clean)

	if s.history != nil {
		if err := s.history.Save(actor, clean, sendErr); err != nil {
			log.Printf("[Console] %v", err)
		}
	}
	if s.activity != nil {
		s.activity.LogCommandExecute(actor, clean, sendErr)
	}
	if sendErr != nil {
		return clean, sendErr
	}

	s.broadcast("command_executed", map[string]interface{}{
		"command":  clean,
		"username": actor,
	}, time.Now())

	log.Printf("[Console] Command executed by %s: %s", actor, clean)
	return clean, nil
}

// HandleMessage handles messages sent by websocket viewers
func (s *Session) HandleMessage(client *websocket.Client, msg *websocket.InboundMessage) {
	switch msg.Type {
	case "command":
		var payload struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			client.SendMessage("error", map[string]string{"error": "invalid command payload"})
			return
		}

		clean, err := s.ExecuteCommand(client.Username, payload.Command)
		result := map[string]interface{}{"command": clean, "success": err == nil}
		if err != nil {
			result["error"] = err.Error()
		}
		client.SendMessage("command_result", result)

	case "history":
		var payload struct {
			Lines int `json:"lines"`
		}
		json.Unmarshal(msg.Payload, &payload)
		client.SendMessage("console_history", map[string]interface{}{
			"lines": s.GetHistoricalOutput(payload.Lines),
		})

	default:
		client.SendMessage("error", map[string]string{"error": fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// Greet sends a new viewer the buffered output and current state
func (s *Session) Greet(client *websocket.Client) {
	status := s.ctrl.Status()
	client.SendMessage("console_history", map[string]interface{}{
		"lines": s.GetHistoricalOutput(0),
	})
	client.SendMessage("server_state", map[string]interface{}{
		"state":      status.State,
		"generation": status.Generation,
		"pid":        status.PID,
		"players":    status.Players,
	})
	client.SendMessage("players", s.PlayerSummary())
}

// GetHistoricalOutput returns buffered output for new clients
func (s *Session) GetHistoricalOutput(lines int) []string {
	if lines <= 0 {
		lines = 100
	}
	return s.Buffer.GetLast(lines)
}

// PlayerSummary returns the last roster seen on the event stream
func (s *Session) PlayerSummary() PlayerSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := append([]string{}, s.players...)
	return PlayerSummary{Players: players, Online: len(players), Max: s.maxPlayers}
}

// LastActivity returns when the last console line arrived
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// RestartInfo describes automatic crash restarts
type RestartInfo struct {
	Enabled     bool   `json:"enabled"`
	Attempts    int    `json:"attempts"`
	MaxRestarts int    `json:"max_restarts"`
	Window      string `json:"window"`
}

// AutoRestart reports the restart policy and the attempts in its window
func (s *Session) AutoRestart() RestartInfo {
	if s.restart == nil {
		return RestartInfo{}
	}
	return RestartInfo{
		Enabled:     s.restart.Enabled,
		Attempts:    s.restart.Attempts(time.Now()),
		MaxRestarts: s.restart.MaxRestarts,
		Window:      s.restart.Window.String(),
	}
}

// GetActiveViewers returns the number of active viewers
func (s *Session) GetActiveViewers() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.GetRoomSize(s.room)
}

func sanitizeConsoleLine(line string) string {
	if line == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 32 || r == 0x7f {
			return -1
		}
		return r
	}, protocol.StripANSI(line))
}

// sanitizeConsoleCommand rejects input that would break the one line per
// command framing of the server console
func sanitizeConsoleCommand(command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("%w: command is empty", ErrInvalidCommand)
	}
	if len(command) > maxCommandBytes {
		return "", fmt.Errorf("%w: command is too long", ErrInvalidCommand)
	}
	if strings.ContainsAny(command, "\n\r") {
		return "", fmt.Errorf("%w: command contains line breaks", ErrInvalidCommand)
	}
	for _, r := range command {
		if r == 0x1b {
			return "", fmt.Errorf("%w: command contains escape sequences", ErrInvalidCommand)
		}
		if r < 32 || r == 0x7f {
			return "", fmt.Errorf("%w: command contains control characters", ErrInvalidCommand)
		}
	}
	return command, nil
}

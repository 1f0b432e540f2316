package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/craft-server-manager/internal/auth"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/console"
	"github.com/yourusername/craft-server-manager/internal/database"
	"github.com/yourusername/craft-server-manager/internal/scheduler"
	"github.com/yourusername/craft-server-manager/internal/server"
	ws "github.com/yourusername/craft-server-manager/internal/websocket"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	status   server.Status
	events   chan server.Event
	startErr error
	stopErr  error
	sendErr  error
	starts   []server.LaunchSpec
	stops    []time.Duration
	restarts []time.Duration
	commands []string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		status: server.Status{State: server.StateStopped},
		events: make(chan server.Event, 16),
	}
}

func (f *fakeSupervisor) Events() <-chan server.Event { return f.events }

func (f *fakeSupervisor) Start(spec server.LaunchSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, spec)
	f.status.State = server.StateRunning
	f.status.PID = 4242
	f.status.Launch = spec
	return nil
}

func (f *fakeSupervisor) Stop(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, timeout)
	if f.stopErr != nil {
		return f.stopErr
	}
	f.status.State = server.StateStopped
	return nil
}

func (f *fakeSupervisor) Restart(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, timeout)
	return nil
}

func (f *fakeSupervisor) SendCommand(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.commands = append(f.commands, text)
	return nil
}

func (f *fakeSupervisor) Status() server.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSupervisor) State() server.State {
	return f.Status().State
}

func (f *fakeSupervisor) setState(state server.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.State = state
}

type testEnv struct {
	supervisor *fakeSupervisor
	session    *console.Session
	hub        *ws.Hub
	servers    *ServerHandler
	consoles   *ConsoleHandler
	schedules  *ScheduleHandler
	launch     server.LaunchSpec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	supervisor := newFakeSupervisor()
	session := console.NewSession(supervisor, hub, db.DB, console.Options{})

	sm, err := config.NewScheduleManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewScheduleManager: %v", err)
	}
	sched := scheduler.New(supervisor, sm, nil, time.Second)
	t.Cleanup(sched.Stop)

	launch := server.NewJavaLaunchSpec("/usr/bin/java", []string{"-Xmx1G"}, "server.jar", []string{"nogui"}, t.TempDir())
	return &testEnv{
		supervisor: supervisor,
		session:    session,
		hub:        hub,
		servers:    NewServerHandler(supervisor, session, nil, launch, 30*time.Second),
		consoles:   NewConsoleHandler(session, hub, nil),
		schedules:  NewScheduleHandler(sm, sched),
		launch:     launch,
	}
}

// router wires the handlers behind a stand-in for the auth middleware
func (e *testEnv) router(role string) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("username", "tester")
		c.Set("role", role)
		c.Next()
	})

	router.GET("/server/status", e.servers.GetStatus)
	router.POST("/server/start", e.servers.StartServer)
	router.POST("/server/stop", e.servers.StopServer)
	router.POST("/server/restart", e.servers.RestartServer)
	router.POST("/server/command", e.servers.ExecuteCommand)
	router.GET("/server/players", e.servers.GetPlayers)
	router.GET("/server/java", e.servers.GetJavaInstallations)
	router.GET("/server/players/sessions", e.servers.GetPlayerSessions)
	router.POST("/server/players/:name/:action", e.servers.PlayerAction)

	router.GET("/console/output", e.consoles.GetOutput)
	router.GET("/console/history", e.consoles.GetCommandHistory)
	router.GET("/console/history/search", e.consoles.SearchCommandHistory)
	router.GET("/console/autocomplete", e.consoles.GetAutocomplete)
	router.GET("/ws/console", e.consoles.HandleConsoleWebSocket)

	router.GET("/schedules", e.schedules.ListSchedules)
	router.POST("/schedules", e.schedules.CreateSchedule)
	router.GET("/schedules/:id", e.schedules.GetSchedule)
	router.PUT("/schedules/:id", e.schedules.UpdateSchedule)
	router.DELETE("/schedules/:id", e.schedules.DeleteSchedule)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
}

func TestStartServer(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)

	rec := doJSON(t, router, http.MethodPost, "/server/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.supervisor.starts) != 1 || env.supervisor.starts[0].String() != env.launch.String() {
		t.Fatalf("expected configured launch spec, got %+v", env.supervisor.starts)
	}

	env.supervisor.startErr = &server.StartError{Reason: server.ErrAlreadyRunning}
	rec = doJSON(t, router, http.MethodPost, "/server/start", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for running server, got %d", rec.Code)
	}

	env.supervisor.startErr = &server.StartError{Reason: server.ErrExecutableNotFound}
	rec = doJSON(t, router, http.MethodPost, "/server/start", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for missing executable, got %d", rec.Code)
	}
}

func TestStopServer(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)

	rec := doJSON(t, router, http.MethodPost, "/server/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while stopped, got %d", rec.Code)
	}

	env.supervisor.setState(server.StateRunning)
	rec = doJSON(t, router, http.MethodPost, "/server/stop", StopRequest{TimeoutSeconds: 5})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	env.servers.WaitForCompletion()

	if len(env.supervisor.stops) != 1 || env.supervisor.stops[0] != 5*time.Second {
		t.Fatalf("expected one stop with 5s timeout, got %v", env.supervisor.stops)
	}

	rec = doJSON(t, router, http.MethodPost, "/server/stop", StopRequest{TimeoutSeconds: -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative timeout, got %d", rec.Code)
	}
}

func TestRestartServerUsesDefaultTimeout(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)
	env.supervisor.setState(server.StateRunning)

	rec := doJSON(t, router, http.MethodPost, "/server/restart", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	env.servers.WaitForCompletion()

	if len(env.supervisor.restarts) != 1 || env.supervisor.restarts[0] != 30*time.Second {
		t.Fatalf("expected restart with 30s timeout, got %v", env.supervisor.restarts)
	}
}

func TestExecuteCommand(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleOperator)

	rec := doJSON(t, router, http.MethodPost, "/server/command", CommandRequest{Command: "  say hello  "})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.supervisor.commands) != 1 || env.supervisor.commands[0] != "say hello" {
		t.Fatalf("unexpected commands: %v", env.supervisor.commands)
	}

	rec = doJSON(t, router, http.MethodPost, "/server/command", CommandRequest{Command: "say a\nop me"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for multi-line command, got %d", rec.Code)
	}

	env.supervisor.sendErr = &server.CommandError{Reason: server.ErrPipeBroken}
	rec = doJSON(t, router, http.MethodPost, "/server/command", CommandRequest{Command: "list"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for broken pipe, got %d", rec.Code)
	}

	env.supervisor.sendErr = &server.CommandError{Reason: server.ErrNotRunning}
	rec = doJSON(t, router, http.MethodPost, "/server/command", CommandRequest{Command: "list"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while stopped, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/console/history", nil)
	var history struct {
		Commands []console.CommandRecord `json:"commands"`
		Count    int                     `json:"count"`
	}
	decode(t, rec, &history)
	// the failed sends are kept in history
	if history.Count != 3 {
		t.Fatalf("expected 3 history records, got %d", history.Count)
	}
	if history.Commands[2].Command != "say hello" || !history.Commands[2].Success {
		t.Fatalf("unexpected oldest record: %+v", history.Commands[2])
	}

	rec = doJSON(t, router, http.MethodGet, "/console/autocomplete?prefix=sa", nil)
	var suggestions struct {
		Suggestions []string `json:"suggestions"`
	}
	decode(t, rec, &suggestions)
	if len(suggestions.Suggestions) != 1 || suggestions.Suggestions[0] != "say hello" {
		t.Fatalf("unexpected suggestions: %v", suggestions.Suggestions)
	}
}

func TestPlayerAction(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)

	rec := doJSON(t, router, http.MethodPost, "/server/players/Steve/kick", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.supervisor.commands) != 1 || env.supervisor.commands[0] != "kick Steve" {
		t.Fatalf("unexpected commands: %v", env.supervisor.commands)
	}

	rec = doJSON(t, router, http.MethodPost, "/server/players/Steve/explode", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/server/players/bad;name/ban", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid name, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/server/players/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for sessions, got %d", rec.Code)
	}
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleViewer)

	rec := doJSON(t, router, http.MethodGet, "/server/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var response struct {
		Status      server.Status       `json:"status"`
		AutoRestart console.RestartInfo `json:"auto_restart"`
	}
	decode(t, rec, &response)
	if response.Status.State != server.StateStopped {
		t.Fatalf("expected stopped state, got %s", response.Status.State)
	}
	if response.AutoRestart.Enabled || response.AutoRestart.Attempts != 0 {
		t.Fatalf("expected auto restart off, got %+v", response.AutoRestart)
	}
}

func TestGetJavaInstallations(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)

	rec := doJSON(t, router, http.MethodGet, "/server/java", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var response struct {
		Configured    string    `json:"configured"`
		Installations *[]string `json:"installations"`
	}
	decode(t, rec, &response)
	if response.Configured != "/usr/bin/java" {
		t.Fatalf("unexpected configured java %q", response.Configured)
	}
	if response.Installations == nil {
		t.Fatalf("installations must be a list, got %s", rec.Body.String())
	}
}

func TestGetOutputFilters(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleViewer)

	env.session.Buffer.Add("[12:00:00 INFO]: Done (3.2s)! For help, type \"help\"")
	env.session.Buffer.Add("[12:00:05 WARN]: Can't keep up! Is the server overloaded?")
	env.session.Buffer.Add("[12:00:09 INFO]: Steve joined the game")

	rec := doJSON(t, router, http.MethodGet, "/console/output", nil)
	var all struct {
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}
	decode(t, rec, &all)
	if all.Count != 3 {
		t.Fatalf("expected 3 lines, got %d", all.Count)
	}

	rec = doJSON(t, router, http.MethodGet, "/console/output?filter=errors", nil)
	var errorsOnly struct {
		Lines []string `json:"lines"`
	}
	decode(t, rec, &errorsOnly)
	if len(errorsOnly.Lines) != 1 || !strings.Contains(errorsOnly.Lines[0], "WARN") {
		t.Fatalf("unexpected filtered lines: %v", errorsOnly.Lines)
	}

	rec = doJSON(t, router, http.MethodGet, "/console/output?filter=regex&pattern=(", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid regex, got %d", rec.Code)
	}
}

func TestScheduleCRUD(t *testing.T) {
	env := newTestEnv(t)
	router := env.router(auth.RoleAdmin)

	rec := doJSON(t, router, http.MethodPost, "/schedules", config.ScheduleDefinition{
		Name:    "Nightly save",
		Cron:    "0 3 * * *",
		Action:  config.ScheduleActionCommand,
		Command: "save-all",
		Enabled: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created config.ScheduleDefinition
	decode(t, rec, &created)
	if created.ID == "" {
		t.Fatalf("expected generated ID")
	}

	rec = doJSON(t, router, http.MethodGet, "/schedules", nil)
	var list struct {
		Schedules []config.ScheduleDefinition `json:"schedules"`
		Upcoming  []scheduler.Upcoming        `json:"upcoming"`
	}
	decode(t, rec, &list)
	if len(list.Schedules) != 1 || len(list.Upcoming) != 1 {
		t.Fatalf("expected one schedule and one upcoming run, got %+v", list)
	}

	rec = doJSON(t, router, http.MethodPost, "/schedules", config.ScheduleDefinition{
		Name: "Broken", Cron: "not a cron", Action: config.ScheduleActionCommand, Command: "list",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid cron, got %d", rec.Code)
	}

	created.Enabled = false
	rec = doJSON(t, router, http.MethodPut, "/schedules/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.schedules.scheduler.Len() != 0 {
		t.Fatalf("expected disabled schedule to be unregistered")
	}

	rec = doJSON(t, router, http.MethodDelete, "/schedules/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/schedules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed waiting for %s: %v", msgType, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			var msg struct {
				Type    string                 `json:"type"`
				Payload map[string]interface{} `json:"payload"`
			}
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				continue
			}
			if msg.Type == msgType {
				return msg.Payload
			}
		}
	}
	t.Fatalf("did not receive %s", msgType)
	return nil
}

func TestConsoleWebSocketChecksCommandPermission(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct {
		role    string
		allowed bool
	}{
		{auth.RoleViewer, false},
		{auth.RoleOperator, true},
	} {
		srv := httptest.NewServer(env.router(tc.role))
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/console"

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			srv.Close()
			t.Fatalf("%s: dial failed: %v", tc.role, err)
		}

		info := readUntil(t, conn, "session_info")
		if info["can_execute"] != tc.allowed {
			t.Fatalf("%s: expected can_execute=%v, got %v", tc.role, tc.allowed, info["can_execute"])
		}

		if err := conn.WriteJSON(map[string]interface{}{"type": "command", "payload": map[string]string{"command": "list"}}); err != nil {
			t.Fatalf("%s: write failed: %v", tc.role, err)
		}

		if tc.allowed {
			result := readUntil(t, conn, "command_result")
			if result["success"] != true {
				t.Fatalf("%s: expected successful command, got %v", tc.role, result)
			}
		} else {
			readUntil(t, conn, "error")
		}

		conn.Close()
		srv.Close()
	}

	if len(env.supervisor.commands) != 1 || env.supervisor.commands[0] != "list" {
		t.Fatalf("expected only the operator command to be sent, got %v", env.supervisor.commands)
	}
}

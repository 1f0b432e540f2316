package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/server"
)

type fakeTarget struct {
	mu        sync.Mutex
	state     server.State
	commands  []string
	restarts  []time.Duration
	sendErr   error
	onCommand func(f *fakeTarget)
}

func (f *fakeTarget) State() server.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTarget) SendCommand(text string) error {
	f.mu.Lock()
	f.commands = append(f.commands, text)
	hook := f.onCommand
	err := f.sendErr
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return err
}

func (f *fakeTarget) Restart(timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, timeout)
	return nil
}

func (f *fakeTarget) setState(state server.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func newTestScheduler(t *testing.T, target Target, defs ...config.ScheduleDefinition) *Scheduler {
	t.Helper()

	sm, err := config.NewScheduleManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewScheduleManager: %v", err)
	}
	for _, def := range defs {
		if _, err := sm.Add(def); err != nil {
			t.Fatalf("Add %s: %v", def.ID, err)
		}
	}

	s := New(target, sm, nil, 30*time.Second)
	t.Cleanup(s.Stop)
	return s
}

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()

	var waits []time.Duration
	original := sleep
	sleep = func(ctx context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return ctx.Err() == nil
	}
	t.Cleanup(func() { sleep = original })
	return &waits
}

func TestRunCommandAndBroadcast(t *testing.T) {
	target := &fakeTarget{state: server.StateRunning}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{ID: "save", Name: "Save", Cron: "@hourly", Action: config.ScheduleActionCommand, Command: "save-all", Enabled: true},
		config.ScheduleDefinition{ID: "motd", Name: "MOTD", Cron: "*/30 * * * *", Action: config.ScheduleActionBroadcast, Message: "Vote for us", Enabled: true},
	)

	if err := s.RunNow("save"); err != nil {
		t.Fatalf("RunNow save: %v", err)
	}
	if err := s.RunNow("motd"); err != nil {
		t.Fatalf("RunNow motd: %v", err)
	}

	want := []string{"save-all", "say Vote for us"}
	if len(target.commands) != len(want) {
		t.Fatalf("expected commands %v, got %v", want, target.commands)
	}
	for i := range want {
		if target.commands[i] != want[i] {
			t.Fatalf("expected command %d to be %q, got %q", i, want[i], target.commands[i])
		}
	}
}

func TestRunSkipsWhenServerNotRunning(t *testing.T) {
	target := &fakeTarget{state: server.StateStopped}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{ID: "save", Name: "Save", Cron: "@hourly", Action: config.ScheduleActionCommand, Command: "save-all", Enabled: true},
	)

	if err := s.RunNow("save"); err != nil {
		t.Fatalf("expected skipped run to succeed, got %v", err)
	}
	if len(target.commands) != 0 {
		t.Fatalf("expected no commands, got %v", target.commands)
	}
}

func TestRunCommandError(t *testing.T) {
	sendErr := errors.New("pipe closed")
	target := &fakeTarget{state: server.StateRunning, sendErr: sendErr}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{ID: "save", Name: "Save", Cron: "@hourly", Action: config.ScheduleActionCommand, Command: "save-all", Enabled: true},
	)

	if err := s.RunNow("save"); !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatalf("expected error for unknown schedule")
	}
}

func TestRestartSendsWarningsInOrder(t *testing.T) {
	waits := recordSleeps(t)
	target := &fakeTarget{state: server.StateRunning}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{
			ID: "nightly", Name: "Nightly", Cron: "0 4 * * *", Action: config.ScheduleActionRestart,
			Message: "Restart", WarnSeconds: []int{60, 300, 10}, Enabled: true,
		},
	)

	if err := s.RunNow("nightly"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	wantCommands := []string{"say Restart in 5 minutes", "say Restart in 1 minute", "say Restart in 10 seconds"}
	if len(target.commands) != len(wantCommands) {
		t.Fatalf("expected %v, got %v", wantCommands, target.commands)
	}
	for i := range wantCommands {
		if target.commands[i] != wantCommands[i] {
			t.Fatalf("expected warning %d to be %q, got %q", i, wantCommands[i], target.commands[i])
		}
	}

	wantWaits := []time.Duration{240 * time.Second, 50 * time.Second, 10 * time.Second}
	if len(*waits) != len(wantWaits) {
		t.Fatalf("expected waits %v, got %v", wantWaits, *waits)
	}
	for i := range wantWaits {
		if (*waits)[i] != wantWaits[i] {
			t.Fatalf("expected wait %d to be %v, got %v", i, wantWaits[i], (*waits)[i])
		}
	}

	if len(target.restarts) != 1 || target.restarts[0] != 30*time.Second {
		t.Fatalf("expected one restart with 30s timeout, got %v", target.restarts)
	}
}

func TestRestartAbortsWhenServerStops(t *testing.T) {
	recordSleeps(t)
	target := &fakeTarget{state: server.StateRunning}
	target.onCommand = func(f *fakeTarget) {
		f.mu.Lock()
		f.state = server.StateStopped
		f.mu.Unlock()
	}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{
			ID: "nightly", Name: "Nightly", Cron: "0 4 * * *", Action: config.ScheduleActionRestart,
			WarnSeconds: []int{120, 30}, Enabled: true,
		},
	)

	if err := s.RunNow("nightly"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if len(target.commands) != 1 || target.commands[0] != "say Server restarting in 2 minutes" {
		t.Fatalf("expected a single default warning, got %v", target.commands)
	}
	if len(target.restarts) != 0 {
		t.Fatalf("expected no restart, got %v", target.restarts)
	}
}

func TestReloadRegistersEnabledSchedules(t *testing.T) {
	target := &fakeTarget{state: server.StateRunning}
	s := newTestScheduler(t, target,
		config.ScheduleDefinition{ID: "save", Name: "Save", Cron: "@hourly", Action: config.ScheduleActionCommand, Command: "save-all", Enabled: true},
		config.ScheduleDefinition{ID: "off", Name: "Off", Cron: "@daily", Action: config.ScheduleActionBroadcast, Message: "hi", Enabled: false},
	)

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 registered schedule, got %d", s.Len())
	}

	upcoming := s.Upcoming()
	if len(upcoming) != 1 || upcoming[0].ID != "save" {
		t.Fatalf("unexpected upcoming schedules: %+v", upcoming)
	}
	if !upcoming[0].NextRun.After(time.Now()) {
		t.Fatalf("expected next run in the future, got %v", upcoming[0].NextRun)
	}

	// reloading again must not duplicate entries
	if err := s.Reload(); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 registered schedule after reload, got %d", s.Len())
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[int]string{
		1:    "1 second",
		45:   "45 seconds",
		60:   "1 minute",
		90:   "90 seconds",
		600:  "10 minutes",
		3600: "1 hour",
		7200: "2 hours",
	}
	for seconds, want := range cases {
		if got := formatSeconds(seconds); got != want {
			t.Fatalf("formatSeconds(%d) = %q, want %q", seconds, got, want)
		}
	}
}

type fakeBackups struct {
	actors []string
	err    error
}

func (f *fakeBackups) Create(ctx context.Context, actor string) (*backup.Record, error) {
	f.actors = append(f.actors, actor)
	if f.err != nil {
		return nil, f.err
	}
	return &backup.Record{ID: "backup-1", Status: backup.StatusCompleted}, nil
}

func TestBackupActionRunsWhileStopped(t *testing.T) {
	target := &fakeTarget{state: server.StateStopped}
	s := newTestScheduler(t, target, config.ScheduleDefinition{
		ID: "nightly", Name: "nightly", Cron: "0 4 * * *", Action: config.ScheduleActionBackup, Enabled: true,
	})

	if err := s.RunNow("nightly"); err == nil {
		t.Fatalf("expected an error without a backup runner")
	}

	runner := &fakeBackups{}
	s.SetBackupRunner(runner)
	if err := s.RunNow("nightly"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if len(runner.actors) != 1 || runner.actors[0] != "schedule:nightly" {
		t.Fatalf("unexpected backup calls: %v", runner.actors)
	}
	if len(target.commands) != 0 {
		t.Fatalf("backup action should not send commands itself: %v", target.commands)
	}

	runner.err = errors.New("disk full")
	if err := s.RunNow("nightly"); err == nil {
		t.Fatalf("expected the backup error to be returned")
	}
}

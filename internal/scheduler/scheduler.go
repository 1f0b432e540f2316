package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yourusername/craft-server-manager/internal/backup"
	"github.com/yourusername/craft-server-manager/internal/config"
	"github.com/yourusername/craft-server-manager/internal/logging"
	"github.com/yourusername/craft-server-manager/internal/server"
)

// Target is the server surface scheduled tasks act on
type Target interface {
	State() server.State
	SendCommand(text string) error
	Restart(timeout time.Duration) error
}

// BackupRunner creates world backups for the backup action
type BackupRunner interface {
	Create(ctx context.Context, actor string) (*backup.Record, error)
}

// Upcoming describes the next run of an enabled schedule
type Upcoming struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Action  string    `json:"action"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

// Scheduler runs the schedules from schedules.yaml against the server
type Scheduler struct {
	target      Target
	schedules   *config.ScheduleManager
	activity    *logging.ActivityLogger
	stopTimeout time.Duration
	backups     BackupRunner

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. activity may be nil.
func New(target Target, schedules *config.ScheduleManager, activity *logging.ActivityLogger, stopTimeout time.Duration) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		target:      target,
		schedules:   schedules,
		activity:    activity,
		stopTimeout: stopTimeout,
		cron: cron.New(
			cron.WithParser(config.ScheduleParser),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetBackupRunner enables the backup action
func (s *Scheduler) SetBackupRunner(runner BackupRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backups = runner
}

// Start registers the enabled schedules and starts the cron loop
func (s *Scheduler) Start() error {
	if err := s.Reload(); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[Scheduler] Started with %d active schedules", s.Len())
	return nil
}

// Stop stops the cron loop, aborts pending restart warnings and waits for
// running jobs
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Printf("[Scheduler] Stopped")
}

// Reload replaces the registered jobs with the current definitions
func (s *Scheduler) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}

	for _, def := range s.schedules.GetAll() {
		if !def.Enabled {
			continue
		}
		def := def
		entryID, err := s.cron.AddFunc(def.Cron, func() { s.execute(def) })
		if err != nil {
			return fmt.Errorf("failed to register schedule %s: %w", def.Name, err)
		}
		s.entries[def.ID] = entryID
	}
	return nil
}

// Len returns the number of registered schedules
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Upcoming lists registered schedules ordered by next run
func (s *Scheduler) Upcoming() []Upcoming {
	s.mu.Lock()
	ids := make(map[cron.EntryID]string, len(s.entries))
	for id, entryID := range s.entries {
		ids[entryID] = id
	}
	s.mu.Unlock()

	upcoming := make([]Upcoming, 0, len(ids))
	for _, entry := range s.cron.Entries() {
		id, ok := ids[entry.ID]
		if !ok {
			continue
		}
		def, ok := s.schedules.GetByID(id)
		if !ok {
			continue
		}
		next := entry.Next
		if next.IsZero() {
			next = entry.Schedule.Next(time.Now())
		}
		upcoming = append(upcoming, Upcoming{
			ID:      def.ID,
			Name:    def.Name,
			Action:  def.Action,
			NextRun: next,
			PrevRun: entry.Prev,
		})
	}

	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].NextRun.Before(upcoming[j].NextRun) })
	return upcoming
}

// RunNow executes a schedule immediately, outside its cron timing
func (s *Scheduler) RunNow(id string) error {
	def, ok := s.schedules.GetByID(id)
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}
	return s.run(s.ctx, def)
}

func (s *Scheduler) execute(def config.ScheduleDefinition) {
	if err := s.run(s.ctx, def); err != nil {
		log.Printf("[Scheduler] Schedule %s failed: %v", def.Name, err)
	}
}

// run performs one schedule. A server that is not running is skipped
// without error, except for backups which also run against a stopped world.
func (s *Scheduler) run(ctx context.Context, def config.ScheduleDefinition) error {
	if def.Action == config.ScheduleActionBackup {
		err := s.backup(ctx, def)
		if s.activity != nil {
			s.activity.LogScheduleRun(def.Name, def.Action, err)
		}
		return err
	}

	if state := s.target.State(); state != server.StateRunning {
		log.Printf("[Scheduler] Skipping %s: server is %s", def.Name, state)
		return nil
	}

	log.Printf("[Scheduler] Running %s (%s)", def.Name, def.Action)

	var err error
	switch def.Action {
	case config.ScheduleActionCommand:
		err = s.target.SendCommand(def.Command)
	case config.ScheduleActionBroadcast:
		err = s.target.SendCommand("say " + def.Message)
	case config.ScheduleActionRestart:
		err = s.restart(ctx, def)
	default:
		err = fmt.Errorf("unknown action %q", def.Action)
	}

	if s.activity != nil {
		s.activity.LogScheduleRun(def.Name, def.Action, err)
	}
	return err
}

func (s *Scheduler) backup(ctx context.Context, def config.ScheduleDefinition) error {
	s.mu.Lock()
	runner := s.backups
	s.mu.Unlock()
	if runner == nil {
		return fmt.Errorf("backups are not enabled")
	}

	log.Printf("[Scheduler] Running %s (%s)", def.Name, def.Action)
	_, err := runner.Create(ctx, "schedule:"+def.Name)
	return err
}

// restart announces the restart at each warning offset, then restarts.
// Warnings are sent in descending order, so the restart happens the
// largest offset after the schedule fired.
func (s *Scheduler) restart(ctx context.Context, def config.ScheduleDefinition) error {
	warnings := append([]int{}, def.WarnSeconds...)
	sort.Sort(sort.Reverse(sort.IntSlice(warnings)))

	for i, seconds := range warnings {
		if s.target.State() != server.StateRunning {
			log.Printf("[Scheduler] Server stopped during %s warnings, not restarting", def.Name)
			return nil
		}
		if err := s.target.SendCommand("say " + warningText(def.Message, seconds)); err != nil {
			return fmt.Errorf("failed to send restart warning: %w", err)
		}

		wait := time.Duration(seconds) * time.Second
		if i+1 < len(warnings) {
			wait = time.Duration(seconds-warnings[i+1]) * time.Second
		}
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}

	if s.target.State() != server.StateRunning {
		return nil
	}
	return s.target.Restart(s.stopTimeout)
}

func warningText(message string, seconds int) string {
	if message == "" {
		message = "Server restarting"
	}
	return fmt.Sprintf("%s in %s", message, formatSeconds(seconds))
}

func formatSeconds(seconds int) string {
	switch {
	case seconds >= 3600 && seconds%3600 == 0:
		return plural(seconds/3600, "hour")
	case seconds >= 60 && seconds%60 == 0:
		return plural(seconds/60, "minute")
	default:
		return plural(seconds, "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

var sleep = func(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

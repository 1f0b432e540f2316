package logging

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Activity types
const (
	ActivityServerStart   = "server.start"
	ActivityServerStop    = "server.stop"
	ActivityServerRestart = "server.restart"
	ActivityServerCrash   = "server.crash"
	ActivityCommand       = "command.execute"
	ActivityPlayerAction  = "player.action"
	ActivityScheduleRun   = "schedule.run"
	ActivityLogin         = "auth.login"
	ActivityAPIRequest    = "api.request"
	ActivityBackupCreate  = "backup.create"
	ActivityBackupRestore = "backup.restore"
	ActivityBackupDelete  = "backup.delete"
	ActivityError         = "error"
)

const maxDescriptionCommand = 200

var errNoDatabase = errors.New("activity database not available")

// Activity is one audited action
type Activity struct {
	ID           int64                  `json:"id,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Actor        string                 `json:"actor,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// ActivityLogger writes activities to the activity_log table and, when a
// log directory is configured, to a rotated JSON lines file. Either sink
// may be absent.
type ActivityLogger struct {
	db *sql.DB

	mu   sync.Mutex
	file *lumberjack.Logger
}

// NewActivityLogger creates an activity logger. db and logDir may each be
// empty.
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	al := &ActivityLogger{db: db}
	if logDir != "" {
		al.file = &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "activity.log"),
			MaxSize:    20, // MB
			MaxBackups: 10,
			MaxAge:     90, // days
			Compress:   true,
		}
	}
	return al, nil
}

// LogActivity stamps and stores activity. A database failure is logged and
// does not stop the file write. The returned error is the file sink's.
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	if err := al.insert(activity); err != nil {
		log.Printf("[Activity] Failed to store %s: %v", activity.ActivityType, err)
	}
	if err := al.appendLine(activity); err != nil {
		log.Printf("[Activity] Failed to write %s to file: %v", activity.ActivityType, err)
		return err
	}
	return nil
}

func (al *ActivityLogger) record(actor, activityType, description string, metadata map[string]interface{}, err error) error {
	activity := &Activity{
		Actor:        actor,
		ActivityType: activityType,
		Description:  description,
		Metadata:     metadata,
		Success:      err == nil,
	}
	if err != nil {
		activity.ErrorMessage = err.Error()
	}
	return al.LogActivity(activity)
}

func (al *ActivityLogger) LogServerStart(actor string, err error) error {
	return al.record(actor, ActivityServerStart, "Server start requested", nil, err)
}

func (al *ActivityLogger) LogServerStop(actor string, timeout time.Duration, err error) error {
	return al.record(actor, ActivityServerStop, "Server stop requested",
		map[string]interface{}{"timeout_seconds": timeout.Seconds()}, err)
}

func (al *ActivityLogger) LogServerRestart(actor string, timeout time.Duration, err error) error {
	return al.record(actor, ActivityServerRestart, "Server restart requested",
		map[string]interface{}{"timeout_seconds": timeout.Seconds()}, err)
}

// LogServerCrash records an exit nobody asked for
func (al *ActivityLogger) LogServerCrash(pid, exitCode int) error {
	return al.record("", ActivityServerCrash,
		fmt.Sprintf("Server exited unexpectedly with code %d", exitCode),
		map[string]interface{}{"pid": pid, "exit_code": exitCode},
		fmt.Errorf("exit code %d", exitCode))
}

func (al *ActivityLogger) LogCommandExecute(actor, command string, err error) error {
	shown := command
	if len(shown) > maxDescriptionCommand {
		shown = shown[:maxDescriptionCommand] + "..."
	}
	return al.record(actor, ActivityCommand, "Command executed: "+shown,
		map[string]interface{}{"command": command}, err)
}

func (al *ActivityLogger) LogPlayerAction(actor, action, player string, err error) error {
	return al.record(actor, ActivityPlayerAction, fmt.Sprintf("Player %s: %s", action, player),
		map[string]interface{}{"action": action, "player": player}, err)
}

func (al *ActivityLogger) LogScheduleRun(name, action string, err error) error {
	return al.record("scheduler", ActivityScheduleRun, fmt.Sprintf("Scheduled %s: %s", action, name),
		map[string]interface{}{"schedule": name, "action": action}, err)
}

// LogBackup records a backup operation. activityType is one of the
// ActivityBackup types.
func (al *ActivityLogger) LogBackup(actor, activityType, backupID string, err error) error {
	return al.record(actor, activityType, fmt.Sprintf("%s %s", activityType, backupID),
		map[string]interface{}{"backup_id": backupID}, err)
}

func (al *ActivityLogger) LogLogin(username, remoteAddr string, err error) error {
	return al.record(username, ActivityLogin, "Login attempt",
		map[string]interface{}{"remote_addr": remoteAddr}, err)
}

func (al *ActivityLogger) insert(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	var metadata sql.NullString
	if len(activity.Metadata) > 0 {
		encoded, err := json.Marshal(activity.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(encoded), Valid: true}
	}

	result, err := al.db.Exec(
		`INSERT INTO activity_log (timestamp, actor, activity_type, description, metadata, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		activity.Timestamp, activity.Actor, activity.ActivityType, activity.Description,
		metadata, activity.Success, activity.ErrorMessage,
	)
	if err != nil {
		return err
	}
	if id, err := result.LastInsertId(); err == nil {
		activity.ID = id
	}
	return nil
}

func (al *ActivityLogger) appendLine(activity *Activity) error {
	if al.file == nil {
		return nil
	}
	line, err := json.Marshal(activity)
	if err != nil {
		return err
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	_, err = al.file.Write(append(line, '\n'))
	return err
}

// Close closes the activity file
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()
	if al.file == nil {
		return nil
	}
	return al.file.Close()
}

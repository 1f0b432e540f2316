package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Schedule actions
const (
	ScheduleActionRestart   = "restart"
	ScheduleActionCommand   = "command"
	ScheduleActionBroadcast = "broadcast"
	ScheduleActionBackup    = "backup"
)

// ScheduleDefinition is a recurring task run against the game server
type ScheduleDefinition struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Cron    string `json:"cron" yaml:"cron"`
	Action  string `json:"action" yaml:"action"`
	Enabled bool   `json:"enabled" yaml:"enabled"`

	// Command is sent for the command action
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Message is announced with "say" for broadcasts and restart warnings
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	// WarnSeconds lists how long before a restart each warning is sent
	WarnSeconds []int `json:"warn_seconds,omitempty" yaml:"warn_seconds,omitempty"`
}

// ScheduleParser parses five-field cron expressions and descriptors like @daily
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func schedulesPath(configDir string) string {
	return filepath.Join(configDir, "schedules.yaml")
}

// LoadSchedules loads schedule definitions from schedules.yaml
func LoadSchedules(configDir string) ([]ScheduleDefinition, error) {
	data, err := os.ReadFile(schedulesPath(configDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []ScheduleDefinition{}, nil
		}
		return nil, fmt.Errorf("failed to read schedules file: %w", err)
	}

	var schedulesFile struct {
		Schedules []ScheduleDefinition `yaml:"schedules"`
	}

	if err := yaml.Unmarshal(data, &schedulesFile); err != nil {
		return nil, fmt.Errorf("failed to parse schedules file: %w", err)
	}

	for i := range schedulesFile.Schedules {
		if err := ValidateSchedule(&schedulesFile.Schedules[i]); err != nil {
			return nil, fmt.Errorf("invalid schedule at index %d: %w", i, err)
		}
	}

	if schedulesFile.Schedules == nil {
		return []ScheduleDefinition{}, nil
	}
	return schedulesFile.Schedules, nil
}

// SaveSchedules writes schedule definitions to schedules.yaml
func SaveSchedules(configDir string, schedules []ScheduleDefinition) error {
	schedulesFile := struct {
		Schedules []ScheduleDefinition `yaml:"schedules"`
	}{
		Schedules: schedules,
	}

	data, err := yaml.Marshal(schedulesFile)
	if err != nil {
		return fmt.Errorf("failed to marshal schedules: %w", err)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(schedulesPath(configDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write schedules file: %w", err)
	}

	return nil
}

// ValidateSchedule checks a definition and trims its fields
func ValidateSchedule(schedule *ScheduleDefinition) error {
	schedule.Name = strings.TrimSpace(schedule.Name)
	schedule.Cron = strings.TrimSpace(schedule.Cron)
	schedule.Command = strings.TrimSpace(schedule.Command)
	schedule.Message = strings.TrimSpace(schedule.Message)

	if schedule.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}
	if schedule.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if _, err := ScheduleParser.Parse(schedule.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.Cron, err)
	}

	switch schedule.Action {
	case ScheduleActionRestart:
		for _, seconds := range schedule.WarnSeconds {
			if seconds <= 0 {
				return fmt.Errorf("warn_seconds must be positive")
			}
		}
	case ScheduleActionCommand:
		if schedule.Command == "" {
			return fmt.Errorf("command is required for command schedules")
		}
		if !isSingleLine(schedule.Command) {
			return fmt.Errorf("command must be a single line")
		}
	case ScheduleActionBroadcast:
		if schedule.Message == "" {
			return fmt.Errorf("message is required for broadcast schedules")
		}
	case ScheduleActionBackup:
	default:
		return fmt.Errorf("action must be one of restart, command, broadcast or backup")
	}

	if !isSingleLine(schedule.Message) {
		return fmt.Errorf("message must be a single line")
	}
	return nil
}

func isSingleLine(s string) bool {
	return !strings.ContainsAny(s, "\r\n\x1b")
}

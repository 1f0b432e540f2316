package config

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ScheduleManager handles thread-safe access to schedule definitions
type ScheduleManager struct {
	configDir string
	mutex     sync.RWMutex
	schedules []ScheduleDefinition
}

// NewScheduleManager creates a manager and loads schedules.yaml
func NewScheduleManager(configDir string) (*ScheduleManager, error) {
	sm := &ScheduleManager{
		configDir: configDir,
		schedules: []ScheduleDefinition{},
	}

	if err := sm.Load(); err != nil {
		return nil, err
	}

	return sm, nil
}

// Load reads the schedules from disk
func (sm *ScheduleManager) Load() error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	schedules, err := LoadSchedules(sm.configDir)
	if err != nil {
		return err
	}
	sm.schedules = schedules
	return nil
}

// Save writes the current schedules to disk
func (sm *ScheduleManager) Save() error {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return SaveSchedules(sm.configDir, sm.schedules)
}

// GetAll returns a copy of all schedules
func (sm *ScheduleManager) GetAll() []ScheduleDefinition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	result := make([]ScheduleDefinition, len(sm.schedules))
	copy(result, sm.schedules)
	return result
}

// GetByID returns a schedule by ID
func (sm *ScheduleManager) GetByID(id string) (ScheduleDefinition, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	for _, s := range sm.schedules {
		if s.ID == id {
			return s, true
		}
	}
	return ScheduleDefinition{}, false
}

// Add validates and appends a schedule, assigning an ID when empty.
// Call Save to persist.
func (sm *ScheduleManager) Add(schedule ScheduleDefinition) (ScheduleDefinition, error) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	for _, s := range sm.schedules {
		if s.ID == schedule.ID {
			return ScheduleDefinition{}, fmt.Errorf("schedule with ID %s already exists", schedule.ID)
		}
	}

	if err := ValidateSchedule(&schedule); err != nil {
		return ScheduleDefinition{}, fmt.Errorf("invalid schedule: %w", err)
	}

	sm.schedules = append(sm.schedules, schedule)
	return schedule, nil
}

// Update replaces an existing schedule. Call Save to persist.
func (sm *ScheduleManager) Update(schedule ScheduleDefinition) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if err := ValidateSchedule(&schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	for i, s := range sm.schedules {
		if s.ID == schedule.ID {
			sm.schedules[i] = schedule
			return nil
		}
	}

	return fmt.Errorf("schedule with ID %s not found", schedule.ID)
}

// Delete removes a schedule. Call Save to persist.
func (sm *ScheduleManager) Delete(id string) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	for i, s := range sm.schedules {
		if s.ID == id {
			sm.schedules = append(sm.schedules[:i], sm.schedules[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("schedule with ID %s not found", id)
}

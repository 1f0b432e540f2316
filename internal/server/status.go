package server

import (
	"time"
)

// State is the supervisor lifecycle state
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ResourceSample is one CPU/memory reading for the supervised process.
// CPUPercent is relative to a single logical core.
type ResourceSample struct {
	PID         int       `json:"pid"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProcessExited describes how a process generation ended. Expected is
// true when the exit followed a Stop call.
type ProcessExited struct {
	Generation string    `json:"generation"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	Expected   bool      `json:"expected"`
	Error      string    `json:"error,omitempty"`
	ExitedAt   time.Time `json:"exited_at"`
}

// Status is a point-in-time snapshot of the supervisor
type Status struct {
	State         State           `json:"state"`
	Generation    string          `json:"generation,omitempty"`
	PID           int             `json:"pid,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Players       []string        `json:"players"`
	LastSample    *ResourceSample `json:"last_sample,omitempty"`
	LastExit      *ProcessExited  `json:"last_exit,omitempty"`
	Launch        LaunchSpec      `json:"launch"`
}

// Status returns the current snapshot
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		State:    s.state,
		Players:  s.roster.Names(),
		LastExit: s.lastExit,
		Launch:   s.spec.clone(),
	}

	if s.gen != nil {
		started := s.gen.startedAt
		status.Generation = s.gen.id
		status.PID = s.gen.pid
		status.StartedAt = &started
		status.UptimeSeconds = int64(time.Since(started).Seconds())
		if s.lastSample != nil && s.lastSample.PID == s.gen.pid {
			sample := *s.lastSample
			status.LastSample = &sample
		}
	}

	return status
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Players returns the sorted roster
func (s *Supervisor) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Names()
}

// PID returns the process id of the running generation, or 0
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return 0
	}
	return s.gen.pid
}

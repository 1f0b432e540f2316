package console

import (
	"sync"
	"time"
)

const maxRestartBackoff = 5 * time.Minute

// RestartPolicy limits automatic restarts after crashes to MaxRestarts per
// Window. Each attempt inside the window doubles the back-off.
type RestartPolicy struct {
	Enabled     bool
	MaxRestarts int
	Backoff     time.Duration
	Window      time.Duration

	mu       sync.Mutex
	attempts []time.Time
}

// NewRestartPolicy creates a policy with defaults for unset values
func NewRestartPolicy(enabled bool, maxRestarts int, backoff, window time.Duration) *RestartPolicy {
	if maxRestarts <= 0 {
		maxRestarts = 3
	}
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &RestartPolicy{
		Enabled:     enabled,
		MaxRestarts: maxRestarts,
		Backoff:     backoff,
		Window:      window,
	}
}

// Next reserves a restart attempt at now and returns the delay before it.
// It returns false when restarts are disabled or the window is used up.
func (p *RestartPolicy) Next(now time.Time) (time.Duration, bool) {
	if p == nil || !p.Enabled {
		return 0, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-p.Window)
	recent := p.attempts[:0]
	for _, at := range p.attempts {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	p.attempts = recent

	if len(p.attempts) >= p.MaxRestarts {
		return 0, false
	}

	delay := p.Backoff << len(p.attempts)
	if delay > maxRestartBackoff || delay <= 0 {
		delay = maxRestartBackoff
	}
	p.attempts = append(p.attempts, now)
	return delay, true
}

// Attempts returns how many restarts fall inside the current window
func (p *RestartPolicy) Attempts(now time.Time) int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, at := range p.attempts {
		if at.After(now.Add(-p.Window)) {
			count++
		}
	}
	return count
}

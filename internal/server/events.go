package server

import (
	"time"

	"github.com/yourusername/craft-server-manager/internal/protocol"
)

// EventKind identifies the payload of an Event
type EventKind string

const (
	EventOutput EventKind = "output"
	EventSample EventKind = "sample"
	EventState  EventKind = "state"
	EventExited EventKind = "exited"
)

// Event is delivered on the supervisor channel. Exactly one of Output,
// Sample, State or Exit is set, matching Kind.
type Event struct {
	Kind       EventKind `json:"kind"`
	Generation string    `json:"generation,omitempty"`
	Time       time.Time `json:"time"`

	Output *protocol.Event `json:"output,omitempty"`
	// Players is the roster after the event was applied. It is set on
	// state events and on output events that changed or reported the roster.
	Players []string `json:"players,omitempty"`

	Sample *ResourceSample `json:"sample,omitempty"`
	State  State           `json:"state,omitempty"`
	Exit   *ProcessExited  `json:"exit,omitempty"`
}

// Events returns the ordered delivery channel. It is never closed;
// consumers stop on their own context.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// emit blocks until the event is taken or the supervisor is closed
func (s *Supervisor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *Supervisor) emitState(state State, generation string) {
	s.emit(Event{
		Kind:       EventState,
		Generation: generation,
		State:      state,
		Players:    s.Players(),
	})
}

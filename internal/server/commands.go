package server

import (
	"io"
	"strings"
)

// SendCommand writes one console line to the running server
func (s *Supervisor) SendCommand(text string) error {
	s.mu.Lock()
	gen := s.gen
	running := s.state == StateRunning && gen != nil
	s.mu.Unlock()

	if !running {
		return &CommandError{Reason: ErrNotRunning}
	}

	// A stop typed by an operator ends the process on purpose
	stopping := isStopCommand(text, s.opts.StopCommand)
	if stopping {
		s.setExpected(gen, true)
	}

	if err := gen.write(text); err != nil {
		if stopping {
			s.setExpected(gen, false)
		}
		return &CommandError{Reason: ErrPipeBroken, Err: err}
	}
	return nil
}

func (s *Supervisor) setExpected(gen *generation, expected bool) {
	s.mu.Lock()
	if s.gen == gen {
		gen.expected = expected
	}
	s.mu.Unlock()
}

func isStopCommand(text, stopCommand string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimPrefix(fields[0], "/"), stopCommand)
}

// write is the single path to the process stdin. User commands, the
// probe and the stop command all go through it.
func (g *generation) write(text string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	_, err := io.WriteString(g.stdin, text+"\n")
	return err
}

package server

import (
	"time"
)

// probe periodically asks the server for its player list
func (s *Supervisor) probe(gen *generation) {
	defer gen.loops.Done()

	if s.opts.ProbeInterval < 0 {
		return
	}

	ticker := time.NewTicker(s.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gen.ctx.Done():
			return
		case <-ticker.C:
			act, keep := s.tick(gen)
			if !keep {
				return
			}
			if !act {
				continue
			}
			if err := gen.write(s.opts.ProbeCommand); err != nil {
				return
			}
		}
	}
}

// tick reports whether a loop of gen should act now and whether it should
// keep going. Loops idle while a stop is pending and only exit once their
// generation is gone, so a failed kill can hand the same loops back.
func (s *Supervisor) tick(gen *generation) (act, keep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, false
	}
	return s.state == StateRunning, true
}

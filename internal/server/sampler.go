package server

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// SampleFunc measures one process. It returns ErrProcessGone once the
// process no longer exists.
type SampleFunc func(ctx context.Context, pid int, window time.Duration) (ResourceSample, error)

// SampleProcess reads CPU over window and resident memory. 100% is one
// fully busy logical core.
func SampleProcess(ctx context.Context, pid int, window time.Duration) (ResourceSample, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return ResourceSample{}, ErrProcessGone
		}
		return ResourceSample{}, err
	}

	cpu, err := proc.PercentWithContext(ctx, window)
	if err != nil {
		return ResourceSample{}, goneOr(ctx, proc, err)
	}

	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return ResourceSample{}, goneOr(ctx, proc, err)
	}

	return ResourceSample{
		PID:         pid,
		CPUPercent:  cpu,
		MemoryBytes: mem.RSS,
		Timestamp:   time.Now(),
	}, nil
}

func goneOr(ctx context.Context, proc *process.Process, err error) error {
	if running, runErr := proc.IsRunningWithContext(ctx); runErr == nil && !running {
		return ErrProcessGone
	}
	return err
}

// sample periodically measures the process and emits the readings
func (s *Supervisor) sample(gen *generation) {
	defer gen.loops.Done()

	if s.opts.SampleInterval < 0 {
		return
	}

	ticker := time.NewTicker(s.opts.SampleInterval)
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

			sample, err := s.opts.Sampler(gen.ctx, gen.pid, s.opts.SampleWindow)
			if err != nil {
				if errors.Is(err, ErrProcessGone) || gen.ctx.Err() != nil {
					return
				}
				log.Printf("[Sampler] Failed to sample pid %d: %v", gen.pid, err)
				continue
			}

			s.mu.Lock()
			current := s.gen == gen
			if current {
				s.lastSample = &sample
			}
			s.mu.Unlock()
			if !current {
				return
			}

			s.emit(Event{Kind: EventSample, Generation: gen.id, Sample: &sample})
		}
	}
}

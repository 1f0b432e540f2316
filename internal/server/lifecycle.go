package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/craft-server-manager/internal/protocol"
)

// Options tunes a Supervisor. Zero values fall back to the defaults below.
type Options struct {
	StopCommand    string
	ProbeCommand   string
	ProbeInterval  time.Duration
	SampleInterval time.Duration
	SampleWindow   time.Duration
	StopTimeout    time.Duration // used by Close
	EventBuffer    int
	// ExitGrace is how long the reader may keep draining after the process exits
	ExitGrace time.Duration

	Classifier *protocol.Classifier
	Sampler    SampleFunc
}

const (
	DefaultStopCommand    = "stop"
	DefaultProbeCommand   = "list"
	DefaultProbeInterval  = 10 * time.Second
	DefaultSampleInterval = 2 * time.Second
	DefaultSampleWindow   = time.Second
	DefaultStopTimeout    = 30 * time.Second
	DefaultEventBuffer    = 256
	DefaultExitGrace      = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.StopCommand == "" {
		o.StopCommand = DefaultStopCommand
	}
	if o.ProbeCommand == "" {
		o.ProbeCommand = DefaultProbeCommand
	}
	if o.ProbeInterval == 0 {
		o.ProbeInterval = DefaultProbeInterval
	}
	if o.SampleInterval == 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.SampleWindow == 0 {
		o.SampleWindow = DefaultSampleWindow
	}
	if o.StopTimeout == 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.ExitGrace <= 0 {
		o.ExitGrace = DefaultExitGrace
	}
	if o.Classifier == nil {
		o.Classifier = protocol.New(protocol.DefaultRules...)
	}
	if o.Sampler == nil {
		o.Sampler = SampleProcess
	}
	return o
}

// killProcess is replaced in tests to simulate a kill the OS refuses
var killProcess = terminate

// Supervisor owns at most one server process at a time
type Supervisor struct {
	opts Options

	mu         sync.Mutex
	state      State
	gen        *generation
	spec       LaunchSpec
	roster     *Roster
	lastSample *ResourceSample
	lastExit   *ProcessExited

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

// generation is one spawned process and the goroutines attached to it
type generation struct {
	id        string
	spec      LaunchSpec
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	stdin   io.WriteCloser
	stdout  *os.File
	writeMu sync.Mutex

	// ctx is cancelled as soon as the process has exited
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	readerDone chan struct{}
	done       chan struct{}
	finishOnce sync.Once

	// expected is guarded by Supervisor.mu
	expected bool
}

// NewSupervisor creates a stopped supervisor
func NewSupervisor(opts Options) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		opts:   opts,
		state:  StateStopped,
		roster: NewRoster(),
		events: make(chan Event, opts.EventBuffer),
		closed: make(chan struct{}),
	}
}

// Start spawns the server process described by spec
func (s *Supervisor) Start(spec LaunchSpec) error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return &StartError{Reason: ErrSpawnFailed, Err: errors.New("supervisor is closed")}
	default:
	}
	if s.state != StateStopped {
		state := s.state
		s.mu.Unlock()
		return &StartError{Reason: ErrAlreadyRunning, Err: fmt.Errorf("server is %s", state)}
	}
	s.state = StateStarting
	s.spec = spec.clone()
	s.roster.Clear()
	s.mu.Unlock()

	log.Printf("[Supervisor] Starting server: %s", spec)
	s.emitState(StateStarting, "")

	gen, err := s.spawn(spec)
	if err != nil {
		log.Printf("[Supervisor] Start failed: %v", err)
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		s.emitState(StateStopped, "")
		return err
	}

	s.mu.Lock()
	s.gen = gen
	s.state = StateRunning
	s.mu.Unlock()

	log.Printf("[Supervisor] Server started (pid %d, generation %s)", gen.pid, gen.id)
	s.emitState(StateRunning, gen.id)

	go s.read(gen)
	s.startLoops(gen)
	go s.wait(gen)
	return nil
}

func (s *Supervisor) spawn(spec LaunchSpec) (*generation, error) {
	path, err := spec.resolveExecutable()
	if err != nil {
		return nil, err
	}
	if err := spec.checkWorkingDir(); err != nil {
		return nil, err
	}
	args, err := spec.resolveArgs()
	if err != nil {
		return nil, err
	}
	spec.Args, spec.jarSlot = args, 0

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.WorkingDir
	cmd.SysProcAttr = sysProcAttr()
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Reason: ErrSpawnFailed, Err: err}
	}

	// stdout and stderr share one pipe so lines keep their relative order
	reader, writer, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, &StartError{Reason: ErrSpawnFailed, Err: err}
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &StartError{Reason: ErrExecutableNotFound, Err: err}
		}
		return nil, &StartError{Reason: ErrSpawnFailed, Err: err}
	}
	writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	return &generation{
		id:         uuid.New().String(),
		spec:       spec.clone(),
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		startedAt:  time.Now(),
		stdin:      stdin,
		stdout:     reader,
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// startLoops runs once per generation; the loops outlive a failed stop
func (s *Supervisor) startLoops(gen *generation) {
	gen.loops.Add(2)
	go s.probe(gen)
	go s.sample(gen)
}

// wait is the only path to the stopped state for a spawned generation
func (s *Supervisor) wait(gen *generation) {
	waitErr := gen.cmd.Wait()
	gen.cancel()

	select {
	case <-gen.readerDone:
	case <-time.After(s.opts.ExitGrace):
		// a grandchild may still hold the write end
		log.Printf("[Supervisor] Output still open %v after exit, closing reader", s.opts.ExitGrace)
		gen.stdout.Close()
		<-gen.readerDone
	}
	gen.loops.Wait()

	s.finish(gen, exitCode(gen.cmd, waitErr), waitErr)
}

func (s *Supervisor) finish(gen *generation, code int, waitErr error) {
	gen.finishOnce.Do(func() {
		gen.stdin.Close()

		s.mu.Lock()
		exit := &ProcessExited{
			Generation: gen.id,
			PID:        gen.pid,
			ExitCode:   code,
			Expected:   gen.expected,
			ExitedAt:   time.Now(),
		}
		var exitErr *exec.ExitError
		if waitErr != nil && !errors.As(waitErr, &exitErr) {
			exit.Error = waitErr.Error()
		}
		if s.gen == gen {
			s.gen = nil
			s.state = StateStopped
			s.roster.Clear()
		}
		s.lastExit = exit
		s.mu.Unlock()

		if exit.Expected {
			log.Printf("[Supervisor] Server stopped (pid %d, exit code %d)", exit.PID, exit.ExitCode)
		} else {
			log.Printf("[Supervisor] Server exited unexpectedly (pid %d, exit code %d)", exit.PID, exit.ExitCode)
		}

		s.emit(Event{Kind: EventExited, Generation: gen.id, Exit: exit})
		s.emitState(StateStopped, gen.id)
		close(gen.done)
	})
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Stop asks the server to shut down and kills it when timeout elapses
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != StateRunning || s.gen == nil {
		state := s.state
		s.mu.Unlock()
		return &StopError{Reason: ErrNotRunning, Err: fmt.Errorf("server is %s", state)}
	}
	gen := s.gen
	s.state = StateStopping
	gen.expected = true
	s.mu.Unlock()

	log.Printf("[Supervisor] Stopping server (pid %d, timeout %v)", gen.pid, timeout)
	s.emitState(StateStopping, gen.id)

	if err := gen.write(s.opts.StopCommand); err != nil {
		log.Printf("[Supervisor] Stop command not delivered: %v", err)
		timeout = 0
	}

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-gen.done:
			return nil
		case <-timer.C:
			log.Printf("[Supervisor] Graceful shutdown timeout, killing process group %d", gen.pid)
		}
	}

	if err := killProcess(gen.cmd.Process); err != nil {
		select {
		case <-gen.done:
			return nil
		default:
		}

		log.Printf("[Supervisor] Failed to kill server: %v", err)
		s.mu.Lock()
		reverted := s.gen == gen && gen.ctx.Err() == nil
		if reverted {
			s.state = StateRunning
			gen.expected = false
		}
		s.mu.Unlock()
		if reverted {
			s.emitState(StateRunning, gen.id)
		}
		return &StopError{Reason: ErrTerminationFailed, Err: err}
	}

	<-gen.done
	return nil
}

// Restart stops the running server and starts it again with the last launch spec
func (s *Supervisor) Restart(timeout time.Duration) error {
	s.mu.Lock()
	spec := s.spec.clone()
	s.mu.Unlock()

	log.Printf("[Supervisor] Restarting server...")
	if err := s.Stop(timeout); err != nil {
		return err
	}
	if err := s.Start(spec); err != nil {
		return err
	}
	log.Printf("[Supervisor] Server restarted")
	return nil
}

// Close releases blocked emitters and stops a running server. Events that
// do not fit in the channel buffer after Close are dropped.
func (s *Supervisor) Close() error {
	var err error

	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	state := s.state
	gen := s.gen
	s.mu.Unlock()

	switch state {
	case StateRunning:
		err = s.Stop(s.opts.StopTimeout)
	case StateStopping:
		if gen != nil {
			<-gen.done
		}
	}
	return err
}

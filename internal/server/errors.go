package server

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning     = errors.New("server is already running")
	ErrExecutableNotFound = errors.New("server executable not found")
	ErrSpawnFailed        = errors.New("failed to spawn server process")
	ErrNotRunning         = errors.New("server is not running")
	ErrPipeBroken         = errors.New("server input pipe is broken")
	ErrTerminationFailed  = errors.New("failed to terminate server process")

	// ErrProcessGone is returned by a SampleFunc when the process no longer exists
	ErrProcessGone = errors.New("process not found")
)

// StartError is returned by Start. Reason is one of ErrAlreadyRunning,
// ErrExecutableNotFound or ErrSpawnFailed.
type StartError struct {
	Reason error
	Err    error
}

func (e *StartError) Error() string { return formatOpError(e.Reason, e.Err) }

func (e *StartError) Unwrap() []error { return unwrapOpError(e.Reason, e.Err) }

// CommandError is returned by SendCommand. Reason is ErrNotRunning or ErrPipeBroken.
type CommandError struct {
	Reason error
	Err    error
}

func (e *CommandError) Error() string { return formatOpError(e.Reason, e.Err) }

func (e *CommandError) Unwrap() []error { return unwrapOpError(e.Reason, e.Err) }

// StopError is returned by Stop. Reason is ErrNotRunning or ErrTerminationFailed.
type StopError struct {
	Reason error
	Err    error
}

func (e *StopError) Error() string { return formatOpError(e.Reason, e.Err) }

func (e *StopError) Unwrap() []error { return unwrapOpError(e.Reason, e.Err) }

func formatOpError(reason, err error) string {
	if err == nil {
		return reason.Error()
	}
	return fmt.Sprintf("%v: %v", reason, err)
}

func unwrapOpError(reason, err error) []error {
	if err == nil {
		return []error{reason}
	}
	return []error{reason, err}
}

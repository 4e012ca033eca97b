package proc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKillUnsupported is returned by Kill on backends where the
// underlying execution context exposes no controllable process
// identity, such as a remote shell invocation.
var ErrKillUnsupported = errors.New("cannot kill process: no controllable process identity")

// ExecutionError reports that a process terminated with an exit code
// outside the expected set. It carries the captured output and the
// identity of the executing host for diagnostics.
type ExecutionError struct {
	Argv    []string
	Retcode int
	Stdout  string
	Stderr  string
	Machine string
}

func (e *ExecutionError) Error() string {
	lines := []string{
		fmt.Sprintf("command line: %q", e.Argv),
		fmt.Sprintf("exit code: %d", e.Retcode),
		fmt.Sprintf("machine: %s", e.Machine),
	}
	if e.Stdout != "" {
		lines = append(lines, "stdout:  | "+strings.Join(strings.Split(e.Stdout, "\n"), "\n         | "))
	}
	if e.Stderr != "" {
		lines = append(lines, "stderr:  | "+strings.Join(strings.Split(e.Stderr, "\n"), "\n         | "))
	}
	return strings.Join(lines, "\n")
}

// TimeoutError reports that a process was killed by the watchdog after
// exceeding its overall deadline.
type TimeoutError struct {
	Argv    []string
	Machine string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process timed out: %q on %s", e.Argv, e.Machine)
}

// LineTimeoutError reports that no output line arrived within the
// per-line deadline. The process itself may still be running.
type LineTimeoutError struct {
	Argv    []string
	Machine string
}

func (e *LineTimeoutError) Error() string {
	return fmt.Sprintf("line timeout expired: %q on %s", e.Argv, e.Machine)
}

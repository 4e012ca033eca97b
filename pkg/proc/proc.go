// Package proc supervises externally spawned processes. It defines the
// contract that execution backends implement, enforces wall-clock deadlines
// through a shared watchdog, multiplexes process output into tagged lines
// and classifies the final outcome of a process into a typed error.
package proc

import (
	"sync/atomic"
	"time"

	"golang.org/x/text/encoding"
)

// Stream identifies one of the two output streams of a process.
type Stream int

const (
	// Stdout is the standard output stream.
	Stdout Stream = iota
	// Stderr is the standard error stream.
	Stderr
)

// String returns the conventional name of the stream.
func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is a single line of process output tagged with the stream
// it arrived on. Lines are produced in arrival order across both
// streams, not in a fixed interleave.
type Line struct {
	Stream Stream
	Text   string
}

// Result holds the final outcome of a successfully supervised process.
type Result struct {
	Retcode int
	Stdout  string
	Stderr  string
}

// Process is the handle for one spawned unit of execution, local or
// remote. It is created and owned by the backend that spawned it; the
// watchdog and the line iterator only hold non-owning references.
type Process interface {
	// Argv returns the command line of the process for diagnostics.
	Argv() []string

	// Machine identifies the executing host, local or remote.
	Machine() string

	// Encoding returns the text decoding scheme for process output,
	// or nil if output is to be treated as raw bytes.
	Encoding() encoding.Encoding

	// Poll reports the exit code if the process has already terminated.
	// It never blocks.
	Poll() (code int, exited bool)

	// Wait blocks until the process terminates and returns its exit
	// code. Repeated calls return the cached code.
	Wait() (int, error)

	// Communicate drains both output streams to completion and returns
	// their contents. Implementations must interleave the draining so
	// that a silent stream cannot deadlock a chatty one.
	Communicate() (stdout, stderr []byte, err error)

	// Kill forcibly terminates the process. Backends without a
	// controllable process identity return ErrKillUnsupported.
	Kill() error

	// Close releases the handle's I/O resources. It is safe to call
	// multiple times and from both the completion and the abort path.
	Close() error

	// Select is the readiness primitive used for line multiplexing.
	// It waits until one of the requested output streams has data to
	// read or the timeout expires; a zero or negative timeout waits
	// indefinitely. Both results false means the wait expired.
	Select(stdout, stderr bool, timeout time.Duration) (bool, bool, error)

	// ReadLine reads a single line from the given stream, up to limit
	// bytes when limit is positive. The trailing newline is included.
	// It returns io.EOF once the stream is exhausted.
	ReadLine(s Stream, limit int) ([]byte, error)

	// TimedOut reports whether the watchdog killed the process after
	// its deadline elapsed.
	TimedOut() bool

	// MarkTimedOut records that the deadline elapsed. It is called at
	// most once, by the watchdog, before the kill attempt.
	MarkTimedOut()
}

// Status tracks the supervision state of a process handle. Backends
// embed it to satisfy the timed-out part of the Process contract.
type Status struct {
	timedOut atomic.Bool
}

// MarkTimedOut records that the process exceeded its deadline.
func (s *Status) MarkTimedOut() {
	s.timedOut.Store(true)
}

// TimedOut reports whether the process exceeded its deadline.
func (s *Status) TimedOut() bool {
	return s.timedOut.Load()
}

// Package execx spawns and supervises processes on the local machine.
// It implements the proc.Process contract on top of os/exec, using
// parent-owned pipes so that output readiness can be multiplexed at
// the file descriptor level.
package execx

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding"

	"github.com/runfold/runp/pkg/proc"
)

// machine is the host identity carried in diagnostics for processes
// spawned by this package.
const machine = "local"

// Process is a local process handle backed by the operating system's
// process control block.
type Process struct {
	proc.Status

	argv []string
	enc  encoding.Encoding
	cmd  *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File
	reader [2]*bufio.Reader

	done    chan struct{}
	code    int
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Spawn starts the command and returns its process handle. The
// caller's argument vector is passed through verbatim; no shell is
// involved.
func Spawn(name string, arg []string, options ...Option) (*Process, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(name, arg...)

	// The child receives the pipe ends directly so that exec.Cmd
	// spawns no copier goroutines and the parent ends stay pollable.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, err
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, err
	}
	closeAll(stdinR, stdoutW, stderrW)

	opts.Logger.Debug().Strs("argv", cmd.Args).Int("pid", cmd.Process.Pid).Msg("Spawned process")

	p := &Process{
		argv:   cmd.Args,
		enc:    opts.Encoding,
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		done:   make(chan struct{}),
	}
	p.reader[proc.Stdout] = bufio.NewReader(stdoutR)
	p.reader[proc.Stderr] = bufio.NewReader(stderrR)

	go p.reap()

	return p, nil
}

// reap waits for the child to exit and caches its exit code.
func (p *Process) reap() {
	err := p.cmd.Wait()
	p.code = exitCode(err, p.cmd.ProcessState)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.waitErr = err
	}

	close(p.done)
}

// exitCode extracts the exit code from a wait result. A process that
// was killed by a signal reports -1.
func exitCode(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return -1
}

// Argv returns the command line of the process.
func (p *Process) Argv() []string {
	return p.argv
}

// Machine identifies the executing host.
func (p *Process) Machine() string {
	return machine
}

// Encoding returns the configured output decoding scheme, or nil.
func (p *Process) Encoding() encoding.Encoding {
	return p.enc
}

// Stdin returns the write end of the process's standard input.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Poll reports the exit code if the process has already terminated.
func (p *Process) Poll() (int, bool) {
	select {
	case <-p.done:
		return p.code, true
	default:
		return 0, false
	}
}

// Wait blocks until the process terminates and returns its cached
// exit code.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}

// Communicate closes stdin and drains both output streams to
// completion. The streams are read concurrently so that a silent
// stream cannot deadlock a chatty one.
func (p *Process) Communicate() ([]byte, []byte, error) {
	p.stdin.Close()

	var wg sync.WaitGroup
	var stdout, stderr []byte
	var stdoutErr, stderrErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		stdout, stdoutErr = io.ReadAll(p.reader[proc.Stdout])
	}()
	go func() {
		defer wg.Done()
		stderr, stderrErr = io.ReadAll(p.reader[proc.Stderr])
	}()
	wg.Wait()

	if _, err := p.Wait(); err != nil {
		return stdout, stderr, err
	}
	if stdoutErr != nil {
		return stdout, stderr, stdoutErr
	}
	return stdout, stderr, stderrErr
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// Close releases the parent's ends of the process pipes. It is safe
// to call multiple times.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = closeAll(p.stdin, p.stdout, p.stderr)
	})
	return p.closeErr
}

// Select multiplexes the output file descriptors with poll(2), after
// accounting for data already buffered by the line readers. A zero or
// negative timeout waits indefinitely.
func (p *Process) Select(stdout, stderr bool, timeout time.Duration) (bool, bool, error) {
	readyOut := stdout && p.reader[proc.Stdout].Buffered() > 0
	readyErr := stderr && p.reader[proc.Stderr].Buffered() > 0
	if readyOut || readyErr {
		return readyOut, readyErr, nil
	}

	var fds []unix.PollFd
	var streams []proc.Stream
	if stdout {
		fds = append(fds, unix.PollFd{Fd: int32(p.stdout.Fd()), Events: unix.POLLIN})
		streams = append(streams, proc.Stdout)
	}
	if stderr {
		fds = append(fds, unix.PollFd{Fd: int32(p.stderr.Fd()), Events: unix.POLLIN})
		streams = append(streams, proc.Stderr)
	}
	if len(fds) == 0 {
		return false, false, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ms := -1
		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int(remaining / time.Millisecond)
		}

		n, err := unix.Poll(fds, ms)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return false, false, err
		}
		if n == 0 {
			return false, false, nil
		}
		break
	}

	var ready [2]bool
	for i, fd := range fds {
		// POLLHUP and POLLERR count as readable so that the final
		// read can observe the end of the stream.
		if fd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready[streams[i]] = true
		}
	}
	return ready[proc.Stdout], ready[proc.Stderr], nil
}

// ReadLine reads one line from the given output stream.
func (p *Process) ReadLine(s proc.Stream, limit int) ([]byte, error) {
	return proc.ScanLine(p.reader[s], limit)
}

// closeAll closes every file, returning the first error encountered.
// Files that are already closed do not count as an error.
func closeAll(files ...*os.File) error {
	var first error
	for _, f := range files {
		if err := f.Close(); err != nil && first == nil && !errors.Is(err, os.ErrClosed) {
			first = err
		}
	}
	return first
}

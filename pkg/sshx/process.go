package sshx

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/text/encoding"

	"github.com/runfold/runp/pkg/proc"
)

// Cmd describes a command to be executed on the remote host. The
// optional streams are used by Communicate to redirect output straight
// to caller-supplied sinks and to feed remote stdin from a source,
// instead of buffering in memory.
type Cmd struct {
	Cmd    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a remote process handle backed by a channel over an
// authenticated SSH session.
type Process struct {
	proc.Status

	argv      []string
	machineID string
	enc       encoding.Encoding
	sess      *ssh.Session

	stdin  io.WriteCloser
	stream [2]*streamBuffer
	reader [2]*bufio.Reader

	inFile  io.Reader
	outFile io.Writer
	errFile io.Writer

	done    chan struct{}
	code    int
	waitErr error

	closeOnce sync.Once
	closeErr  error
	stdinOnce sync.Once
}

// Spawn starts the command on the remote host and returns its process
// handle. Every process runs on its own SSH session.
func (client *Client) Spawn(cmd Cmd) (*Process, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, err
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}

	if err := sess.Start(cmd.Cmd); err != nil {
		sess.Close()
		return nil, err
	}

	client.Logger.Debug().Str("cmd", cmd.Cmd).Str("machine", client.String()).Msg("Spawned remote process")

	p := &Process{
		argv:      []string{cmd.Cmd},
		machineID: client.String(),
		enc:       client.Encoding,
		sess:      sess,
		stdin:     stdin,
		inFile:    cmd.Stdin,
		outFile:   cmd.Stdout,
		errFile:   cmd.Stderr,
		done:      make(chan struct{}),
	}
	p.stream[proc.Stdout] = newStreamBuffer()
	p.stream[proc.Stderr] = newStreamBuffer()
	p.reader[proc.Stdout] = bufio.NewReader(p.stream[proc.Stdout])
	p.reader[proc.Stderr] = bufio.NewReader(p.stream[proc.Stderr])

	go p.stream[proc.Stdout].pump(stdout)
	go p.stream[proc.Stderr].pump(stderr)
	go p.reap()

	return p, nil
}

// reap waits for the remote process to exit and caches its exit code.
func (p *Process) reap() {
	err := p.sess.Wait()

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
		p.code = 0
	case errors.As(err, &exitErr):
		p.code = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		// The remote side exited without reporting a status.
		p.code = -1
	default:
		p.code = -1
		p.waitErr = err
	}

	close(p.done)
}

// Argv returns the command line of the process.
func (p *Process) Argv() []string {
	return p.argv
}

// Machine identifies the executing host.
func (p *Process) Machine() string {
	return p.machineID
}

// Encoding returns the configured output decoding scheme, or nil.
func (p *Process) Encoding() encoding.Encoding {
	return p.enc
}

// Stdin returns the write end of the remote standard input.
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

// Wait blocks until the remote process terminates and returns its
// cached exit code.
func (p *Process) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}

// Communicate drains both output streams to completion, round-robining
// between writing pending input and reading one line per stream, so
// neither side can starve the other. Collected bytes go to the sinks
// configured on the Cmd, or into memory when none are set.
func (p *Process) Communicate() ([]byte, []byte, error) {
	var collected [2]bytes.Buffer
	sink := [2]io.Writer{&collected[proc.Stdout], &collected[proc.Stderr]}
	if p.outFile != nil {
		sink[proc.Stdout] = p.outFile
	}
	if p.errFile != nil {
		sink[proc.Stderr] = p.errFile
	}

	var input *bufio.Reader
	if p.inFile != nil {
		input = bufio.NewReader(p.inFile)
	} else {
		p.closeStdin()
	}

	active := [2]bool{true, true}
	turn := proc.Stderr
	for active[proc.Stdout] || active[proc.Stderr] {
		if input != nil {
			line, err := input.ReadBytes('\n')
			if len(line) > 0 {
				if _, werr := p.stdin.Write(line); werr != nil {
					err = werr
				}
			}
			if err != nil {
				input = nil
				p.closeStdin()
			}
		}

		turn = 1 - turn
		if !active[turn] {
			turn = 1 - turn
		}

		line, err := proc.ScanLine(p.reader[turn], 0)
		if len(line) > 0 {
			if _, werr := sink[turn].Write(line); werr != nil {
				return collected[proc.Stdout].Bytes(), collected[proc.Stderr].Bytes(), werr
			}
		}
		if err != nil {
			active[turn] = false
		}
	}

	if _, err := p.Wait(); err != nil {
		return collected[proc.Stdout].Bytes(), collected[proc.Stderr].Bytes(), err
	}
	return collected[proc.Stdout].Bytes(), collected[proc.Stderr].Bytes(), nil
}

// Kill fails by design: the remote side exposes no process identity
// that could be signalled.
func (p *Process) Kill() error {
	return proc.ErrKillUnsupported
}

// Close releases the remote I/O channels. It is safe to call multiple
// times.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeStdin()
		if p.sess == nil {
			return
		}
		if err := p.sess.Close(); err != nil && !errors.Is(err, io.EOF) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

func (p *Process) closeStdin() {
	p.stdinOnce.Do(func() {
		p.stdin.Close()
	})
}

// Select waits until one of the requested output streams has data
// buffered, accounting for both the line readers and the channel
// buffers. A zero or negative timeout waits indefinitely.
func (p *Process) Select(stdout, stderr bool, timeout time.Duration) (bool, bool, error) {
	if !stdout && !stderr {
		return false, false, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		readyOut := stdout && p.readyStream(proc.Stdout)
		readyErr := stderr && p.readyStream(proc.Stderr)
		if readyOut || readyErr {
			return readyOut, readyErr, nil
		}

		var outReadable, errReadable chan struct{}
		if stdout {
			outReadable = p.stream[proc.Stdout].readable
		}
		if stderr {
			errReadable = p.stream[proc.Stderr].readable
		}

		select {
		case <-outReadable:
		case <-errReadable:
		case <-expired:
			return false, false, nil
		}
	}
}

func (p *Process) readyStream(s proc.Stream) bool {
	return p.reader[s].Buffered() > 0 || p.stream[s].ready()
}

// ReadLine reads one line from the given output stream.
func (p *Process) ReadLine(s proc.Stream, limit int) ([]byte, error) {
	return proc.ScanLine(p.reader[s], limit)
}

package proc

import (
	"errors"
	"io"
	"strings"
)

const (
	// accumulatorLimit bounds how many lines per stream are retained
	// for the final classification of a chatty process.
	accumulatorLimit = 100

	// elisionMarker replaces the oldest buffered lines once the
	// retention bound is exceeded.
	elisionMarker = "<...previous lines omitted...>"
)

// accumulator collects the most recent lines of one output stream.
type accumulator struct {
	lines []string
}

// append adds a line, collapsing the two oldest entries into a single
// elision marker once the retention bound is exceeded.
func (a *accumulator) append(line string) {
	a.lines = append(a.lines, line)
	if len(a.lines) > accumulatorLimit {
		a.lines[1] = elisionMarker
		a.lines = a.lines[1:]
	}
}

// join finalizes the accumulator into a single text blob.
func (a *accumulator) join() string {
	return strings.Join(a.lines, "\n")
}

// Lines is a lazy, single-pass iterator over the interleaved output
// lines of a process. It follows the sql.Rows idiom:
//
//	lines, err := proc.IterLines(p)
//	if err != nil { ... }
//	defer lines.Close()
//	for lines.Next() {
//		line := lines.Line()
//		...
//	}
//	if err := lines.Err(); err != nil { ... }
//
// Closing the iterator before exhaustion releases the process handle
// unless configured otherwise, so breaking out of consumption midway
// leaks neither the process nor its pipes.
type Lines struct {
	proc   Process
	opts   *Options
	decode func([]byte) string

	acc     [2]accumulator
	pending []Line
	cur     Line

	stdout string
	stderr string
	result *Result

	eof      [2]bool
	drained  bool
	finished bool
	closed   bool
	err      error
}

// IterLines starts iterating over the output lines of the process.
// The overall timeout, if any, is registered with the watchdog before
// the first line is read.
func IterLines(p Process, options ...Option) (*Lines, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	opts.watchdog().Register(p, opts.Timeout)

	return &Lines{
		proc:   p,
		opts:   opts,
		decode: decoder(p),
	}, nil
}

// decoder returns the line decoding function for the process: raw
// pass-through without an encoding, decode-and-trim with one.
func decoder(p Process) func([]byte) string {
	enc := p.Encoding()
	if enc == nil {
		return func(b []byte) string {
			return string(b)
		}
	}

	dec := enc.NewDecoder()
	return func(b []byte) string {
		decoded, err := dec.Bytes(b)
		if err != nil {
			// Tolerate malformed input instead of failing.
			decoded = b
		}
		return strings.TrimRight(string(decoded), "\r\n")
	}
}

// Next advances to the next output line. It returns false when both
// streams are exhausted or an error occurred; Err distinguishes the
// two cases.
func (l *Lines) Next() bool {
	if l.finished || l.closed || l.err != nil {
		return false
	}

	for {
		if len(l.pending) > 0 {
			l.cur = l.pending[0]
			l.pending = l.pending[1:]
			return true
		}
		if l.err != nil {
			return false
		}

		if l.drained || (l.eof[Stdout] && l.eof[Stderr]) {
			l.finish()
			return false
		}

		if _, exited := l.proc.Poll(); exited {
			l.drain()
			continue
		}

		stdout, stderr, err := l.proc.Select(!l.eof[Stdout], !l.eof[Stderr], l.opts.LineTimeout)
		if err != nil {
			l.err = err
			return false
		}
		if !stdout && !stderr {
			if l.opts.LineTimeout > 0 {
				l.err = &LineTimeoutError{
					Argv:    l.proc.Argv(),
					Machine: l.proc.Machine(),
				}
				return false
			}
			continue
		}

		if stdout {
			l.readLine(Stdout)
		}
		if stderr {
			l.readLine(Stderr)
		}

		// A readiness multiplexer may miss the tail of a dead
		// process, so drain both streams once it has exited.
		if _, exited := l.proc.Poll(); exited {
			l.drain()
		}
	}
}

// Line returns the line read by the last successful call to Next.
func (l *Lines) Line() Line {
	return l.cur
}

// Err returns the error that ended the iteration: a line timeout, a
// read failure, or the final classification error. It returns nil
// after a fully successful run.
func (l *Lines) Err() error {
	return l.err
}

// Result returns the classified result after a successful iteration.
func (l *Lines) Result() *Result {
	return l.result
}

// Output returns the finalized per-stream blobs. Both are bounded by
// the accumulator's retention limit.
func (l *Lines) Output() (stdout, stderr string) {
	return l.stdout, l.stderr
}

// Close releases the iterator. When iteration was abandoned before
// exhaustion, the process handle is closed as well, unless configured
// otherwise. Close is safe to call on every exit path.
func (l *Lines) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if !l.finished && l.opts.CloseOnAbort {
		err := l.proc.Close()
		if l.opts.OnAbort != nil {
			l.opts.OnAbort(l.proc)
		}
		return err
	}

	return nil
}

// readLine reads a single line from the given stream into the pending
// queue and the stream's accumulator.
func (l *Lines) readLine(s Stream) {
	line, err := l.proc.ReadLine(s, l.opts.LineSize)
	if len(line) > 0 {
		text := l.decode(line)
		l.acc[s].append(text)
		l.pending = append(l.pending, Line{Stream: s, Text: text})
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.eof[s] = true
		} else {
			l.err = err
		}
	}
}

// drain performs one final unconditional full read of both streams.
func (l *Lines) drain() {
	for !l.eof[Stdout] && l.err == nil {
		l.readLine(Stdout)
	}
	for !l.eof[Stderr] && l.err == nil {
		l.readLine(Stderr)
	}
	l.drained = true
}

// finish finalizes the accumulators, awaits the exit code and runs the
// result classification. The handle is released afterwards.
func (l *Lines) finish() {
	l.finished = true
	l.stdout = l.acc[Stdout].join()
	l.stderr = l.acc[Stderr].join()

	if _, err := l.proc.Wait(); err != nil {
		l.err = err
		return
	}
	l.result, l.err = classify(l.proc, l.opts, l.stdout, l.stderr)

	if err := l.proc.Close(); err != nil {
		l.opts.Logger.Debug().Err(err).Msg("Failed to close process handle")
	}
}

package proc

import (
	"time"

	"github.com/rs/zerolog"
)

// DoneFunc is invoked after a process has been classified as successful.
type DoneFunc func(p Process, result *Result)

// FailFunc is invoked with full context before a classification error
// propagates to the caller.
type FailFunc func(p Process, result *Result, err error)

// AbortFunc is invoked when line iteration is abandoned before
// exhaustion and the handle has been closed.
type AbortFunc func(p Process)

// Options contains the configuration for supervising a process.
type Options struct {
	Logger       *zerolog.Logger
	Watchdog     *Watchdog
	Expect       []int
	Timeout      time.Duration
	LineTimeout  time.Duration
	LineSize     int
	CloseOnAbort bool
	OnDone       DoneFunc
	OnFail       FailFunc
	OnAbort      AbortFunc
}

// Option applies a configuration option
// for the supervision of a process.
type Option func(options *Options) error

// Apply applies the option functions to the current set of options.
func (o *Options) Apply(options ...Option) (*Options, error) {
	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// GetDefaultOptions returns the default options
// for all operations of this library.
func GetDefaultOptions() *Options {
	logger := zerolog.Nop()

	return &Options{
		Logger:       &logger,
		Expect:       []int{0},
		CloseOnAbort: true,
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		options.Logger = logger
		return nil
	}
}

// WithWatchdog enforces deadlines on an explicitly owned watchdog
// instead of the shared process-wide one.
func WithWatchdog(watchdog *Watchdog) Option {
	return func(options *Options) error {
		options.Watchdog = watchdog
		return nil
	}
}

// WithExpect sets the exit codes that are considered a success.
// The default is to accept only exit code zero.
func WithExpect(codes ...int) Option {
	return func(options *Options) error {
		options.Expect = codes
		return nil
	}
}

// WithAnyExitCode disables exit code verification entirely.
func WithAnyExitCode() Option {
	return func(options *Options) error {
		options.Expect = nil
		return nil
	}
}

// WithTimeout sets the wall-clock deadline after which the process
// is forcibly killed. Zero means no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.Timeout = timeout
		return nil
	}
}

// WithLineTimeout sets the maximum time to wait for the next output
// line during iteration. Zero means no per-line deadline.
func WithLineTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.LineTimeout = timeout
		return nil
	}
}

// WithLineSize bounds the number of bytes read per line. Zero reads
// until a newline is encountered.
func WithLineSize(size int) Option {
	return func(options *Options) error {
		options.LineSize = size
		return nil
	}
}

// WithCloseOnAbort controls whether abandoning line iteration closes
// the process handle. Enabled by default.
func WithCloseOnAbort(close bool) Option {
	return func(options *Options) error {
		options.CloseOnAbort = close
		return nil
	}
}

// WithOnDone attaches a callback that is invoked after a successful
// classification.
func WithOnDone(onDone DoneFunc) Option {
	return func(options *Options) error {
		options.OnDone = onDone
		return nil
	}
}

// WithOnFail attaches a callback that is invoked before a
// classification error propagates.
func WithOnFail(onFail FailFunc) Option {
	return func(options *Options) error {
		options.OnFail = onFail
		return nil
	}
}

// WithOnAbort attaches a callback that is invoked after an abandoned
// iteration has closed the process handle.
func WithOnAbort(onAbort AbortFunc) Option {
	return func(options *Options) error {
		options.OnAbort = onAbort
		return nil
	}
}

// watchdog returns the configured watchdog or the shared default.
func (o *Options) watchdog() *Watchdog {
	if o.Watchdog != nil {
		return o.Watchdog
	}
	return DefaultWatchdog()
}

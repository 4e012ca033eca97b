package ops

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options contains the configuration for an operation.
type Options struct {
	ConfigPath  string
	Logger      *zerolog.Logger
	Timeout     time.Duration
	LineTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// Option applies a configuration option
// for the execution of an operation.
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
		Logger: &logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// WithConfigPath points the operation at a configuration file.
func WithConfigPath(configPath string) Option {
	return func(options *Options) error {
		options.ConfigPath = configPath
		return nil
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		options.Logger = logger
		return nil
	}
}

// WithTimeout overrides the configured overall deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.Timeout = timeout
		return nil
	}
}

// WithLineTimeout overrides the configured per-line deadline.
func WithLineTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.LineTimeout = timeout
		return nil
	}
}

// WithOutput redirects the command's output streams, primarily for
// testing.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(options *Options) error {
		options.Stdout = stdout
		options.Stderr = stderr
		return nil
	}
}

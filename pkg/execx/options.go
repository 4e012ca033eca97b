package execx

import (
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
)

// Options contains the configuration for spawning local processes.
type Options struct {
	Logger   *zerolog.Logger
	Encoding encoding.Encoding
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
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		options.Logger = logger
		return nil
	}
}

// WithEncoding configures the text decoding scheme for process
// output. Without it output is treated as raw bytes.
func WithEncoding(enc encoding.Encoding) Option {
	return func(options *Options) error {
		options.Encoding = enc
		return nil
	}
}

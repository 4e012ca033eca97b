package ops

import (
	"strings"

	"github.com/runfold/runp/pkg/execx"
	"github.com/runfold/runp/pkg/proc"
	"github.com/runfold/runp/pkg/sshx"
)

// spawn starts the command on the configured machine. The returned
// closer tears down the SSH connection and is nil for local execution.
func spawn(config *Config, argv []string, opts *Options) (proc.Process, func() error, error) {
	enc, err := config.OutputEncoding()
	if err != nil {
		return nil, nil, err
	}

	if config.SSH.Host == "" {
		p, err := execx.Spawn(argv[0], argv[1:],
			execx.WithLogger(opts.Logger),
			execx.WithEncoding(enc),
		)
		return p, nil, err
	}

	clientOptions := []sshx.Option{
		sshx.WithLogger(opts.Logger),
		sshx.WithEncoding(enc),
	}
	if config.SSHProxy.Host != "" {
		proxy, err := sshx.NewClient(&config.SSHProxy, sshx.WithLogger(opts.Logger))
		if err != nil {
			return nil, nil, err
		}
		clientOptions = append(clientOptions, sshx.WithProxy(proxy))
	}

	client, err := sshx.NewClient(&config.SSH, clientOptions...)
	if err != nil {
		return nil, nil, err
	}

	// The remote side receives the argument vector as a single
	// command line; quoting is the caller's responsibility.
	p, err := client.Spawn(sshx.Cmd{Cmd: strings.Join(argv, " ")})
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return p, client.Close, nil
}

// supervision translates the configuration and overrides into
// supervision options for the proc package.
func supervision(config *Config, opts *Options) ([]proc.Option, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		var err error
		if timeout, err = config.Deadline(); err != nil {
			return nil, err
		}
	}

	lineTimeout := opts.LineTimeout
	if lineTimeout == 0 {
		var err error
		if lineTimeout, err = config.LineDeadline(); err != nil {
			return nil, err
		}
	}

	procOptions := []proc.Option{
		proc.WithLogger(opts.Logger),
		proc.WithTimeout(timeout),
		proc.WithLineTimeout(lineTimeout),
	}
	if len(config.Expect) > 0 {
		procOptions = append(procOptions, proc.WithExpect(config.Expect...))
	}

	return procOptions, nil
}

// loadOrDefault loads the configuration file, or falls back to the
// defaults when no path is given.
func loadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(configPath)
}

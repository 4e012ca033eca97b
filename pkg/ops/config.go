// Package ops implements the operations behind the command line
// interface: loading the target configuration and running or
// streaming a single command on the configured machine.
package ops

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/yaml.v3"

	"github.com/runfold/runp/pkg/sshx"
)

// Config describes the execution target and the supervision defaults.
// An empty SSH host selects local execution.
type Config struct {
	// SSH describes the connection to the remote target host.
	SSH sshx.Config `yaml:"ssh"`

	// SSHProxy describes the SSH connection configuration for an
	// SSH proxy, often also referred to as bastion host or jumpbox.
	SSHProxy sshx.Config `yaml:"ssh-proxy"`

	// Encoding is the IANA name of the text encoding of process
	// output. Empty means raw bytes.
	Encoding string `yaml:"encoding"`

	// Timeout is the overall deadline for a command, for example
	// "30s". Empty means no deadline.
	Timeout string `yaml:"timeout"`

	// LineTimeout is the maximum time to wait for the next output
	// line while streaming. Empty means no per-line deadline.
	LineTimeout string `yaml:"line-timeout"`

	// Expect lists the exit codes that count as success.
	Expect []int `yaml:"expect"`
}

// DefaultConfig returns the configuration used when no file is given:
// local execution, UTF-8 output, exit code zero expected.
func DefaultConfig() *Config {
	return &Config{
		Encoding: "utf-8",
		Expect:   []int{0},
	}
}

// LoadConfig reads the configuration file and fills unset fields from
// the defaults.
func LoadConfig(configPath string) (*Config, error) {
	configBytes, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	config := new(Config)
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, err
	}

	if err := mergo.Merge(config, DefaultConfig()); err != nil {
		return nil, err
	}

	return config, nil
}

// OutputEncoding resolves the configured encoding name, or nil for
// raw bytes.
func (c *Config) OutputEncoding() (encoding.Encoding, error) {
	if c.Encoding == "" {
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(c.Encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", c.Encoding, err)
	}
	return enc, nil
}

// Deadline parses the configured overall timeout.
func (c *Config) Deadline() (time.Duration, error) {
	return parseDuration(c.Timeout)
}

// LineDeadline parses the configured per-line timeout.
func (c *Config) LineDeadline() (time.Duration, error) {
	return parseDuration(c.LineTimeout)
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

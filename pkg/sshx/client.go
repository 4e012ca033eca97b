// Package sshx spawns and supervises processes on remote machines
// reached over SSH. It implements the proc.Process contract on top of
// an encrypted channel, with readiness detection based on the
// channel's receive buffers instead of file descriptors.
package sshx

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Config is a flat configuration for an SSH connection.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	KeyFile     string `yaml:"key-file"`
	Key         string `yaml:"key"`
	Passphrase  string `yaml:"passphrase"`
	Fingerprint string `yaml:"fingerprint"`
}

// Address returns the dialable network address of the host.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client is an SSH client that can spawn supervised remote processes.
type Client struct {
	*Options
	*ssh.Client

	config *Config
}

// NewClient connects to the configured host, optionally hopping
// through a bastion host first.
func NewClient(config *Config, options ...Option) (*Client, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	client := &Client{
		Options: opts,
		config:  config,
	}

	if config.Port == 0 {
		config.Port = 22
	}
	if config.User == "" {
		config.User = "root"
	}

	clientConfig, err := client.clientConfig(config)
	if err != nil {
		return nil, err
	}

	if client.Proxy != nil {
		// Tunnel a TCP connection from the bastion to the target and
		// run the SSH handshake over it.
		conn, err := client.Proxy.Dial("tcp", config.Address())
		if err != nil {
			return nil, err
		}

		targetConn, channel, requests, err := ssh.NewClientConn(conn, config.Address(), clientConfig)
		if err != nil {
			return nil, err
		}
		client.Client = ssh.NewClient(targetConn, channel, requests)

		return client, nil
	}

	if client.Client, err = ssh.Dial("tcp", config.Address(), clientConfig); err != nil {
		return nil, err
	}

	return client, nil
}

// String identifies the remote machine in diagnostics.
func (client *Client) String() string {
	return fmt.Sprintf("ssh://%s@%s", client.config.User, client.config.Host)
}

// clientConfig translates the flat configuration into a client config
// for the standard SSH library.
func (client *Client) clientConfig(config *Config) (*ssh.ClientConfig, error) {
	authMethod, err := client.authMethod(config)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: client.hostKeyCallback(config),
		User:            config.User,
		Timeout:         client.Timeout,
	}, nil
}

// authMethod configures the authentication method, which may either
// be a password, a private key or an encrypted private key. A private
// key always takes precedence over a password.
func (client *Client) authMethod(config *Config) (ssh.AuthMethod, error) {
	key := config.Key
	if key == "" && config.KeyFile != "" {
		keyFile := config.KeyFile

		// Resolve the home directory if necessary.
		if strings.HasPrefix(keyFile, "~") {
			userInfo, err := user.Current()
			if err != nil {
				return nil, err
			}
			keyFile = userInfo.HomeDir + keyFile[1:]
		}

		keyBytes, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		key = string(keyBytes)
	}

	if key != "" {
		var signer ssh.Signer
		var err error
		if config.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(config.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(key))
		}
		if err != nil {
			return nil, err
		}
		return ssh.PublicKeys(signer), nil
	}

	if config.Password != "" {
		client.Logger.Warn().Msg("Using password authentication is insecure!")
		client.Logger.Warn().Msg("Please consider using public key authentication!")
		return ssh.Password(config.Password), nil
	}

	return nil, errors.New("no authentication method specified")
}

// hostKeyCallback configures host key verification, either against a
// pinned fingerprint or not at all.
func (client *Client) hostKeyCallback(config *Config) ssh.HostKeyCallback {
	if config.Fingerprint != "" {
		return func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
			fingerprint := ssh.FingerprintSHA256(pubKey)
			if config.Fingerprint != fingerprint {
				return fmt.Errorf("fingerprint mismatch: server fingerprint: %s", fingerprint)
			}
			return nil
		}
	}

	client.Logger.Warn().Msg("Skipping host key verification is insecure!")
	client.Logger.Warn().Msg("Please consider using fingerprint verification!")
	return ssh.InsecureIgnoreHostKey()
}

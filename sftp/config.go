package sftp

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmgilman/go/storage/internal/errs"
)

// Config contains configuration for the SFTP backend.
type Config struct {
	// Host is the server hostname or IP address.
	Host string `yaml:"host"`

	// User is the login name.
	User string `yaml:"user"`

	// Options holds SSH connection options. They are passed through
	// untouched and interpreted when dialing; see Options for the
	// recognised keys.
	Options map[string]interface{} `yaml:"options"`

	// Folder is the remote directory stored paths are relative to.
	Folder string `yaml:"folder"`

	// URL is the public base URL files are served from.
	URL string `yaml:"url"`
}

// DefaultConfig returns the default SFTP configuration.
func DefaultConfig() Config {
	return Config{
		Host:    "localhost",
		User:    "anonymous",
		Options: map[string]interface{}{},
		Folder:  "/",
		URL:     "http://localhost",
	}
}

// Options are the SSH connection options understood in Config.Options.
type Options struct {
	// Port is the SSH port. Defaults to 22.
	Port int `yaml:"port"`

	// Password enables password and keyboard-interactive authentication.
	Password string `yaml:"password"`

	// Keys lists private key files. A single string is accepted.
	Keys stringList `yaml:"keys"`

	// KeyData lists PEM encoded private keys. A single string is accepted.
	KeyData stringList `yaml:"key_data"`

	// Passphrase decrypts encrypted private keys.
	Passphrase string `yaml:"passphrase"`

	// KnownHosts lists known_hosts files used to verify the server.
	// When empty the host key is not checked.
	KnownHosts stringList `yaml:"known_hosts"`

	// UseAgent adds the keys held by the agent at $SSH_AUTH_SOCK.
	UseAgent bool `yaml:"use_agent"`

	// Timeout bounds connection setup. Plain numbers are seconds.
	Timeout duration `yaml:"timeout"`
}

// ParseOptions decodes an options map. Unknown keys are rejected.
func ParseOptions(raw map[string]interface{}) (Options, error) {
	opts := Options{Port: 22, Timeout: duration(30 * time.Second)}
	if len(raw) == 0 {
		return opts, nil
	}

	// Round-trip through YAML so options read from a config file and
	// options built in code decode identically.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return opts, errs.Config("sftp: invalid options: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return opts, errs.Config("sftp: invalid options: %v", err)
	}

	if opts.Port <= 0 || opts.Port > 65535 {
		return opts, errs.Config("sftp: port %d is out of range", opts.Port)
	}
	if opts.Timeout < 0 {
		return opts, errs.Config("sftp: timeout must not be negative")
	}
	return opts, nil
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Host == "" {
		return errs.Config("sftp: host is required")
	}
	if c.User == "" {
		return errs.Config("sftp: user is required")
	}
	_, err := ParseOptions(c.Options)
	return err
}

// stringList decodes either a scalar or a sequence of strings.
type stringList []string

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = stringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
}

// duration decodes either a number of seconds or a time.ParseDuration string.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	if secs, err := strconv.ParseFloat(value.Value, 64); err == nil {
		*d = duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = duration(parsed)
	return nil
}
